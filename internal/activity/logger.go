package activity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/identity"
)

// Logger validates and writes timeline entries.
type Logger struct {
	store Store
}

// NewLogger creates a Logger over the given store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Log validates the entry, normalizes its phone, and appends it. The entry's
// ID and CreatedAt are assigned here and returned via the entry itself.
func (l *Logger) Log(ctx context.Context, entry *Activity) (string, error) {
	if err := l.prepare(entry); err != nil {
		return "", err
	}
	if err := l.store.Insert(ctx, entry); err != nil {
		return "", err
	}

	zap.L().Debug("activity logged",
		zap.String("id", entry.ID),
		zap.Int64("contact_id", entry.ContactID),
		zap.String("source_module", entry.SourceModule),
		zap.String("activity_type", entry.ActivityType))

	return entry.ID, nil
}

// LogBatch validates and appends many entries at once. Used by backfill to
// mirror imported rows; the Postgres store writes the batch with COPY.
func (l *Logger) LogBatch(ctx context.Context, entries []Activity) (int64, error) {
	for i := range entries {
		if err := l.prepare(&entries[i]); err != nil {
			return 0, eris.Wrapf(err, "activity: batch entry %d", i)
		}
	}
	return l.store.InsertBatch(ctx, entries)
}

func (l *Logger) prepare(entry *Activity) error {
	if entry.AgencyID == 0 {
		return eris.New("activity: agency id is required")
	}
	if entry.ContactID == 0 {
		return eris.New("activity: contact id is required")
	}
	if !validSource(entry.SourceModule) {
		return eris.Errorf("activity: unknown source module %q", entry.SourceModule)
	}
	if strings.TrimSpace(entry.ActivityType) == "" {
		return eris.New("activity: activity type is required")
	}
	if entry.Phone != "" {
		if normalized, ok := identity.NormalizePhone(entry.Phone); ok {
			entry.Phone = normalized
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}

// Recorder adapts the Logger to the sale linker, which only knows the
// contact and a short note.
type Recorder struct {
	logger *Logger
}

// NewRecorder wraps a Logger for use by the sale linker.
func NewRecorder(logger *Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record writes a sales-module activity for the given contact.
func (r *Recorder) Record(ctx context.Context, agencyID, contactID int64, activityType, notes string) error {
	_, err := r.logger.Log(ctx, &Activity{
		AgencyID:     agencyID,
		ContactID:    contactID,
		SourceModule: SourceSales,
		ActivityType: activityType,
		Notes:        notes,
	})
	return err
}
