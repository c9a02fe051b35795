package identity

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver decides whether incoming facts belong to an already-known contact
// or a new one, and merges partial facts into the canonical record.
type Resolver struct {
	store ContactStore
}

// NewResolver creates a contact resolver.
func NewResolver(store ContactStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve finds or creates the canonical contact for the given facts.
// Matching runs in strict priority order, first match wins:
//  1. Normalized phone contained in an existing contact's phone set.
//  2. Exact household-key match within the agency.
//  3. No match: create a new contact with whatever facts are present.
//
// Repeated identical calls return the same contact and never grow the
// phone/email sets past the first merge. Returns the contact and whether it
// was newly created.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (*Contact, bool, error) {
	if in.AgencyID == 0 {
		return nil, false, eris.New("identity: agency id is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return nil, false, eris.New("identity: last name is required")
	}

	log := zap.L().With(zap.Int64("agency_id", in.AgencyID))

	phone, hasPhone := NormalizePhone(in.Phone)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	key := HouseholdKey(in.FirstName, in.LastName, in.PostalCode)

	// Pass 1: phone set membership.
	if hasPhone {
		existing, err := r.store.FindByPhone(ctx, in.AgencyID, phone)
		if err != nil {
			return nil, false, eris.Wrap(err, "identity: resolve by phone")
		}
		if existing != nil {
			log.Debug("resolve: matched by phone",
				zap.String("phone", phone),
				zap.Int64("contact_id", existing.ID),
			)
			if err := r.mergeEmail(ctx, existing, email); err != nil {
				return nil, false, err
			}
			if err := r.fillAddress(ctx, existing, in); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
	}

	// Pass 2: household key.
	existing, err := r.store.FindByHouseholdKey(ctx, in.AgencyID, key)
	if err != nil {
		return nil, false, eris.Wrap(err, "identity: resolve by household key")
	}
	if existing != nil {
		log.Debug("resolve: matched by household key",
			zap.String("household_key", key),
			zap.Int64("contact_id", existing.ID),
		)
		if hasPhone {
			if err := r.mergePhone(ctx, existing, phone); err != nil {
				return nil, false, err
			}
		}
		if err := r.mergeEmail(ctx, existing, email); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	// Pass 3: no match, create.
	contact := &Contact{
		AgencyID:     in.AgencyID,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		HouseholdKey: key,
		Street:       strings.TrimSpace(in.Street),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
	}
	if hasPhone {
		contact.Phones = []string{phone}
	}
	if email != "" {
		contact.Emails = []string{email}
	}

	if err := r.store.CreateContact(ctx, contact); err != nil {
		if eris.Is(err, ErrContactExists) {
			// Lost a create race; merge into the winner instead.
			return r.mergeIntoExisting(ctx, in.AgencyID, key, phone, hasPhone, email)
		}
		return nil, false, eris.Wrap(err, "identity: create contact")
	}

	log.Info("resolve: created new contact",
		zap.String("household_key", key),
		zap.Int64("contact_id", contact.ID),
	)
	return contact, true, nil
}

// mergeIntoExisting re-fetches by household key after a create conflict and
// applies the same merges a pass-2 hit would have.
func (r *Resolver) mergeIntoExisting(ctx context.Context, agencyID int64, key, phone string, hasPhone bool, email string) (*Contact, bool, error) {
	existing, err := r.store.FindByHouseholdKey(ctx, agencyID, key)
	if err != nil {
		return nil, false, eris.Wrap(err, "identity: refetch after create conflict")
	}
	if existing == nil {
		return nil, false, eris.Errorf("identity: contact vanished for key %s", key)
	}
	if hasPhone {
		if err := r.mergePhone(ctx, existing, phone); err != nil {
			return nil, false, err
		}
	}
	if err := r.mergeEmail(ctx, existing, email); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *Resolver) mergePhone(ctx context.Context, c *Contact, phone string) error {
	if phone == "" || c.HasPhone(phone) {
		return nil
	}
	if err := r.store.AppendPhone(ctx, c.ID, phone); err != nil {
		return eris.Wrapf(err, "identity: append phone to contact %d", c.ID)
	}
	c.Phones = append(c.Phones, phone)
	return nil
}

func (r *Resolver) mergeEmail(ctx context.Context, c *Contact, email string) error {
	if email == "" || c.HasEmail(email) {
		return nil
	}
	if err := r.store.AppendEmail(ctx, c.ID, email); err != nil {
		return eris.Wrapf(err, "identity: append email to contact %d", c.ID)
	}
	c.Emails = append(c.Emails, email)
	return nil
}

// fillAddress writes address facts into fields the contact has no value for.
func (r *Resolver) fillAddress(ctx context.Context, c *Contact, in ResolveInput) error {
	street := strings.TrimSpace(in.Street)
	city := strings.TrimSpace(in.City)
	state := strings.TrimSpace(in.State)
	postal := strings.TrimSpace(in.PostalCode)

	needStreet := c.Street == "" && street != ""
	needCity := c.City == "" && city != ""
	needState := c.State == "" && state != ""
	needPostal := c.PostalCode == "" && postal != ""
	if !needStreet && !needCity && !needState && !needPostal {
		return nil
	}

	if err := r.store.FillAddress(ctx, c.ID, street, city, state, postal); err != nil {
		return eris.Wrapf(err, "identity: fill address on contact %d", c.ID)
	}
	if needStreet {
		c.Street = street
	}
	if needCity {
		c.City = city
	}
	if needState {
		c.State = state
	}
	if needPostal {
		c.PostalCode = postal
	}
	return nil
}
