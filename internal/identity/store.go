package identity

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrContactExists is returned by CreateContact when another writer already
// created the contact for the same (agency, household key). Callers re-fetch
// by key and merge instead of failing.
var ErrContactExists = eris.New("identity: contact already exists for household key")

// ContactStore defines persistence operations for canonical contacts.
// Array mutations are append-if-absent at the storage layer so two concurrent
// writers cannot both add the same phone or email.
type ContactStore interface {
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id int64) (*Contact, error)
	FindByPhone(ctx context.Context, agencyID int64, phone string) (*Contact, error)
	FindByHouseholdKey(ctx context.Context, agencyID int64, key string) (*Contact, error)

	// AppendPhone/AppendEmail add a value to a contact's set only if absent.
	AppendPhone(ctx context.Context, contactID int64, phone string) error
	AppendEmail(ctx context.Context, contactID int64, email string) error

	// FillAddress sets street/city/state/postal code only where the contact
	// currently has no value. Existing values are never overwritten.
	FillAddress(ctx context.Context, contactID int64, street, city, state, postalCode string) error
}
