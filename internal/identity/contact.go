package identity

import "time"

// Contact is the canonical customer identity record for one agency.
// The phone and email sets only grow; contacts are never deleted.
type Contact struct {
	ID           int64     `json:"id" db:"id"`
	AgencyID     int64     `json:"agency_id" db:"agency_id"`
	FirstName    string    `json:"first_name,omitempty" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	PostalCode   string    `json:"postal_code,omitempty" db:"postal_code"`
	HouseholdKey string    `json:"household_key" db:"household_key"`
	Phones       []string  `json:"phones" db:"phones"`
	Emails       []string  `json:"emails" db:"emails"`
	Street       string    `json:"street,omitempty" db:"street"`
	City         string    `json:"city,omitempty" db:"city"`
	State        string    `json:"state,omitempty" db:"state"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// HasPhone reports whether the contact's phone set contains the given
// canonical phone.
func (c *Contact) HasPhone(phone string) bool {
	for _, p := range c.Phones {
		if p == phone {
			return true
		}
	}
	return false
}

// HasEmail reports whether the contact's email set contains the given email.
func (c *Contact) HasEmail(email string) bool {
	for _, e := range c.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// ResolveInput carries the partial identity facts a lifecycle module knows
// about a person. AgencyID and LastName are required; everything else is
// optional. Phone may be free text; it is normalized before matching.
type ResolveInput struct {
	AgencyID   int64  `json:"agency_id"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}
