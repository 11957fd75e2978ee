package types

import (
	"net/mail"
	"strings"
	"time"
)

// Supplier is a company that provides materials referenced by trace records.
type Supplier struct {
	SupplierID   string    `json:"supplier_id" yaml:"supplier_id"`
	Name         string    `json:"name" yaml:"name"`
	ContactEmail string    `json:"contact_email" yaml:"contact_email"`
	Country      string    `json:"country" yaml:"country"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

// Validate checks the supplier's fields. The contact email is optional.
func (s *Supplier) Validate() error {
	if len(strings.TrimSpace(s.Name)) < 2 {
		return fieldError("name", ErrInvalidName)
	}
	if s.ContactEmail != "" {
		if _, err := mail.ParseAddress(s.ContactEmail); err != nil {
			return fieldError("contact_email", ErrInvalidEmail)
		}
	}
	if s.Country != "" && !ValidCountryCode(s.Country) {
		return fieldError("country", ErrInvalidCountry)
	}
	return nil
}
