package domain

import (
	"net/mail"
	"strings"
)

// RegistrationForm is the state of a point-registration form.
type RegistrationForm struct {
	Name     string
	Email    string
	Whatsapp string
	UF       string
	City     string
	Location Coordinate
	Items    Selection
	Image    *ImageFile
}

// Validate checks the form and assembles the payload sent to the registry.
func (f RegistrationForm) Validate() (*PointRegistration, error) {
	verr := &ValidationError{}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		verr.Add("name", "is required")
	}
	email := strings.TrimSpace(f.Email)
	if email == "" {
		verr.Add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.Add("email", "is not a valid address")
	}
	whatsapp := strings.TrimSpace(f.Whatsapp)
	if whatsapp == "" {
		verr.Add("whatsapp", "is required")
	}
	if f.UF == "" {
		verr.Add("uf", "is required")
	}
	if f.City == "" {
		verr.Add("city", "is required")
	}
	if f.Location.IsZero() {
		verr.Add("location", "select a position on the map")
	} else if err := f.Location.Validate(); err != nil {
		verr.Add("location", err.Error())
	}
	if f.Items.Len() == 0 {
		verr.Add("items", "select at least one item")
	}

	if !verr.Empty() {
		return nil, verr
	}

	return &PointRegistration{
		Name:     name,
		Email:    email,
		Whatsapp: whatsapp,
		UF:       f.UF,
		City:     f.City,
		Location: f.Location,
		Items:    f.Items.IDs(),
		Image:    f.Image,
	}, nil
}
