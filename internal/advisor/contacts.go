package advisor

import (
	"context"
	"strings"

	"github.com/xaenox/diplomat-bot/internal/models"
)

// AddContact appends a contact. Names are unique per user.
func (s *Service) AddContact(ctx context.Context, user *models.User, contact models.Contact) error {
	if user.IsGuest() {
		return ErrGuest
	}
	contact.Name = strings.TrimSpace(contact.Name)
	if contact.Name == "" {
		return ErrInvalidInput
	}
	if user.FindContact(contact.Name) >= 0 {
		return ErrContactExists
	}

	user.Contacts = append(user.Contacts, contact)
	return s.save(ctx, user)
}

// UpdateContact replaces the contact called oldName, which may be renamed.
func (s *Service) UpdateContact(ctx context.Context, user *models.User, oldName string, contact models.Contact) error {
	if user.IsGuest() {
		return ErrGuest
	}
	contact.Name = strings.TrimSpace(contact.Name)
	if contact.Name == "" {
		return ErrInvalidInput
	}

	i := user.FindContact(oldName)
	if i < 0 {
		return ErrContactNotFound
	}
	if j := user.FindContact(contact.Name); j >= 0 && j != i {
		return ErrContactExists
	}

	user.Contacts[i] = contact
	return s.save(ctx, user)
}

// DeleteContact removes the named contact. Unknown names are ignored.
func (s *Service) DeleteContact(ctx context.Context, user *models.User, name string) error {
	if user.IsGuest() {
		return ErrGuest
	}
	i := user.FindContact(name)
	if i < 0 {
		return nil
	}

	user.Contacts = append(user.Contacts[:i], user.Contacts[i+1:]...)
	return s.save(ctx, user)
}
