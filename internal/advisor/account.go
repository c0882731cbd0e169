package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/diplomat-bot/internal/credential"
	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

func validUsername(name string) bool {
	return name != "" && name == strings.TrimSpace(name) && name != models.GuestUsername
}

// Register creates an account. It returns false when the username is taken.
func (s *Service) Register(ctx context.Context, username, email, password string) (bool, error) {
	if !validUsername(username) || password == "" {
		return false, ErrInvalidInput
	}

	existing, err := s.store.GetUser(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: credential.Hash(password),
		Contacts:     []models.Contact{},
		Memory:       models.NewPreferenceMemory(),
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return false, fmt.Errorf("save user: %w", err)
	}
	s.logger.Info("User registered", zap.String("username", username))
	return true, nil
}

// Login returns the stored record when the credentials match, nil otherwise.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !credential.Verify(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// UpdateContext replaces the user's description of themselves.
func (s *Service) UpdateContext(ctx context.Context, user *models.User, selfContext string) error {
	if user.IsGuest() {
		return ErrGuest
	}
	user.SelfContext = selfContext
	return s.save(ctx, user)
}

// ChangeUsername renames the account. It returns false when the new name is
// taken or the account no longer exists.
func (s *Service) ChangeUsername(ctx context.Context, user *models.User, newName string) (bool, error) {
	if user.IsGuest() {
		return false, ErrGuest
	}
	if !validUsername(newName) {
		return false, ErrInvalidInput
	}
	if newName == user.Username {
		return true, nil
	}

	ok, err := s.store.RenameUser(ctx, user.Username, newName)
	if err != nil {
		return false, fmt.Errorf("rename user: %w", err)
	}
	if ok {
		s.logger.Info("User renamed",
			zap.String("from", user.Username),
			zap.String("to", newName))
		user.Username = newName
	}
	return ok, nil
}

// DeleteAccount removes the user and everything they own.
func (s *Service) DeleteAccount(ctx context.Context, user *models.User) error {
	if user.IsGuest() {
		return ErrGuest
	}
	if err := s.store.DeleteUser(ctx, user.Username); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("User deleted", zap.String("username", user.Username))
	return nil
}

// History returns the user's interactions newest first, optionally limited to
// one recipient.
func (s *Service) History(user *models.User, recipient string) []models.Interaction {
	if user == nil {
		return nil
	}
	out := make([]models.Interaction, 0, len(user.Memory.History))
	for _, in := range user.Memory.History {
		if recipient == "" || in.Message.Recipient == recipient {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Recipients lists the distinct recipients in the user's history.
func (s *Service) Recipients(user *models.User) []string {
	if user == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, in := range user.Memory.History {
		if _, ok := seen[in.Message.Recipient]; ok {
			continue
		}
		seen[in.Message.Recipient] = struct{}{}
		out = append(out, in.Message.Recipient)
	}
	sort.Strings(out)
	return out
}

// Preference is one learned score for a relationship and tone.
type Preference struct {
	Relationship string
	Tone         models.Tone
	Score        int
}

// Preferences flattens the learned scores, strongest likes first. Ties are
// ordered by relationship then tone.
func (s *Service) Preferences(user *models.User) []Preference {
	if user == nil {
		return nil
	}
	var out []Preference
	for rel, tones := range user.Memory.Relationships {
		for tone, score := range tones {
			out = append(out, Preference{Relationship: rel, Tone: tone, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Relationship != out[j].Relationship {
			return out[i].Relationship < out[j].Relationship
		}
		return out[i].Tone < out[j].Tone
	})
	return out
}

func (s *Service) save(ctx context.Context, user *models.User) error {
	if err := s.store.SaveUser(ctx, user); err != nil {
		s.logger.Error("Failed to save user",
			zap.String("username", user.Username),
			zap.Error(err))
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
