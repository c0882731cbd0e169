package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

// Document is the on-disk layout shared by all users: {"users": {name: record}}.
// Records are kept raw so that saving one user never re-encodes the others.
type Document struct {
	Users map[string]json.RawMessage `json:"users"`
}

type userRecord struct {
	Email        string          `json:"email"`
	PasswordHash string          `json:"password_hash"`
	SelfContext  string          `json:"self_context"`
	Contacts     []contactRecord `json:"contacts"`
	Memory       memoryRecord    `json:"memory"`
}

type contactRecord struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Description  string `json:"description"`
}

type memoryRecord struct {
	RelationshipPreferences map[string]map[string]float64 `json:"relationship_preferences"`
	History                 []json.RawMessage             `json:"history"`
}

type interactionRecord struct {
	Timestamp         string                `json:"timestamp"`
	Accepted          bool                  `json:"accepted"`
	FinalContent      string                `json:"final_content"`
	OriginalMessage   originalMessageRecord `json:"original_message"`
	RefinedSuggestion string                `json:"refined_suggestion"`
	SuggestionID      string                `json:"suggestion_id,omitempty"`
	Reasoning         string                `json:"reasoning,omitempty"`
	Changes           []string              `json:"changes,omitempty"`
}

type originalMessageRecord struct {
	Content      string `json:"content"`
	Recipient    string `json:"recipient"`
	Tone         string `json:"tone"`
	Relationship string `json:"relationship,omitempty"`
	Channel      string `json:"channel,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// interactionInput mirrors interactionRecord with pointers so that missing
// required fields can be told apart from zero values.
type interactionInput struct {
	Timestamp         *string `json:"timestamp"`
	Accepted          *bool   `json:"accepted"`
	FinalContent      *string `json:"final_content"`
	OriginalMessage   *struct {
		Content      *string `json:"content"`
		Recipient    *string `json:"recipient"`
		Tone         *string `json:"tone"`
		Relationship string  `json:"relationship"`
		Channel      string  `json:"channel"`
		CreatedAt    string  `json:"created_at"`
	} `json:"original_message"`
	RefinedSuggestion *string  `json:"refined_suggestion"`
	SuggestionID      string   `json:"suggestion_id"`
	Reasoning         string   `json:"reasoning"`
	Changes           []string `json:"changes"`
}

var errMissingField = errors.New("missing required field")

// timestamps written by older tools carry no zone
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// EncodeUser serialises a user record. The username is the document key and
// is not part of the record.
func EncodeUser(user *models.User) (json.RawMessage, error) {
	rec := userRecord{
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		SelfContext:  user.SelfContext,
		Contacts:     make([]contactRecord, 0, len(user.Contacts)),
		Memory: memoryRecord{
			RelationshipPreferences: make(map[string]map[string]float64, len(user.Memory.Relationships)),
			History:                 make([]json.RawMessage, 0, len(user.Memory.History)),
		},
	}

	for _, c := range user.Contacts {
		rec.Contacts = append(rec.Contacts, contactRecord(c))
	}

	for rel, tones := range user.Memory.Relationships {
		scores := make(map[string]float64, len(tones))
		for tone, score := range tones {
			scores[string(tone)] = float64(score)
		}
		rec.Memory.RelationshipPreferences[rel] = scores
	}

	for _, in := range user.Memory.History {
		raw, err := json.Marshal(encodeInteraction(in))
		if err != nil {
			return nil, fmt.Errorf("encode interaction: %w", err)
		}
		rec.Memory.History = append(rec.Memory.History, raw)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode user %s: %w", user.Username, err)
	}
	return data, nil
}

func encodeInteraction(in models.Interaction) interactionRecord {
	msg := in.Message
	rec := interactionRecord{
		Timestamp:    formatTimestamp(in.Timestamp),
		Accepted:     in.Accepted,
		FinalContent: in.FinalContent,
		OriginalMessage: originalMessageRecord{
			Content:      msg.Content,
			Recipient:    msg.Recipient,
			Tone:         string(msg.Tone),
			Relationship: msg.Relationship,
			Channel:      string(msg.Channel),
		},
		RefinedSuggestion: in.Suggestion.Content,
		SuggestionID:      in.Suggestion.ID,
		Reasoning:         in.Suggestion.Reasoning,
		Changes:           in.Suggestion.Changes,
	}
	if !msg.CreatedAt.IsZero() {
		rec.OriginalMessage.CreatedAt = formatTimestamp(msg.CreatedAt)
	}
	return rec
}

// DecodeUser rebuilds a user record. Missing optional fields become empty
// values. History entries that cannot be decoded are skipped and logged; only
// a record that is not a JSON object at all is an error.
func DecodeUser(username string, data []byte, logger *zap.Logger) (*models.User, error) {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}

	user := &models.User{
		Username:     username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		SelfContext:  rec.SelfContext,
		Contacts:     make([]models.Contact, 0, len(rec.Contacts)),
		Memory:       models.NewPreferenceMemory(),
	}

	for _, c := range rec.Contacts {
		user.Contacts = append(user.Contacts, models.Contact(c))
	}

	for rel, scores := range rec.Memory.RelationshipPreferences {
		tones := make(map[models.Tone]int, len(scores))
		for tone, score := range scores {
			tones[models.Tone(tone)] = int(score)
		}
		user.Memory.Relationships[rel] = tones
	}

	user.Memory.History = DecodeHistory(rec.Memory.History, logger.With(zap.String("username", username)))
	return user, nil
}

// DecodeHistory decodes each entry independently, dropping the ones that are
// malformed.
func DecodeHistory(entries []json.RawMessage, logger *zap.Logger) []models.Interaction {
	history := make([]models.Interaction, 0, len(entries))
	for i, raw := range entries {
		in, err := decodeInteraction(raw)
		if err != nil {
			logger.Warn("Skipping malformed history entry",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		history = append(history, in)
	}
	return history
}

func decodeInteraction(raw json.RawMessage) (models.Interaction, error) {
	var in interactionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Interaction{}, err
	}

	switch {
	case in.Timestamp == nil:
		return models.Interaction{}, fmt.Errorf("timestamp: %w", errMissingField)
	case in.Accepted == nil:
		return models.Interaction{}, fmt.Errorf("accepted: %w", errMissingField)
	case in.FinalContent == nil:
		return models.Interaction{}, fmt.Errorf("final_content: %w", errMissingField)
	case in.RefinedSuggestion == nil:
		return models.Interaction{}, fmt.Errorf("refined_suggestion: %w", errMissingField)
	case in.OriginalMessage == nil:
		return models.Interaction{}, fmt.Errorf("original_message: %w", errMissingField)
	case in.OriginalMessage.Content == nil, in.OriginalMessage.Recipient == nil, in.OriginalMessage.Tone == nil:
		return models.Interaction{}, fmt.Errorf("original_message content/recipient/tone: %w", errMissingField)
	}

	ts, err := parseTimestamp(*in.Timestamp)
	if err != nil {
		return models.Interaction{}, fmt.Errorf("timestamp: %w", err)
	}

	tone, ok := models.LookupTone(*in.OriginalMessage.Tone)
	if !ok || string(tone) != *in.OriginalMessage.Tone {
		return models.Interaction{}, fmt.Errorf("unknown tone %q", *in.OriginalMessage.Tone)
	}

	msg := models.Message{
		Content:      *in.OriginalMessage.Content,
		Recipient:    *in.OriginalMessage.Recipient,
		Relationship: in.OriginalMessage.Relationship,
		Tone:         tone,
		Channel:      models.Channel(in.OriginalMessage.Channel),
	}
	if in.OriginalMessage.Channel == "" {
		msg.Channel = models.DefaultChannel
	}
	if in.OriginalMessage.CreatedAt != "" {
		created, err := parseTimestamp(in.OriginalMessage.CreatedAt)
		if err != nil {
			return models.Interaction{}, fmt.Errorf("original_message created_at: %w", err)
		}
		msg.CreatedAt = created
	}

	return models.Interaction{
		Message: msg,
		Suggestion: models.Suggestion{
			ID:        in.SuggestionID,
			Original:  msg,
			Content:   *in.RefinedSuggestion,
			Reasoning: in.Reasoning,
			Changes:   in.Changes,
		},
		Accepted:     *in.Accepted,
		FinalContent: *in.FinalContent,
		Timestamp:    ts,
	}, nil
}
