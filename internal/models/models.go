package models

import "time"

// GuestUsername is the name of the ephemeral identity used when nobody is logged in.
const GuestUsername = "guest"

// Message is the draft a user wants rewritten, with its recipient context
type Message struct {
	Content      string    `json:"content"`
	Recipient    string    `json:"recipient"`
	Relationship string    `json:"relationship"`
	Tone         Tone      `json:"tone"`
	Channel      Channel   `json:"channel"`
	CreatedAt    time.Time `json:"created_at"`
}

// Suggestion is the rewrite produced for a single Message
type Suggestion struct {
	ID        string   `json:"id"`
	Original  Message  `json:"original"`
	Content   string   `json:"content"`
	Reasoning string   `json:"reasoning"`
	Changes   []string `json:"changes"`
}

// Interaction records one advise and feedback cycle
type Interaction struct {
	Message      Message    `json:"message"`
	Suggestion   Suggestion `json:"suggestion"`
	Accepted     bool       `json:"accepted"`
	FinalContent string     `json:"final_content"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Contact is a saved recipient owned by a single user
type Contact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Description  string `json:"description"`
}

// User is the full persisted record of an account
type User struct {
	Username     string           `json:"username"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"password_hash"`
	SelfContext  string           `json:"self_context"`
	Contacts     []Contact        `json:"contacts"`
	Memory       PreferenceMemory `json:"memory"`
}

// NewGuest returns a fresh ephemeral guest record.
func NewGuest() *User {
	return &User{
		Username: GuestUsername,
		Memory:   NewPreferenceMemory(),
	}
}

// IsGuest reports whether u is the ephemeral guest identity. A nil user is a guest.
func (u *User) IsGuest() bool {
	return u == nil || u.Username == GuestUsername
}

// FindContact returns the index of the contact with the given name, or -1.
func (u *User) FindContact(name string) int {
	for i, c := range u.Contacts {
		if c.Name == name {
			return i
		}
	}
	return -1
}
