package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/models"
)

const historyLimit = 10

// Callback data prefixes for the suggestion keyboard.
const (
	actionAccept     = "accept"
	actionReject     = "reject"
	actionRegenerate = "regen"
)

// escapeMarkdown escapes the characters MarkdownV2 treats as markup.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

// splitFields splits "a | b | c" into trimmed parts. Missing trailing parts
// come back empty so callers can index up to n-1.
func splitFields(args string, n int) []string {
	parts := strings.SplitN(args, "|", n)
	out := make([]string, n)
	for i := range out {
		if i < len(parts) {
			out[i] = strings.TrimSpace(parts[i])
		}
	}
	return out
}

func callbackData(action, id string) string {
	return action + ":" + id
}

func parseCallback(data string) (action, id string, ok bool) {
	action, id, ok = strings.Cut(data, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch action {
	case actionAccept, actionReject, actionRegenerate:
		return action, id, true
	}
	return "", "", false
}

func formatSuggestion(s *models.Suggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Suggestion* \\(%s, %s\\)\n\n", escapeMarkdown(string(s.Original.Tone)), escapeMarkdown(string(s.Original.Channel)))
	b.WriteString(escapeMarkdown(s.Content))
	if s.Reasoning != "" {
		fmt.Fprintf(&b, "\n\n_%s_", escapeMarkdown(s.Reasoning))
	}
	return b.String()
}

func formatContext(sess *session) string {
	recipient := sess.recipient
	if recipient == "" {
		recipient = "(none)"
	}
	situation := sess.situation
	if situation == "" {
		situation = "(none)"
	}
	return fmt.Sprintf("Recipient: %s\nRelationship: %s\nTone: %s\nChannel: %s\nSituation: %s",
		recipient, sess.relationship, sess.tone, sess.channel, situation)
}

func formatProfile(user *models.User) string {
	if user.IsGuest() {
		return "You are using Diplomat as a guest. Feedback is kept for this chat only.\nUse /register or /login to keep your preferences."
	}
	about := user.SelfContext
	if about == "" {
		about = "(not set, use /about)"
	}
	return fmt.Sprintf("User: %s\nEmail: %s\nAbout you: %s\nContacts: %d\nSaved interactions: %d",
		user.Username, user.Email, about, len(user.Contacts), len(user.Memory.History))
}

func formatContacts(contacts []models.Contact) string {
	if len(contacts) == 0 {
		return "You don't have any contacts yet. Add one with /addcontact name | relationship | note"
	}
	var b strings.Builder
	b.WriteString("Your contacts:\n")
	for _, c := range contacts {
		fmt.Fprintf(&b, "\n- %s (%s)", c.Name, c.Relationship)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
	}
	return b.String()
}

func formatHistory(history []models.Interaction, recipient string) string {
	if len(history) == 0 {
		if recipient != "" {
			return fmt.Sprintf("No history with %s yet.", recipient)
		}
		return "You don't have any history yet."
	}

	var b strings.Builder
	if recipient != "" {
		fmt.Fprintf(&b, "Recent messages to %s:\n", recipient)
	} else {
		b.WriteString("Recent messages:\n")
	}
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}
	for _, in := range history {
		verdict := "rejected"
		if in.Accepted {
			verdict = "accepted"
		}
		fmt.Fprintf(&b, "\n%s to %s [%s, %s]\n%s\n",
			in.Timestamp.Format("2006-01-02 15:04"), displayRecipient(in.Message.Recipient),
			in.Message.Tone, verdict, in.FinalContent)
	}
	return b.String()
}

func displayRecipient(r string) string {
	if r == "" {
		return "someone"
	}
	return r
}

// formatPreferences lists learned scores in the order given.
func formatPreferences(prefs []advisor.Preference) string {
	if len(prefs) == 0 {
		return "No preferences learned yet. Accept or reject a few suggestions first."
	}

	var b strings.Builder
	b.WriteString("Learned preferences:\n")
	for _, p := range prefs {
		fmt.Fprintf(&b, "\n%s / %s: %+d", p.Relationship, p.Tone, p.Score)
	}
	return b.String()
}

func formatTones() string {
	names := make([]string, len(models.Tones))
	for i, t := range models.Tones {
		names[i] = string(t)
	}
	return "Available tones:\n" + strings.Join(names, ", ")
}

func formatChannels() string {
	names := make([]string, len(models.Channels))
	for i, c := range models.Channels {
		names[i] = string(c)
	}
	return "Available channels:\n" + strings.Join(names, "\n")
}

// matchChannel accepts a channel name or an unambiguous prefix of one, so
// "/channel sms" and "/channel linkedin" work.
func matchChannel(s string) (models.Channel, bool) {
	if c, ok := models.LookupChannel(s); ok {
		return c, true
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	var found models.Channel
	for _, c := range models.Channels {
		if strings.HasPrefix(strings.ToLower(string(c)), s) {
			if found != "" {
				return "", false
			}
			found = c
		}
	}
	return found, found != ""
}
