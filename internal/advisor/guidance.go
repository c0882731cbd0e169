package advisor

import (
	"fmt"
	"strings"

	"github.com/xaenox/diplomat-bot/internal/models"
)

// Score thresholds at which the learned preference changes the prompt.
const (
	subtleBelow     = 0
	expressiveAbove = 3
)

// ToneGuidance returns the instruction for a learned score, or "" when the
// score is unremarkable.
func ToneGuidance(tone models.Tone, score int) string {
	switch {
	case score < subtleBelow:
		return fmt.Sprintf("WARNING: The user has previously REJECTED suggestions for '%s' tone. Please be very subtle and close to the original text. Do not overdo it.\n", tone)
	case score > expressiveAbove:
		return fmt.Sprintf("NOTE: The user LOVES this '%s' tone. You can be very expressive and fully embrace this style.\n", tone)
	default:
		return ""
	}
}

// BuildGuidance assembles the free-text constraints sent with a rewrite:
// who the sender is, then what they think of this tone for this relationship.
func BuildGuidance(user *models.User, relationship string, tone models.Tone) string {
	var b strings.Builder
	if user == nil {
		return ""
	}
	if user.SelfContext != "" {
		fmt.Fprintf(&b, "USER CONTEXT (The Sender): %s\n", user.SelfContext)
	}
	b.WriteString(ToneGuidance(tone, user.Memory.Score(relationship, tone)))
	return b.String()
}
