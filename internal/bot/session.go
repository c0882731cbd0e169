package bot

import (
	"sync"

	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/models"
)

// maxPending bounds how many unanswered suggestions a chat keeps.
const maxPending = 20

const defaultRelationship = "Other"

type pendingSuggestion struct {
	suggestion *models.Suggestion
	request    advisor.AdviceRequest
}

// session is the per-chat state: who is logged in and the current drafting
// context. Its mutex serialises all work for one chat.
type session struct {
	mu sync.Mutex

	user         *models.User
	recipient    string
	relationship string
	tone         models.Tone
	channel      models.Channel
	situation    string

	pending map[string]pendingSuggestion
	order   []string
}

func newSession() *session {
	return &session{
		user:         models.NewGuest(),
		relationship: defaultRelationship,
		tone:         models.DefaultTone,
		channel:      models.DefaultChannel,
		pending:      make(map[string]pendingSuggestion),
	}
}

// reset drops the identity and drafting context, as on login or logout.
func (s *session) reset(user *models.User) {
	if user == nil {
		user = models.NewGuest()
	}
	s.user = user
	s.recipient = ""
	s.relationship = defaultRelationship
	s.situation = ""
	s.pending = make(map[string]pendingSuggestion)
	s.order = nil
}

func (s *session) request(text string) advisor.AdviceRequest {
	return advisor.AdviceRequest{
		Text:         text,
		Recipient:    s.recipient,
		Relationship: s.relationship,
		Tone:         string(s.tone),
		Channel:      string(s.channel),
		Situation:    s.situation,
	}
}

func (s *session) remember(p pendingSuggestion) {
	id := p.suggestion.ID
	if _, ok := s.pending[id]; !ok {
		s.order = append(s.order, id)
	}
	s.pending[id] = p
	for len(s.order) > maxPending {
		delete(s.pending, s.order[0])
		s.order = s.order[1:]
	}
}

// take removes and returns the pending suggestion with the given ID.
func (s *session) take(id string) (pendingSuggestion, bool) {
	p, ok := s.pending[id]
	if !ok {
		return pendingSuggestion{}, false
	}
	delete(s.pending, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, true
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]*session)}
}

func (s *sessionStore) get(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = newSession()
		s.sessions[chatID] = sess
	}
	return sess
}
