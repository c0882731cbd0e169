package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64,excludes=:"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=256"`
}

type adviseRequest struct {
	Text         string `json:"text" validate:"required,max=4000"`
	Recipient    string `json:"recipient" validate:"max=100"`
	Relationship string `json:"relationship" validate:"max=100"`
	Tone         string `json:"tone" validate:"max=50"`
	Channel      string `json:"channel" validate:"max=100"`
	Situation    string `json:"situation" validate:"max=1000"`
}

type learnRequest struct {
	SuggestionID string  `json:"suggestion_id" validate:"required"`
	Accepted     *bool   `json:"accepted" validate:"required"`
	FinalText    *string `json:"final_text,omitempty" validate:"omitempty,max=4000"`
}

type profileRequest struct {
	SelfContext string `json:"self_context" validate:"max=2000"`
}

type renameRequest struct {
	Username string `json:"username" validate:"required,max=64,excludes=:"`
}

type contactRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Relationship string `json:"relationship" validate:"max=100"`
	Description  string `json:"description" validate:"max=500"`
}

type messageResponse struct {
	Content      string    `json:"content"`
	Recipient    string    `json:"recipient"`
	Relationship string    `json:"relationship"`
	Tone         string    `json:"tone"`
	Channel      string    `json:"channel"`
	CreatedAt    time.Time `json:"created_at"`
}

type suggestionResponse struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Reasoning string          `json:"reasoning"`
	Changes   []string        `json:"changes"`
	Original  messageResponse `json:"original"`
}

type learnResponse struct {
	Accepted  bool `json:"accepted"`
	Score     int  `json:"score"`
	Persisted bool `json:"persisted"`
}

type interactionResponse struct {
	Message      messageResponse `json:"message"`
	Suggestion   string          `json:"suggestion"`
	Accepted     bool            `json:"accepted"`
	FinalContent string          `json:"final_content"`
	Timestamp    time.Time       `json:"timestamp"`
}

type contactResponse struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Description  string `json:"description"`
}

type profileResponse struct {
	Username    string                    `json:"username"`
	Email       string                    `json:"email"`
	SelfContext string                    `json:"self_context"`
	Contacts    []contactResponse         `json:"contacts"`
	Preferences map[string]map[string]int `json:"preferences"`
}

func toMessageResponse(m models.Message) messageResponse {
	return messageResponse{
		Content:      m.Content,
		Recipient:    m.Recipient,
		Relationship: m.Relationship,
		Tone:         string(m.Tone),
		Channel:      string(m.Channel),
		CreatedAt:    m.CreatedAt,
	}
}

func toContactResponses(contacts []models.Contact) []contactResponse {
	out := make([]contactResponse, len(contacts))
	for i, c := range contacts {
		out[i] = contactResponse(c)
	}
	return out
}

func toProfileResponse(user *models.User, preferences []advisor.Preference) profileResponse {
	prefs := make(map[string]map[string]int)
	for _, p := range preferences {
		if prefs[p.Relationship] == nil {
			prefs[p.Relationship] = make(map[string]int)
		}
		prefs[p.Relationship][string(p.Tone)] = p.Score
	}
	return profileResponse{
		Username:    user.Username,
		Email:       user.Email,
		SelfContext: user.SelfContext,
		Contacts:    toContactResponses(user.Contacts),
		Preferences: prefs,
	}
}

// register handles POST /api/v1/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := s.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.serviceError(w, err, "register")
		return
	}
	if !ok {
		s.respondError(w, http.StatusConflict, "Username already taken")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

// advise handles POST /api/v1/advise
func (s *Server) advise(w http.ResponseWriter, r *http.Request) {
	var req adviseRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())

	suggestion := s.service.Advise(r.Context(), user, advisor.AdviceRequest(req))
	s.pending.put(user.Username, suggestion)

	s.respondJSON(w, http.StatusOK, suggestionResponse{
		ID:        suggestion.ID,
		Content:   suggestion.Content,
		Reasoning: suggestion.Reasoning,
		Changes:   suggestion.Changes,
		Original:  toMessageResponse(suggestion.Original),
	})
}

// learn handles POST /api/v1/learn
func (s *Server) learn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())

	suggestion, ok := s.pending.take(user.Username, req.SuggestionID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Unknown or expired suggestion")
		return
	}

	accepted := *req.Accepted
	final := suggestion.Original.Content
	if accepted {
		final = suggestion.Content
	}
	if req.FinalText != nil {
		final = *req.FinalText
	}

	if err := s.service.LearnWithText(r.Context(), user, suggestion, accepted, final); err != nil {
		s.serviceError(w, err, "learn")
		return
	}

	s.respondJSON(w, http.StatusOK, learnResponse{
		Accepted:  accepted,
		Score:     user.Memory.Score(suggestion.Original.Relationship, suggestion.Original.Tone),
		Persisted: !user.IsGuest(),
	})
}

// history handles GET /api/v1/history
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	interactions := s.service.History(user, r.URL.Query().Get("recipient"))
	out := make([]interactionResponse, len(interactions))
	for i, in := range interactions {
		out[i] = interactionResponse{
			Message:      toMessageResponse(in.Message),
			Suggestion:   in.Suggestion.Content,
			Accepted:     in.Accepted,
			FinalContent: in.FinalContent,
			Timestamp:    in.Timestamp,
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"history":    out,
		"recipients": s.service.Recipients(user),
	})
}

// getProfile handles GET /api/v1/profile
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	s.respondJSON(w, http.StatusOK, toProfileResponse(user, s.service.Preferences(user)))
}

// updateProfile handles PUT /api/v1/profile
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())

	if err := s.service.UpdateContext(r.Context(), user, req.SelfContext); err != nil {
		s.serviceError(w, err, "update profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(user, s.service.Preferences(user)))
}

// rename handles POST /api/v1/rename
func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())
	oldName := user.Username

	ok, err := s.service.ChangeUsername(r.Context(), user, req.Username)
	if err != nil {
		s.serviceError(w, err, "rename")
		return
	}
	if !ok {
		s.respondError(w, http.StatusConflict, "Username already taken")
		return
	}
	s.pending.rename(oldName, user.Username)
	s.respondJSON(w, http.StatusOK, map[string]string{"username": user.Username})
}

// deleteAccount handles DELETE /api/v1/account
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAccount(r.Context(), userFromContext(r.Context())); err != nil {
		s.serviceError(w, err, "delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listContacts handles GET /api/v1/contacts
func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contacts": toContactResponses(user.Contacts),
	})
}

// addContact handles POST /api/v1/contacts
func (s *Server) addContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())

	if err := s.service.AddContact(r.Context(), user, models.Contact(req)); err != nil {
		s.serviceError(w, err, "add contact")
		return
	}
	s.respondJSON(w, http.StatusCreated, contactResponse(user.Contacts[len(user.Contacts)-1]))
}

// updateContact handles PUT /api/v1/contacts/{name}
func (s *Server) updateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := userFromContext(r.Context())

	if err := s.service.UpdateContact(r.Context(), user, chi.URLParam(r, "name"), models.Contact(req)); err != nil {
		s.serviceError(w, err, "update contact")
		return
	}
	s.respondJSON(w, http.StatusOK, contactResponse(user.Contacts[user.FindContact(strings.TrimSpace(req.Name))]))
}

// deleteContact handles DELETE /api/v1/contacts/{name}
func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := s.service.DeleteContact(r.Context(), user, chi.URLParam(r, "name")); err != nil {
		s.serviceError(w, err, "delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serviceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, advisor.ErrGuest):
		s.respondUnauthorized(w, "An account is required")
	case errors.Is(err, advisor.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, advisor.ErrContactExists):
		s.respondError(w, http.StatusConflict, "Contact already exists")
	case errors.Is(err, advisor.ErrContactNotFound):
		s.respondError(w, http.StatusNotFound, "Contact not found")
	case errors.Is(err, advisor.ErrUnknownSuggestion):
		s.respondError(w, http.StatusNotFound, "Unknown or expired suggestion")
	default:
		s.logger.Error("Request failed", zap.String("operation", op), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Internal error")
	}
}
