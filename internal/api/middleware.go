package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

type contextKey int

const userKey contextKey = iota

// Logger logs one line per request.
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.String("remoteAddr", r.RemoteAddr),
			)
		})
	}
}

// userLocks hands out one mutex per username so concurrent requests for the
// same account do not overwrite each other's record. Entries live only while
// a request holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(username string) func() {
	l.mu.Lock()
	m, ok := l.locks[username]
	if !ok {
		m = &userLock{}
		l.locks[username] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, username)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// authenticate resolves HTTP Basic credentials to a user record. Without
// credentials the request continues as a guest unless required is set.
// Wrong credentials are always rejected.
func (s *Server) authenticate(required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				if required {
					s.respondUnauthorized(w, "Missing credentials")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, models.NewGuest())))
				return
			}

			if _, ok := s.login(w, r, username, password); !ok {
				return
			}

			unlock := s.locks.lock(username)
			defer unlock()

			// reload under the lock so the record reflects writes that
			// finished while this request waited
			user, ok := s.login(w, r, username, password)
			if !ok {
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

// login checks Basic credentials and writes the failure response itself.
func (s *Server) login(w http.ResponseWriter, r *http.Request, username, password string) (*models.User, bool) {
	user, err := s.service.Login(r.Context(), username, password)
	if err != nil {
		s.logger.Error("Failed to authenticate", zap.Error(err), zap.String("username", username))
		s.respondError(w, http.StatusInternalServerError, "Internal error")
		return nil, false
	}
	if user == nil {
		s.respondUnauthorized(w, "Invalid username or password")
		return nil, false
	}
	return user, true
}

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	if user == nil {
		return models.NewGuest()
	}
	return user
}
