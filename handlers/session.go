// handlers/session.go
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	sessionCookie = "registers_session"
	sessionMaxAge = 12 * time.Hour
)

// Session is the signed per-browser state: the signed in user, the pending
// OAuth state and flash messages waiting to be shown.
type Session struct {
	User    string   `json:"user,omitempty"`
	State   string   `json:"state,omitempty"`
	Next    string   `json:"next,omitempty"`
	Flashes []string `json:"flashes,omitempty"`
}

// Sessions reads and writes Session values in a signed, timestamped cookie.
// Cookies older than the session lifetime are rejected on read.
type Sessions struct {
	codec  *securecookie.SecureCookie
	secure bool
}

func NewSessions(secret string, secure bool) *Sessions {
	codec := securecookie.New([]byte(secret), nil).
		MaxAge(int(sessionMaxAge.Seconds())).
		SetSerializer(securecookie.JSONEncoder{})
	return &Sessions{codec: codec, secure: secure}
}

// Get returns the request's session, or an empty one when the cookie is
// missing, expired or fails verification.
func (s *Sessions) Get(r *http.Request) *Session {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return &Session{}
	}
	var sess Session
	if err := s.codec.Decode(sessionCookie, c.Value, &sess); err != nil {
		slog.Debug("Handler: discarded session cookie", "error", err)
		return &Session{}
	}
	return &sess
}

// Save writes sess back to the response.
func (s *Sessions) Save(w http.ResponseWriter, sess *Session) {
	value, err := s.codec.Encode(sessionCookie, sess)
	if err != nil {
		slog.Error("Handler: failed to encode session", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

// Flash queues messages for the next rendered page.
func (s *Sessions) Flash(w http.ResponseWriter, r *http.Request, messages ...string) {
	sess := s.Get(r)
	sess.Flashes = append(sess.Flashes, messages...)
	s.Save(w, sess)
}

// TakeFlashes returns the queued messages and clears them.
func (s *Sessions) TakeFlashes(w http.ResponseWriter, r *http.Request) (*Session, []string) {
	sess := s.Get(r)
	flashes := sess.Flashes
	if len(flashes) > 0 {
		sess.Flashes = nil
		s.Save(w, sess)
	}
	return sess, flashes
}
