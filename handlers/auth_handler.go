// handlers/auth_handler.go
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/gewnthar/registers/config"
)

var errForbidden = errors.New("you are not allowed to edit registers")

// Auth signs users in with GitHub OAuth.
type Auth struct {
	oauth   *oauth2.Config
	userURL string
	allowed []string
}

// NewAuth returns nil when sign in is disabled.
func NewAuth(cfg config.AuthConfig, gh config.GitHubConfig) *Auth {
	if !cfg.Enabled {
		return nil
	}
	return &Auth{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user"},
		},
		userURL: strings.TrimSuffix(gh.APIURL, "/") + "/user",
		allowed: cfg.AllowedUsers,
	}
}

// WithEndpoint points the OAuth flow at another provider, for tests.
func (a *Auth) WithEndpoint(endpoint oauth2.Endpoint, userURL string) *Auth {
	a.oauth.Endpoint = endpoint
	a.userURL = userURL
	return a
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/dataset"
	}
	return next
}

// Login starts the OAuth flow.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dataset", http.StatusFound)
		return
	}
	state, err := newState()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess := h.sessions.Get(r)
	sess.State = state
	sess.Next = safeNext(r.URL.Query().Get("next"))
	h.sessions.Save(w, sess)
	http.Redirect(w, r, h.auth.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow and signs the user in.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dataset", http.StatusFound)
		return
	}
	sess := h.sessions.Get(r)
	q := r.URL.Query()
	if sess.State == "" || q.Get("state") != sess.State {
		h.badRequest(w, r, errors.New("sign in state did not match, please try again"))
		return
	}

	token, err := h.auth.oauth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		slog.Warn("Handler: OAuth exchange failed", "error", err)
		h.badRequest(w, r, errors.New("sign in failed"))
		return
	}
	login, err := h.auth.user(r, token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(h.auth.allowed) > 0 && !slices.Contains(h.auth.allowed, login) {
		slog.Warn("Handler: refused sign in", "user", login)
		h.render(w, r, http.StatusForbidden, "error", &view{Status: http.StatusText(http.StatusForbidden), Message: errForbidden.Error()})
		return
	}

	next := sess.Next
	sess.User, sess.State, sess.Next = login, "", ""
	h.sessions.Save(w, sess)
	slog.Info("Handler: signed in", "user", login)
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

func (a *Auth) user(r *http.Request, token *oauth2.Token) (string, error) {
	resp, err := a.oauth.Client(r.Context(), token).Get(a.userURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch user: status %d", resp.StatusCode)
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode user: %w", err)
	}
	if user.Login == "" {
		return "", errors.New("user response has no login")
	}
	return user.Login, nil
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/dataset", http.StatusFound)
}

// RequireLogin sends anonymous users to sign in. It passes every request
// through when sign in is disabled.
func (h *Handler) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth != nil && h.sessions.Get(r).User == "" {
			http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Store().Ping(r.Context()); err != nil {
		slog.Error("Handler: health check failed", "error", err)
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "database connection error"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
