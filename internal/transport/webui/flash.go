package webui

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const flashMaxAge = 5 * 60

// Flashes stores one-time notifications in a signed cookie session.
type Flashes struct {
	store sessions.Store
	name  string
}

// NewFlashes creates a cookie backed flash store signed with secret.
func NewFlashes(name, secret string, secure bool) *Flashes {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Flashes{store: store, name: name}
}

// Add queues message for the next page rendered for this client.
func (f *Flashes) Add(w http.ResponseWriter, r *http.Request, message string) error {
	// a tampered or stale cookie yields a fresh session
	session, _ := f.store.Get(r, f.name)
	session.AddFlash(message)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save flash: %w", err)
	}
	return nil
}

// Pop returns the queued message, if any, and clears it.
func (f *Flashes) Pop(w http.ResponseWriter, r *http.Request) (string, error) {
	session, _ := f.store.Get(r, f.name)
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return "", nil
	}
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to clear flash: %w", err)
	}
	message, _ := flashes[len(flashes)-1].(string)
	return message, nil
}
