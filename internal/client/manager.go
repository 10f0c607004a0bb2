package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired is returned when a 401 could not be recovered by a
// refresh; the manager has already cleared the session state.
var ErrSessionExpired = errors.New("session expired")

// ErrNotLoggedIn is returned for authenticated calls without a session.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError carries a handled server failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Manager owns the session state: the token pair, the current user, a
// backing Store, and the proactive refresh timer. Session state is an
// explicit dependency of every request, never a package-level global.
type Manager struct {
	baseURL string
	hc      *http.Client
	store   Store

	mu   sync.Mutex
	sess *Session

	// serializes refreshes; held across the whole round trip so
	// concurrent 401s collapse into a single token exchange
	refreshMu sync.Mutex

	// proactive refresh scheduling
	accessTTL     time.Duration
	refreshMargin time.Duration
	timer         *time.Timer

	onLogout func()
}

// NewManager builds a Manager against the given API base URL
// (e.g. "http://localhost:8080/api"). Pass nil to use
// http.DefaultClient.
func NewManager(baseURL string, store Store, hc *http.Client) *Manager {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Manager{
		baseURL:       strings.TrimRight(baseURL, "/"),
		hc:            hc,
		store:         store,
		accessTTL:     15 * time.Minute,
		refreshMargin: 5 * time.Minute,
	}
}

// SetRefreshWindow overrides the proactive refresh schedule: the timer
// fires margin before the access token's ttl elapses.
func (m *Manager) SetRefreshWindow(ttl, margin time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessTTL = ttl
	m.refreshMargin = margin
}

// OnLogout registers a callback fired when the session is cleared
// because a refresh failed.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = fn
}

// Restore loads a previously saved session from the store.
func (m *Manager) Restore() error {
	sess, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	if sess != nil {
		m.scheduleRefresh()
	}
	return nil
}

// CurrentUser returns the logged-in user, or nil.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return m.sess.User
}

// LoggedIn reports whether a session is held.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// Signup creates an account. It does not log in.
func (m *Manager) Signup(ctx context.Context, username, email, password string) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	err := m.post(ctx, "/auth/signup", map[string]string{
		"username": username, "email": email, "password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login authenticates, stores the returned session and starts the
// proactive refresh timer.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         *User  `json:"user"`
	}
	err := m.post(ctx, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sess := &Session{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, User: resp.User}
	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	if err := m.store.Save(sess); err != nil {
		return nil, err
	}
	m.scheduleRefresh()
	return resp.User, nil
}

// Logout drops the session locally.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.sess = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	return m.store.Clear()
}

// Activity resets the proactive refresh timer. Call it on user input so
// an idle-but-open session does not silently expire mid-use.
func (m *Manager) Activity() {
	m.scheduleRefresh()
}

// Close stops background timers; the session itself is kept.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) scheduleRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return
	}
	delay := m.accessTTL - m.refreshMargin
	if delay <= 0 {
		delay = m.accessTTL / 2
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		stale := ""
		if m.sess != nil {
			stale = m.sess.AccessToken
		}
		m.mu.Unlock()
		if stale == "" {
			return
		}
		if err := m.refresh(context.Background(), stale); err != nil {
			m.expire()
			return
		}
		m.scheduleRefresh()
	})
}

// refresh exchanges the refresh token for a new pair. The stale access
// token collapses concurrent attempts: whoever waited on refreshMu
// while another call replaced the token returns without a round trip.
func (m *Manager) refresh(ctx context.Context, staleAccess string) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	if m.sess.AccessToken != staleAccess {
		m.mu.Unlock()
		return nil
	}
	refreshToken := m.sess.RefreshToken
	m.mu.Unlock()

	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := m.post(ctx, "/auth/refresh", map[string]string{"refreshToken": refreshToken}, &resp); err != nil {
		return err
	}

	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	m.sess.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		// server rotates refresh tokens; keep the new one
		m.sess.RefreshToken = resp.RefreshToken
	}
	sess := *m.sess
	m.mu.Unlock()
	return m.store.Save(&sess)
}

// expire clears all session state and signals logout.
func (m *Manager) expire() {
	m.mu.Lock()
	m.sess = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	fn := m.onLogout
	m.mu.Unlock()
	_ = m.store.Clear()
	if fn != nil {
		fn()
	}
}

// post issues an unauthenticated request (login, signup, refresh).
func (m *Manager) post(ctx context.Context, path string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// do issues an authenticated request. On 401 it performs exactly one
// refresh-and-retry; if the refresh fails the session is cleared and
// ErrSessionExpired returned.
func (m *Manager) do(ctx context.Context, method, path string, body, out interface{}) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	access := m.sess.AccessToken
	m.mu.Unlock()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	status, err := m.attempt(ctx, method, path, payload, access, out)
	if err != nil || status != http.StatusUnauthorized {
		return err
	}

	// one transparent refresh-and-retry
	if err := m.refresh(ctx, access); err != nil {
		m.expire()
		return ErrSessionExpired
	}
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrSessionExpired
	}
	access = m.sess.AccessToken
	m.mu.Unlock()

	status, err = m.attempt(ctx, method, path, payload, access, out)
	if err == nil && status == http.StatusUnauthorized {
		// a fresh access token was still rejected; the session is unusable
		m.expire()
		return ErrSessionExpired
	}
	return err
}

// attempt runs a single HTTP round trip. A 401 is reported via the
// returned status with a nil error so the caller can decide to retry.
func (m *Manager) attempt(ctx context.Context, method, path string, payload []byte, access string, out interface{}) (int, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := m.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return http.StatusUnauthorized, nil
	}
	return resp.StatusCode, decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
