package hiveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session owns the bearer token for one account. Credentials are set
// once at construction; the token is refreshed reactively when a data
// call reports it invalid. There is no local expiry clock.
type Session struct {
	mu       sync.Mutex
	token    string
	username string
	password string

	baseURL      string
	caller       string
	http         *http.Client
	loginTimeout time.Duration
	logger       *zap.Logger
}

func NewSession(baseURL, username, password string, loginTimeout time.Duration, httpClient *http.Client, logger *zap.Logger) *Session {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Session{
		baseURL:      baseURL,
		caller:       DefaultCaller,
		username:     username,
		password:     password,
		http:         httpClient,
		loginTimeout: loginTimeout,
		logger:       logger,
	}
}

// Token returns the current token, possibly empty.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// EnsureToken makes sure a token is available. A present token is
// trusted as-is; its validity is confirmed lazily by the caller's next
// data call. Returns false only when no token is held and login fails.
func (s *Session) EnsureToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return true
	}
	return s.loginLocked()
}

// Refresh replaces a token that a data call found invalid. If another
// caller already replaced it, the newer token is kept and no login is
// performed. Returns false when a login was attempted and failed; the
// stale token is left in place so degraded operation can continue.
func (s *Session) Refresh(usedToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.token != usedToken {
		return true
	}
	return s.loginLocked()
}

func (s *Session) loginLocked() bool {
	payload, err := json.Marshal(loginRequest{
		Sessions: []loginCredentials{{
			Caller:   s.caller,
			Username: s.username,
			Password: s.password,
		}},
	})
	if err != nil {
		s.logger.Error("hive login: could not encode credentials", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.loginTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/sessions", bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("hive login: could not build request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", MediaType)
	req.Header.Set("X-Omnia-Client", s.caller)

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("hive login: could not reach API", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("hive login: API error", zap.String("status", resp.Status))
		return false
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		s.logger.Warn("hive login: malformed response", zap.Error(err))
		return false
	}
	if len(lr.Sessions) == 0 || lr.Sessions[0].SessionID == "" {
		s.logger.Warn("hive login: API did not provide a session token")
		return false
	}
	s.token = lr.Sessions[0].SessionID
	return true
}
