package hiveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production omnia API host.
	DefaultBaseURL = "https://api-prod.bgchprod.info:443/omnia"
	// MediaType is the versioned custom media type the API negotiates.
	MediaType = "application/vnd.alertme.zoo-6.5+json"
	// DefaultCaller identifies this client to the API.
	DefaultCaller = "Hive2MQTT"
)

var (
	ErrLoginFailed       = errors.New("hive: login failed")
	ErrMalformedResponse = errors.New("hive: malformed response")
)

// Client is the surface the bridge needs from the Hive cloud API.
type Client interface {
	ListNodes() ([]Node, error)
	SetTargetTemperature(nodeID string, value float64) error
	SetBoost(nodeID string, on bool, durationMinutes int) error
}

// HTTPClient talks to the omnia REST API. Every data call carries the
// session token; an UNAUTHORIZED response triggers exactly one token
// refresh followed by exactly one retry of the same call.
type HTTPClient struct {
	session     *Session
	http        *http.Client
	baseURL     string
	readTimeout time.Duration
	logger      *zap.Logger
}

func CreateHTTPClient(baseURL, username, password string, loginTimeout, readTimeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := &http.Client{}
	return &HTTPClient{
		session:     NewSession(baseURL, username, password, loginTimeout, hc, logger),
		http:        hc,
		baseURL:     baseURL,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Session exposes the session manager, mainly so callers can check
// credentials at startup.
func (c *HTTPClient) Session() *Session {
	return c.session
}

// ListNodes fetches the flat node list for the account.
func (c *HTTPClient) ListNodes() ([]Node, error) {
	body, err := c.doAuthenticated(http.MethodGet, "/nodes", nil)
	if err != nil {
		return nil, err
	}
	var env nodesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	if env.Nodes == nil {
		return nil, fmt.Errorf("%w: missing nodes field", ErrMalformedResponse)
	}
	return env.Nodes, nil
}

// SetTargetTemperature issues a partial update of one node's
// heating_thermostat_v1.targetHeatTemperature.
func (c *HTTPClient) SetTargetTemperature(nodeID string, value float64) error {
	payload := map[string]any{
		"nodes": []any{map[string]any{
			"features": map[string]any{
				FeatureHeatingThermostat: map[string]any{
					AttrTargetHeatTemperature: map[string]any{
						"targetValue": value,
					},
				},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.doAuthenticated(http.MethodPut, "/nodes/"+url.PathEscape(nodeID), body)
	return err
}

// SetBoost is addressable but does not issue a remote call yet: the
// original binding shipped with this write path disabled because the
// payload shape was never confirmed against the API.
// TODO: confirm the activeHeatCoolMode/scheduleLockDuration payload
// against the omnia API contract and enable the call.
func (c *HTTPClient) SetBoost(nodeID string, on bool, durationMinutes int) error {
	c.logger.Warn("hive: boost command ignored, write path disabled",
		zap.String("node", nodeID), zap.Bool("on", on), zap.Int("duration", durationMinutes))
	return nil
}

// doAuthenticated performs one authenticated call with the
// one-refresh-one-retry rule shared by all data calls.
func (c *HTTPClient) doAuthenticated(method, path string, payload []byte) ([]byte, error) {
	if !c.session.EnsureToken() {
		return nil, ErrLoginFailed
	}
	token := c.session.Token()

	status, body, err := c.doOnce(method, path, payload, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// Token expired, get a new one and try again. Once.
		if !c.session.Refresh(token) {
			return nil, ErrLoginFailed
		}
		status, body, err = c.doOnce(method, path, payload, c.session.Token())
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		c.logger.Warn("hive: API error", zap.String("method", method), zap.String("path", path), zap.Int("status", status))
		return nil, fmt.Errorf("hive: unexpected status %d on %s %s", status, method, path)
	}
	return body, nil
}

func (c *HTTPClient) doOnce(method, path string, payload []byte, token string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.readTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", MediaType)
	req.Header.Set("Content-Type", MediaType)
	req.Header.Set("X-Omnia-Client", DefaultCaller)
	req.Header.Set("X-Omnia-Access-Token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
