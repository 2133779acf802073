package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// Android keycode for the hardware back button.
const keycodeBack = 4

// WebDriverClient implements schemas.Driver against a UIAutomator2 automation
// server speaking the W3C WebDriver wire protocol with the usual Appium
// extension endpoints.
type WebDriverClient struct {
	baseURL      string
	sessionID    string
	capabilities map[string]any
	httpClient   *http.Client
	logger       *zap.Logger
}

// wireResponse is the W3C response envelope. Every endpoint wraps its result
// in a "value" member; errors replace it with an error object.
type wireResponse struct {
	Value json.RawMessage `json:"value"`
}

type wireError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

type newSessionResult struct {
	SessionID string `json:"sessionId"`
}

// NewWebDriverClient builds a client from device configuration. No network
// traffic happens until Start.
func NewWebDriverClient(cfg config.DeviceConfig, logger *zap.Logger) (*WebDriverClient, error) {
	caps := map[string]any{
		"platformName":             "Android",
		"appium:automationName":    "UiAutomator2",
		"appium:newCommandTimeout": 300,
	}
	if cfg.CapabilitiesPath != "" {
		raw, err := os.ReadFile(cfg.CapabilitiesPath)
		if err != nil {
			return nil, fmt.Errorf("reading capabilities file: %w", err)
		}
		if err := json.Unmarshal(raw, &caps); err != nil {
			return nil, fmt.Errorf("parsing capabilities file %s: %w", cfg.CapabilitiesPath, err)
		}
	}

	return &WebDriverClient{
		baseURL:      strings.TrimRight(cfg.ServerURL, "/"),
		capabilities: caps,
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:       logger.Named("capture.webdriver"),
	}, nil
}

// Start creates the automation session. The server may still be coming up, so
// transient connection errors are retried with exponential backoff.
func (c *WebDriverClient) Start(ctx context.Context) error {
	payload := map[string]any{
		"capabilities": map[string]any{"alwaysMatch": c.capabilities},
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	b.MaxInterval = 5 * time.Second

	operation := func() error {
		var result newSessionResult
		if err := c.do(ctx, http.MethodPost, "/session", payload, &result); err != nil {
			if isWireRejection(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Automation server not ready, retrying...", zap.Error(err))
			return err
		}
		if result.SessionID == "" {
			return backoff.Permanent(&schemas.TransportError{
				Op:  "new_session",
				Err: fmt.Errorf("server accepted session but returned no session id"),
			})
		}
		c.sessionID = result.SessionID
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return err
	}

	c.logger.Info("WebDriver session established",
		zap.String("session_id", c.sessionID),
		zap.String("server", c.baseURL),
	)
	return nil
}

// PageSource returns the current accessibility hierarchy as XML.
func (c *WebDriverClient) PageSource(ctx context.Context) ([]byte, error) {
	var source string
	if err := c.doSession(ctx, http.MethodGet, "/source", nil, &source); err != nil {
		return nil, err
	}
	return []byte(source), nil
}

// Screenshot returns the current screen as PNG bytes.
func (c *WebDriverClient) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := c.doSession(ctx, http.MethodGet, "/screenshot", nil, &encoded); err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &schemas.TransportError{Op: "screenshot", Err: fmt.Errorf("decoding screenshot: %w", err)}
	}
	return decoded, nil
}

// CurrentPackage returns the package name of the foreground app.
func (c *WebDriverClient) CurrentPackage(ctx context.Context) (string, error) {
	var pkg string
	if err := c.doSession(ctx, http.MethodGet, "/appium/device/current_package", nil, &pkg); err != nil {
		return "", err
	}
	return pkg, nil
}

// Tap performs a W3C pointer tap at the given viewport coordinate.
func (c *WebDriverClient) Tap(ctx context.Context, p schemas.Point) error {
	actions := pointerSequence([]map[string]any{
		{"type": "pointerMove", "duration": 0, "x": p.X, "y": p.Y},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": 80},
		{"type": "pointerUp", "button": 0},
	})
	return c.doSession(ctx, http.MethodPost, "/actions", actions, nil)
}

// Swipe performs a W3C pointer drag from one coordinate to another over the
// given duration.
func (c *WebDriverClient) Swipe(ctx context.Context, from, to schemas.Point, duration time.Duration) error {
	actions := pointerSequence([]map[string]any{
		{"type": "pointerMove", "duration": 0, "x": from.X, "y": from.Y},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": duration.Milliseconds(), "origin": "viewport", "x": to.X, "y": to.Y},
		{"type": "pointerUp", "button": 0},
	})
	return c.doSession(ctx, http.MethodPost, "/actions", actions, nil)
}

// SendKeys types text into the currently focused element.
func (c *WebDriverClient) SendKeys(ctx context.Context, text string) error {
	payload := map[string]any{"value": []string{text}}
	return c.doSession(ctx, http.MethodPost, "/keys", payload, nil)
}

// PressBack presses the Android back button.
func (c *WebDriverClient) PressBack(ctx context.Context) error {
	payload := map[string]any{"keycode": keycodeBack}
	return c.doSession(ctx, http.MethodPost, "/appium/device/press_keycode", payload, nil)
}

// ActivateApp brings the given package to the foreground, launching it if
// needed.
func (c *WebDriverClient) ActivateApp(ctx context.Context, packageName string) error {
	payload := map[string]any{"appId": packageName}
	return c.doSession(ctx, http.MethodPost, "/appium/device/activate_app", payload, nil)
}

// SessionID returns the live session id, empty before Start.
func (c *WebDriverClient) SessionID() string { return c.sessionID }

// Close deletes the automation session. Safe to call without a session.
func (c *WebDriverClient) Close() error {
	if c.sessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.doSession(ctx, http.MethodDelete, "", nil, nil)
	c.sessionID = ""
	return err
}

// doSession issues a request under the current session prefix.
func (c *WebDriverClient) doSession(ctx context.Context, method, path string, payload, out any) error {
	if c.sessionID == "" {
		return &schemas.TransportError{Op: opName(method, path), Err: fmt.Errorf("no active session")}
	}
	return c.do(ctx, method, "/session/"+c.sessionID+path, payload, out)
}

func (c *WebDriverClient) do(ctx context.Context, method, path string, payload, out any) error {
	op := opName(method, path)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &schemas.TransportError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &schemas.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &schemas.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &schemas.TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	var envelope wireResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return &schemas.TransportError{Op: op, Err: fmt.Errorf("malformed response (status %d): %w", resp.StatusCode, err)}
		}
	}

	if resp.StatusCode != http.StatusOK {
		var werr wireError
		if len(envelope.Value) > 0 {
			_ = json.Unmarshal(envelope.Value, &werr)
		}
		if werr.Error == "" {
			werr.Error = fmt.Sprintf("http status %d", resp.StatusCode)
		}
		return &schemas.TransportError{
			Op:  op,
			Err: fmt.Errorf("%s: %s", werr.Error, werr.Message),
		}
	}

	if out != nil && len(envelope.Value) > 0 {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return &schemas.TransportError{Op: op, Err: fmt.Errorf("decoding response value: %w", err)}
		}
	}
	return nil
}

// pointerSequence wraps a list of touch input states into a W3C actions
// payload with a single pointer device.
func pointerSequence(states []map[string]any) map[string]any {
	return map[string]any{
		"actions": []map[string]any{
			{
				"type":       "pointer",
				"id":         "finger1",
				"parameters": map[string]any{"pointerType": "touch"},
				"actions":    states,
			},
		},
	}
}

// opName renders a stable operation label for transport errors, e.g.
// "POST /actions".
func opName(method, path string) string {
	if path == "" {
		path = "/session"
	}
	return method + " " + path
}

// isWireRejection reports whether the error is a definitive server-side
// rejection rather than a connectivity failure worth retrying.
func isWireRejection(err error) bool {
	var terr *schemas.TransportError
	if !errors.As(err, &terr) {
		return false
	}
	msg := terr.Err.Error()
	return strings.Contains(msg, "session not created") ||
		strings.Contains(msg, "invalid argument")
}
