package marstek

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 -- the vendor login contract requires an MD5 password digest
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Production endpoints for the EU cloud.
const (
	DefaultLoginURL   = "https://eu.hamedata.com/app/Solar/v2_get_device.php"
	DefaultDevicesURL = "https://eu.hamedata.com/ems/api/v1/getDeviceList"

	// DefaultTimeout bounds each individual HTTP exchange, including the
	// single retried device-list request after a token refresh.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read. The device
	// list for even a large fleet is a few kilobytes.
	maxResponseSize = 1 << 20 // 1MB
)

// permissionDeniedCode is the device-list response code meaning the account
// has no API access at all (as opposed to an expired token).
const permissionDeniedCode = "8"

// tokenInvalidCodes are the device-list response codes meaning the session
// token is stale or invalid and a refresh should be attempted. The vendor
// sends them as numbers or strings interchangeably; Code normalises both.
var tokenInvalidCodes = map[string]struct{}{
	"-1":  {},
	"401": {},
	"403": {},
}

// ignoredDeviceTypes are product variants excluded from results because they
// report no useful telemetry.
var ignoredDeviceTypes = map[string]struct{}{
	"HME-3": {},
}

// Logger defines the logging interface for the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Client. The zero value selects the production
// endpoints, the default timeout and a shared http.Client.
type Options struct {
	// LoginURL and DevicesURL override the vendor endpoints (tests, proxies).
	LoginURL   string
	DevicesURL string

	// Timeout bounds each HTTP exchange. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying transport.
	HTTPClient *http.Client

	// Logger receives diagnostic output. Defaults to a no-op logger.
	Logger Logger
}

// Client talks to the Marstek Cloud API for one account.
//
// The session token is a field owned exclusively by this instance; separate
// accounts must use separate clients so tokens cannot cross-contaminate.
//
// Thread Safety:
//   - NOT safe for concurrent use. The token cache is unsynchronised by
//     design: each account's client is driven by a single sequential poll
//     cycle (the poller serialises scheduled and manual refreshes).
type Client struct {
	httpClient *http.Client
	loginURL   string
	devicesURL string
	timeout    time.Duration
	logger     Logger

	email    string
	password string

	// token is the current session token. Lifecycle: empty at construction,
	// obtained on first use, refreshed in-call when the server reports it
	// invalid, cleared on a code-8 permission denial.
	token string
}

// NewClient creates a client for one Marstek account.
//
// The credentials are immutable for the lifetime of the client; the password
// is held only to be hashed per login request.
func NewClient(email, password string, opts Options) *Client {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.DevicesURL == "" {
		opts.DevicesURL = DefaultDevicesURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Client{
		httpClient: opts.HTTPClient,
		loginURL:   opts.LoginURL,
		devicesURL: opts.DevicesURL,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		email:      email,
		password:   password,
	}
}

// acquireToken obtains a new session token from the login endpoint.
//
// The password is sent as an MD5 hex digest with the email as query
// parameters; this is the upstream API's login contract, not a security
// choice, and must be preserved bit-for-bit.
func (c *Client) acquireToken(ctx context.Context) error {
	sum := md5.Sum([]byte(c.password)) // #nosec G401 -- upstream login contract

	q := url.Values{}
	q.Set("pwd", hex.EncodeToString(sum[:]))
	q.Set("mailbox", c.email)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.loginURL+"?"+q.Encode(), nil)
	if err != nil {
		c.logger.Error("unexpected error building login request", "error", err)
		return transientf("unexpected error: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(err, "login")
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response body

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("login failed: invalid credentials", "status", resp.StatusCode)
		return fmt.Errorf("%w (HTTP 401)", ErrInvalidCredentials)
	case resp.StatusCode >= http.StatusInternalServerError:
		c.logger.Warn("login: api temporarily unavailable", "status", resp.StatusCode)
		return transientf("API temporarily unavailable (HTTP %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("login returned unexpected status", "status", resp.StatusCode)
		return transientf("API request failed (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return c.classifyTransportError(err, "login")
	}

	var env loginEnvelope
	if err := decodeObject(body, &env); err != nil {
		c.logger.Warn("login returned malformed body", "error", err)
		return err
	}

	if env.Token == "" {
		msg := env.errorMessage()
		c.logger.Error("token request failed", "message", msg)
		return transientf("login failed: %s", msg)
	}

	c.token = string(env.Token)
	c.logger.Info("obtained new api session token")
	return nil
}

// GetDevices fetches the filtered device list for the account.
//
// If no session token is held, one is acquired first (propagating its
// failure unchanged). A token-invalid response code triggers exactly one
// refresh-and-retry; a code-8 response clears the token and fails with
// ErrPermissionDenied. Returned failures are always one of the classified
// kinds in errors.go.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	if c.token == "" {
		if err := c.acquireToken(ctx); err != nil {
			return nil, err
		}
	}

	env, err := c.fetchDevices(ctx)
	if err != nil {
		return nil, err
	}

	// Two-step state machine: one cached-token attempt, then at most one
	// refresh-and-retry when the server reports the token invalid. Failures
	// on the retried request are terminal for this cycle.
	if _, stale := tokenInvalidCodes[env.Code.String()]; stale {
		c.logger.Warn("session token expired or invalid, refreshing", "code", env.Code.String())
		if err := c.acquireToken(ctx); err != nil {
			return nil, err
		}
		env, err = c.fetchDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("retry after token refresh: %w", err)
		}
	}

	if env.Code.String() == permissionDeniedCode {
		// Permission failure, not an expired token: clear the cached token so
		// the next cycle starts clean, and do not retry within this cycle.
		c.token = ""
		c.logger.Warn("api access denied (code 8), token cleared")
		return nil, ErrPermissionDenied
	}

	if env.Data == nil {
		msg := env.errorMessage()
		c.logger.Warn("device list response missing data field",
			"code", env.Code.String(),
			"message", msg,
		)
		return nil, transientf("invalid API response: %s", msg)
	}

	devices, err := decodeDeviceArray(env.Data)
	if err != nil {
		c.logger.Warn("device list data field is not an array")
		return nil, err
	}

	filtered := c.filterDevices(devices)
	c.logger.Debug("retrieved devices", "count", len(filtered))
	return filtered, nil
}

// Validate performs a single synchronous credential check, as used at
// configuration time. It is GetDevices without schedule or backoff: the
// caller surfaces the classified error directly to the operator.
func (c *Client) Validate(ctx context.Context) ([]Device, error) {
	return c.GetDevices(ctx)
}

// fetchDevices issues one device-list request with the current token.
func (c *Client) fetchDevices(ctx context.Context) (*deviceListEnvelope, error) {
	q := url.Values{}
	q.Set("token", c.token)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.devicesURL+"?"+q.Encode(), nil)
	if err != nil {
		c.logger.Error("unexpected error building device list request", "error", err)
		return nil, transientf("unexpected error: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(err, "device list")
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response body

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("device list: api temporarily unavailable", "status", resp.StatusCode)
		return nil, transientf("API temporarily unavailable (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// Lenient: some upstream non-200 replies still carry a valid body.
		c.logger.Warn("device list returned unexpected status", "status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.classifyTransportError(err, "device list")
	}

	var env deviceListEnvelope
	if err := decodeObject(body, &env); err != nil {
		c.logger.Warn("device list returned malformed body", "error", err)
		return nil, err
	}
	return &env, nil
}

// filterDevices drops ignored device types, preserving original order.
func (c *Client) filterDevices(devices []Device) []Device {
	filtered := make([]Device, 0, len(devices))
	for _, d := range devices {
		if _, ignored := ignoredDeviceTypes[d.Type]; ignored {
			continue
		}
		filtered = append(filtered, d)
	}

	if dropped := len(devices) - len(filtered); dropped > 0 {
		c.logger.Debug("filtered ignored device types", "dropped", dropped)
	}
	return filtered
}

// classifyTransportError maps a transport-level failure to a classified kind.
// Cancellation propagates unchanged so shutdown is not reported as an API
// fault.
func (c *Client) classifyTransportError(err error, op string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn(op+" request timed out", "timeout", c.timeout)
		return transientf("API request timeout - check network connection")
	case isNetworkError(err):
		c.logger.Warn("network error during "+op, "error", err)
		return transientf("network error: %v", err)
	default:
		// Truly unexpected; log loudly so it is operable.
		c.logger.Error("unexpected error during "+op, "error", err)
		return transientf("unexpected error: %v", err)
	}
}

// isNetworkError reports whether err is a transport-level fault
// (connection refused, DNS failure, TLS error and similar).
func isNetworkError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// decodeObject parses body as a JSON object into v, classifying the two
// malformed-body cases the API produces: unparseable bodies and parseable
// bodies that are not objects.
func decodeObject(body []byte, v any) error {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || !json.Valid(body) {
		return transientf("API returned invalid response format")
	}
	if trimmed[0] != '{' {
		return transientf("unexpected API response type: %s", jsonTypeName(trimmed[0]))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return transientf("API returned invalid response format")
	}
	return nil
}

// decodeDeviceArray parses the raw data field, requiring a JSON array.
func decodeDeviceArray(raw json.RawMessage) ([]Device, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, transientf("invalid API response structure")
	}
	var devices []Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, transientf("invalid API response structure")
	}
	return devices, nil
}

// jsonTypeName names the JSON type starting with the given byte, for the
// "unexpected API response type" message.
func jsonTypeName(first byte) string {
	switch {
	case first == '[':
		return "array"
	case first == '"':
		return "string"
	case first == 't' || first == 'f':
		return "bool"
	case first == 'n':
		return "null"
	case first == '-' || (first >= '0' && first <= '9'):
		return "number"
	default:
		return "unknown"
	}
}
