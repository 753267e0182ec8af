package telematics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"linehaul/config"
)

// Position is a device's last reported location.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	DateTime  time.Time `json:"dateTime"`
}

// Client talks to the fleet JSON-RPC API.
type Client struct {
	baseURL    string
	database   string
	username   string
	password   string
	ttl        time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	sessions   SessionCache
	log        zerolog.Logger
}

// NewClient builds a client from cfg. A sealed password is opened with the
// configured seal key.
func NewClient(cfg config.TelematicsConfig, sessions SessionCache, log zerolog.Logger) (*Client, error) {
	var key []byte
	if cfg.SealKey != "" {
		k, err := ParseKey(cfg.SealKey)
		if err != nil {
			return nil, err
		}
		key = k
	}
	password, err := Unseal(key, cfg.Password)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = NewMemorySessionCache()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		database:   cfg.Database,
		username:   cfg.Username,
		password:   password,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		sessions:   sessions,
		log:        log,
	}, nil
}

func (c *Client) cacheKey() string {
	return c.database + "/" + c.username
}

// DevicePosition returns the latest position of the device named truck.
// An expired session is evicted and the call retried once.
func (c *Client) DevicePosition(ctx context.Context, truck string) (*Position, error) {
	var out []Position
	params := map[string]any{
		"typeName": "DeviceStatusInfo",
		"search":   map[string]any{"deviceSearch": map[string]any{"name": truck}},
	}
	err := c.withSession(ctx, func(s *Session) error {
		params["credentials"] = s
		return c.call(ctx, "Get", params, &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoPosition, truck)
	}
	return &out[0], nil
}

func (c *Client) withSession(ctx context.Context, fn func(*Session) error) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if !errors.Is(err, errSessionExpired) {
		return err
	}
	c.log.Info().Str("user", c.username).Msg("telematics session expired, re-authenticating")
	if err := c.sessions.Delete(ctx, c.cacheKey()); err != nil {
		c.log.Warn().Err(err).Msg("telematics session evict")
	}
	if s, err = c.session(ctx); err != nil {
		return err
	}
	err = fn(s)
	if errors.Is(err, errSessionExpired) {
		return fmt.Errorf("%w: session rejected after re-authentication", ErrUpstream)
	}
	return err
}

func (c *Client) session(ctx context.Context) (*Session, error) {
	s, ok, err := c.sessions.Get(ctx, c.cacheKey())
	if err != nil {
		c.log.Warn().Err(err).Msg("telematics session cache read")
	}
	if ok {
		return s, nil
	}
	s, err = c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Set(ctx, c.cacheKey(), s, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("telematics session cache write")
	}
	return s, nil
}

// Authenticate opens a new API session.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	var res struct {
		Credentials Session `json:"credentials"`
	}
	err := c.call(ctx, "Authenticate", map[string]any{
		"database": c.database,
		"userName": c.username,
		"password": c.password,
	}, &res)
	if errors.Is(err, errSessionExpired) {
		return nil, fmt.Errorf("%w: authentication rejected for %s", ErrUpstream, c.username)
	}
	if err != nil {
		return nil, err
	}
	if res.Credentials.SessionID == "" {
		return nil, fmt.Errorf("%w: authentication returned no session", ErrUpstream)
	}
	return &res.Credentials, nil
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"method": method, "params": params})
	if err != nil {
		return fmt.Errorf("telematics marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, method, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized:
		return errSessionExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s HTTP %d: %s", ErrUpstream, method, resp.StatusCode, string(data))
	}

	var env struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %s decode: %v", ErrUpstream, method, err)
	}
	if env.Error != nil {
		return classifyRPC(env.Error)
	}
	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("%w: %s decode result: %v", ErrUpstream, method, err)
		}
	}
	return nil
}

func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
