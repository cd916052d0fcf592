// Package venueconnect is a REST + WebSocket client for the brokerage venue API.
// It handles the two-factor (TOTP) login flow, session/token refresh, historical
// candle retrieval, market order placement, and account reads (positions, funds).
//
// Usage example:
//
//	vc := venueconnect.NewClient(venueconnect.Config{APIKey: "your_api_key"})
//	sess, err := vc.LoginWithTOTPSecret(ctx, "CLIENTID", "PASSWORD", "TOTPSECRET")
//	if err != nil { log.Fatal(err) }
//	fmt.Println("Logged in, feed token:", sess.FeedToken)
//	orderID, err := vc.PlaceMarketOrder(ctx, venueconnect.OrderRequest{
//	    Venue: "NYSE", Symbol: "VOO", Side: "BUY", Qty: 10,
//	})
package venueconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Config holds client construction options.
type Config struct {
	APIKey string

	RootURL    string        // default: https://api.venue-connect.example.com
	Timeout    time.Duration // default: 7s
	Debug      bool
	ProxyURL   string // optional HTTP proxy URL
	DisableSSL bool   // if true, InsecureSkipVerify (testing only)
}

const defaultRoot = "https://api.venue-connect.example.com"

var routes = map[string]string{
	"auth.login":   "/rest/auth/v1/session/login",
	"auth.logout":  "/rest/secure/v1/session/logout",
	"auth.refresh": "/rest/auth/v1/session/refresh",

	"order.place": "/rest/secure/v1/orders",

	"account.positions": "/rest/secure/v1/account/positions",
	"account.funds":     "/rest/secure/v1/account/funds",

	"data.candles": "/rest/secure/v1/historical/candles",
	"data.ltp":     "/rest/secure/v1/quotes/ltp",
}

// Session holds the tokens returned by a successful login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	FeedToken    string `json:"feed_token"`
	ClientID     string `json:"client_id"`
}

// OrderRequest describes a market order to be placed.
type OrderRequest struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
	Side   string `json:"side"` // "BUY" or "SELL"
	Qty    int64  `json:"qty"`
}

// Position is a single open position as reported by the venue.
type Position struct {
	Venue    string `json:"venue"`
	Symbol   string `json:"symbol"`
	NetQty   int64  `json:"net_qty"`
	AvgPrice int64  `json:"avg_price"` // cents
}

// Funds reports the cash available for trading.
type Funds struct {
	AvailableCash int64 `json:"available_cash"` // cents
	Currency      string `json:"currency"`
}

// Candle is one historical OHLCV candle. Prices are cents.
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   int64     `json:"open"`
	High   int64     `json:"high"`
	Low    int64     `json:"low"`
	Close  int64     `json:"close"`
	Volume int64     `json:"volume"`
}

// CandleRequest selects a historical candle range.
// Interval is the bar period in seconds (60, 3600, 86400).
type CandleRequest struct {
	Venue    string
	Symbol   string
	Interval int
	From     time.Time
	To       time.Time
}

// apiEnvelope is the common response wrapper on every REST endpoint.
type apiEnvelope struct {
	Status    bool            `json:"status"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// Client is the REST venue client. Safe for use from a single goroutine;
// token mutation happens only through Login/Refresh.
type Client struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	clientID     string

	rootURL string
	debug   bool

	httpClient *http.Client

	// SessionExpiryHook is called when the venue rejects a request with
	// 401/403 token errors. Typically used to trigger a fresh login.
	SessionExpiryHook func()
}

// NewClient creates a venue REST client.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		debug:      cfg.Debug,
		httpClient: &http.Client{Transport: tr, Timeout: cfg.Timeout},
	}
}

// FeedToken returns the streaming feed token from the current session.
func (c *Client) FeedToken() string { return c.feedToken }

// AccessToken returns the current REST access token.
func (c *Client) AccessToken() string { return c.accessToken }

// ClientID returns the logged-in client id.
func (c *Client) ClientID() string { return c.clientID }

// SetSession installs externally persisted tokens (e.g. restored from disk).
func (c *Client) SetSession(s Session) {
	c.accessToken = s.AccessToken
	c.refreshToken = s.RefreshToken
	c.feedToken = s.FeedToken
	c.clientID = s.ClientID
}

// ---- request plumbing ----

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-API-Key", c.apiKey)
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("venueconnect: unknown route %q", route)
	}
	return c.rootURL + uri, nil
}

// doRequest performs a JSON request/response round trip and unpacks the
// standard envelope. Returns the raw data payload for the caller to decode.
func (c *Client) doRequest(ctx context.Context, method, route string, params map[string]any) (json.RawMessage, error) {
	fullURL, err := c.buildURL(route)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	reqURL := fullURL

	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, _ := json.Marshal(params)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Printf("[venueconnect] request: %s %s params=%v", method, reqURL, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("venueconnect: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("venueconnect: read response: %w", err)
	}

	if c.debug {
		log.Printf("[venueconnect] response: code=%d body=%s", resp.StatusCode, string(raw))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("venueconnect: parse response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil && env.ErrorCode == "TOKEN_EXPIRED" {
			c.SessionExpiryHook()
		}
		return nil, fmt.Errorf("venueconnect: %s: %s %s", route, env.ErrorCode, env.Message)
	}
	if !env.Status {
		return nil, fmt.Errorf("venueconnect: %s failed: %s %s", route, env.ErrorCode, env.Message)
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, route string, params map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, route, params)
}
func (c *Client) post(ctx context.Context, route string, params map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, route, params)
}

// ---- auth ----

// Login performs the password + TOTP code login and stores the session tokens.
func (c *Client) Login(ctx context.Context, clientID, password, totpCode string) (Session, error) {
	data, err := c.post(ctx, "auth.login", map[string]any{
		"client_id": clientID,
		"password":  password,
		"totp":      totpCode,
	})
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("venueconnect: decode session: %w", err)
	}
	if sess.AccessToken == "" || sess.FeedToken == "" {
		return Session{}, errors.New("venueconnect: login returned empty tokens")
	}
	if sess.ClientID == "" {
		sess.ClientID = clientID
	}
	c.SetSession(sess)
	return sess, nil
}

// LoginWithTOTPSecret generates the current TOTP code from the shared secret
// and performs Login. This is the flow services use at session start.
func (c *Client) LoginWithTOTPSecret(ctx context.Context, clientID, password, totpSecret string) (Session, error) {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return Session{}, fmt.Errorf("venueconnect: generate totp: %w", err)
	}
	return c.Login(ctx, clientID, password, code)
}

// RefreshSession exchanges the refresh token for a new access token pair.
func (c *Client) RefreshSession(ctx context.Context) (Session, error) {
	if c.refreshToken == "" {
		return Session{}, errors.New("venueconnect: no refresh token")
	}
	data, err := c.post(ctx, "auth.refresh", map[string]any{
		"refresh_token": c.refreshToken,
	})
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("venueconnect: decode session: %w", err)
	}
	if sess.ClientID == "" {
		sess.ClientID = c.clientID
	}
	c.SetSession(sess)
	return sess, nil
}

// Logout terminates the current session at the venue.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "auth.logout", map[string]any{"client_id": c.clientID})
	return err
}

// ---- orders ----

// PlaceMarketOrder places a market order and returns the venue order id.
func (c *Client) PlaceMarketOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", fmt.Errorf("venueconnect: invalid qty %d", req.Qty)
	}
	side := strings.ToUpper(req.Side)
	if side != "BUY" && side != "SELL" {
		return "", fmt.Errorf("venueconnect: invalid side %q", req.Side)
	}

	data, err := c.post(ctx, "order.place", map[string]any{
		"venue":      req.Venue,
		"symbol":     req.Symbol,
		"side":       side,
		"qty":        req.Qty,
		"order_type": "MARKET",
		"duration":   "DAY",
	})
	if err != nil {
		return "", err
	}

	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("venueconnect: decode order response: %w", err)
	}
	if out.OrderID == "" {
		return "", errors.New("venueconnect: empty order id in response")
	}
	return out.OrderID, nil
}

// ---- account ----

// Positions returns all open positions for the session account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	data, err := c.get(ctx, "account.positions", nil)
	if err != nil {
		return nil, err
	}
	var out []Position
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("venueconnect: decode positions: %w", err)
	}
	return out, nil
}

// AvailableFunds returns the cash balance available for new orders.
func (c *Client) AvailableFunds(ctx context.Context) (Funds, error) {
	data, err := c.get(ctx, "account.funds", nil)
	if err != nil {
		return Funds{}, err
	}
	var out Funds
	if err := json.Unmarshal(data, &out); err != nil {
		return Funds{}, fmt.Errorf("venueconnect: decode funds: %w", err)
	}
	return out, nil
}

// ---- market data ----

// HistoricalCandles fetches candles for one instrument and interval.
// The venue caps single requests, so callers page by [From, To).
func (c *Client) HistoricalCandles(ctx context.Context, req CandleRequest) ([]Candle, error) {
	if req.Interval <= 0 {
		return nil, fmt.Errorf("venueconnect: invalid interval %d", req.Interval)
	}
	data, err := c.post(ctx, "data.candles", map[string]any{
		"venue":    req.Venue,
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"from":     req.From.UTC().Format(time.RFC3339),
		"to":       req.To.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	var out []Candle
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("venueconnect: decode candles: %w", err)
	}
	return out, nil
}

// LastTradedPrice returns the last traded price in cents for one instrument.
func (c *Client) LastTradedPrice(ctx context.Context, venue, symbol string) (int64, error) {
	data, err := c.get(ctx, "data.ltp", map[string]any{
		"venue":  venue,
		"symbol": symbol,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Price int64 `json:"price"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("venueconnect: decode ltp: %w", err)
	}
	return out.Price, nil
}
