package venueconnect

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamClient is a reconnecting WebSocket client for the venue's streaming
// quote feed. It authenticates with the REST session's feed token, keeps the
// subscription set across reconnects, and surfaces parsed quotes through the
// OnQuote callback.

const (
	streamURI         = "wss://stream.venue-connect.example.com/quotes"
	heartBeatMessage  = "ping"
	heartBeatInterval = 10 * time.Second
	maxSubscriptions  = 100
)

// Quote is a single streamed trade update. Price is cents.
type Quote struct {
	Venue  string
	Symbol string
	Price  int64
	Qty    int64
	TS     time.Time // venue timestamp
}

// Instrument identifies one subscribable instrument.
type Instrument struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// StreamConfig holds StreamClient construction options.
type StreamConfig struct {
	URL       string // default: production stream URI
	APIKey    string
	ClientID  string
	FeedToken string

	MaxRetryAttempts int           // reconnect attempts before giving up; default 5
	RetryDelay       time.Duration // base reconnect delay; default 5s
	MaxRetryDelay    time.Duration // backoff cap; default 60s
}

// StreamClient streams quotes from the venue WebSocket.
type StreamClient struct {
	cfg StreamConfig

	conn   *websocket.Conn
	dialer *websocket.Dialer

	mu            sync.Mutex
	subscriptions map[string]Instrument // key = venue:symbol
	closed        bool

	lastPong time.Time

	// Callbacks
	OnQuote func(q Quote)
	OnOpen  func()
	OnClose func()
	OnError func(msg string)

	done chan struct{}
}

// NewStreamClient creates a stream client. The feed token comes from a REST login.
func NewStreamClient(cfg StreamConfig) (*StreamClient, error) {
	if cfg.APIKey == "" || cfg.ClientID == "" || cfg.FeedToken == "" {
		return nil, errors.New("venueconnect: stream requires api key, client id and feed token")
	}
	if cfg.URL == "" {
		cfg.URL = streamURI
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 60 * time.Second
	}
	return &StreamClient{
		cfg:           cfg,
		dialer:        websocket.DefaultDialer,
		subscriptions: make(map[string]Instrument),
		done:          make(chan struct{}),
	}, nil
}

// Connect establishes the WebSocket connection and starts the read and
// heartbeat loops. Subscriptions made before Connect are sent on open.
func (s *StreamClient) Connect() error {
	header := http.Header{}
	header.Set("X-API-Key", s.cfg.APIKey)
	header.Set("X-Client-ID", s.cfg.ClientID)
	header.Set("Authorization", "Bearer "+s.cfg.FeedToken)

	conn, resp, err := s.dialer.Dial(s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			log.Printf("[venueconnect.stream] dial failed, status: %s", resp.Status)
		}
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(appData string) error {
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
		return nil
	})

	go s.readLoop(conn)
	go s.heartbeatLoop(conn)

	if err := s.resubscribe(conn); err != nil {
		log.Printf("[venueconnect.stream] resubscribe on open: %v", err)
	}

	if s.OnOpen != nil {
		s.OnOpen()
	}
	return nil
}

// Close shuts the connection down permanently (no reconnect).
func (s *StreamClient) Close() {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	if !alreadyClosed {
		close(s.done)
	}
}

// Subscribe adds instruments to the subscription set and sends the request
// if connected. The set survives reconnects.
func (s *StreamClient) Subscribe(instruments []Instrument) error {
	s.mu.Lock()
	if len(s.subscriptions)+len(instruments) > maxSubscriptions {
		s.mu.Unlock()
		return fmt.Errorf("venueconnect: subscription quota exceeded (max %d)", maxSubscriptions)
	}
	for _, ins := range instruments {
		s.subscriptions[ins.Venue+":"+ins.Symbol] = ins
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil // queued; sent on connect
	}
	return s.writeSubscription(conn, "subscribe", instruments)
}

// Unsubscribe removes instruments from the subscription set.
func (s *StreamClient) Unsubscribe(instruments []Instrument) error {
	s.mu.Lock()
	for _, ins := range instruments {
		delete(s.subscriptions, ins.Venue+":"+ins.Symbol)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.writeSubscription(conn, "unsubscribe", instruments)
}

func (s *StreamClient) writeSubscription(conn *websocket.Conn, action string, instruments []Instrument) error {
	req := map[string]any{
		"action":      action,
		"instruments": instruments,
	}
	return conn.WriteJSON(req)
}

// resubscribe resends the full stored subscription set.
func (s *StreamClient) resubscribe(conn *websocket.Conn) error {
	s.mu.Lock()
	instruments := make([]Instrument, 0, len(s.subscriptions))
	for _, ins := range s.subscriptions {
		instruments = append(instruments, ins)
	}
	s.mu.Unlock()

	if len(instruments) == 0 {
		return nil
	}
	return s.writeSubscription(conn, "subscribe", instruments)
}

// readLoop reads frames until the connection drops, then hands off to the
// reconnect logic unless the client was closed.
func (s *StreamClient) readLoop(conn *websocket.Conn) {
	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				if s.OnClose != nil {
					s.OnClose()
				}
				return
			}
			log.Printf("[venueconnect.stream] read error: %v", err)
			s.reconnect()
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			q, perr := parseQuoteFrame(message)
			if perr != nil {
				log.Printf("[venueconnect.stream] frame parse error: %v", perr)
				continue
			}
			if s.OnQuote != nil {
				s.OnQuote(q)
			}
		case websocket.TextMessage:
			if string(message) == "pong" {
				s.mu.Lock()
				s.lastPong = time.Now()
				s.mu.Unlock()
				continue
			}
			// JSON quote fallback (test servers send these)
			var jq struct {
				Venue  string `json:"venue"`
				Symbol string `json:"symbol"`
				Price  int64  `json:"price"`
				Qty    int64  `json:"qty"`
				TS     int64  `json:"ts_ms"`
			}
			if err := json.Unmarshal(message, &jq); err == nil && jq.Symbol != "" {
				if s.OnQuote != nil {
					s.OnQuote(Quote{
						Venue:  jq.Venue,
						Symbol: jq.Symbol,
						Price:  jq.Price,
						Qty:    jq.Qty,
						TS:     time.Unix(0, jq.TS*int64(time.Millisecond)).UTC(),
					})
				}
			}
		}
	}
}

// reconnect retries the connection with exponential backoff and resubscribes
// on success.
func (s *StreamClient) reconnect() {
	delay := s.cfg.RetryDelay

	for attempt := 1; attempt <= s.cfg.MaxRetryAttempts; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		log.Printf("[venueconnect.stream] reconnect attempt %d/%d", attempt, s.cfg.MaxRetryAttempts)
		if err := s.Connect(); err == nil {
			return
		}

		delay *= 2
		if delay > s.cfg.MaxRetryDelay {
			delay = s.cfg.MaxRetryDelay
		}
	}

	if s.OnError != nil {
		s.OnError("max reconnect attempts reached, connection closed")
	}
	if s.OnClose != nil {
		s.OnClose()
	}
}

// heartbeatLoop sends periodic pings until the connection is replaced or closed.
func (s *StreamClient) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartBeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte(heartBeatMessage)); err != nil {
				return // readLoop owns reconnect
			}
		}
	}
}

// ---- binary frame parsing ----

// The venue's binary quote frame layout (little-endian):
//
//	[0]      frame type (1 = trade)
//	[1:21]   symbol, NUL-padded ASCII
//	[21:29]  price, int64 cents
//	[29:37]  quantity, int64
//	[37:45]  venue timestamp, int64 epoch millis
//	[45:53]  sequence number, int64
const quoteFrameLen = 53

const frameTypeTrade = 1

func parseQuoteFrame(b []byte) (Quote, error) {
	if len(b) < quoteFrameLen {
		return Quote{}, fmt.Errorf("short frame: %d bytes", len(b))
	}
	if b[0] != frameTypeTrade {
		return Quote{}, fmt.Errorf("unsupported frame type %d", b[0])
	}

	symbol := parseSymbolBytes(b[1:21])
	price := int64(binary.LittleEndian.Uint64(b[21:29]))
	qty := int64(binary.LittleEndian.Uint64(b[29:37]))
	tsMillis := int64(binary.LittleEndian.Uint64(b[37:45]))

	var ts time.Time
	if tsMillis > 0 {
		ts = time.Unix(0, tsMillis*int64(time.Millisecond)).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return Quote{
		Symbol: symbol,
		Price:  price,
		Qty:    qty,
		TS:     ts,
	}, nil
}

func parseSymbolBytes(b []byte) string {
	for i := 0; i < len(b); i++ {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
