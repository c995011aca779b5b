// Package whatsapp connects to a WhatsApp bridge over WebSocket.
// The bridge process owns the WhatsApp session (auth, encryption, the
// multi-device protocol); this package exchanges JSON frames with it:
// inbound events plus request/response RPCs for everything the bot sends.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/wabot/internal/channels"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

const (
	channelName = "whatsapp"

	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
	handshake      = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxFrameBytes  = 64 << 20 // media downloads arrive base64 in one frame
	defaultTimeout = 30 * time.Second
)

// Config configures the bridge connection.
type Config struct {
	URL            string
	Token          string // sent as a bearer token on the handshake
	RequestTimeout time.Duration
	SendRPS        float64 // outbound sends per second; <= 0 disables throttling
	SendBurst      int
}

// Hooks are optional callbacks for bridge notifications.
type Hooks struct {
	OnReady func(self transport.Identity)
	OnGroup func(chatID, subject string)
}

// Channel is the bridge client. It implements channels.Channel and
// transport.MediaTransport.
type Channel struct {
	*channels.BaseChannel
	cfg     Config
	hooks   Hooks
	limiter *rate.Limiter

	mu        sync.Mutex // guards conn, connected, self
	conn      *websocket.Conn
	connected bool
	self      transport.Identity

	writeMu sync.Mutex // serializes frame writes

	pendingMu sync.Mutex
	pending   map[string]chan result

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	minBackoff time.Duration
}

type result struct {
	frame inboundFrame
	err   error
}

// New creates a bridge client delivering events to handler.
func New(cfg Config, handler transport.EventHandler, hooks Hooks) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("whatsapp bridge url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.SendRPS > 0 {
		limit = rate.Limit(cfg.SendRPS)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(channelName, handler),
		cfg:         cfg,
		hooks:       hooks,
		limiter:     rate.NewLimiter(limit, burst),
		pending:     make(map[string]chan result),
		minBackoff:  minBackoff,
	}, nil
}

// Start connects to the bridge and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.URL)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(); err != nil {
		// Don't fail hard, the listen loop keeps retrying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Run starts the channel and blocks until ctx is done, then stops it.
func (c *Channel) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Stop(stopCtx)
}

// Stop closes the connection and fails pending requests.
func (c *Channel) Stop(ctx context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}
	c.dropConn()
	c.SetRunning(false)

	if c.done != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// IsConnected reports whether the socket is up.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Self returns the bot identity announced by the bridge.
func (c *Channel) Self() transport.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshake

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(c.ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.URL)
	return nil
}

// dropConn closes the socket and fails every pending request.
func (c *Channel) dropConn() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- result{err: transport.ErrNotConnected}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	defer close(c.done)
	backoff := c.minBackoff

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = c.minBackoff
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("whatsapp read error, will reconnect", "error", err)
			}
			c.dropConn()
			continue
		}

		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		c.handleFrame(f)
	}
}

func (c *Channel) handleFrame(f inboundFrame) {
	switch f.Type {
	case frameReady:
		if f.Self == nil {
			return
		}
		c.mu.Lock()
		c.self = *f.Self
		c.mu.Unlock()
		slog.Info("whatsapp bridge ready", "self", f.Self.ID)
		if c.hooks.OnReady != nil {
			c.hooks.OnReady(*f.Self)
		}

	case frameMessage:
		if f.Event == nil || f.Event.ChatID == "" {
			return
		}
		slog.Debug("whatsapp message received",
			"chat_id", f.Event.ChatID,
			"sender_id", f.Event.Sender(),
			"id", f.Event.ID,
		)
		c.HandleEvent(c.ctx, f.Event)

	case frameGroup:
		if c.hooks.OnGroup != nil && f.ID != "" {
			c.hooks.OnGroup(f.ID, f.Subject)
		}

	case frameResponse:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- result{frame: f}
		} else {
			slog.Debug("whatsapp response for unknown request", "id", f.ID)
		}

	default:
		slog.Debug("unhandled whatsapp frame", "type", f.Type)
	}
}

// call sends one RPC and waits for its response, decoding data into out.
func (c *Channel) call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}

	id := uuid.NewString()
	data, err := json.Marshal(requestFrame{Type: frameRequest, ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	ch := make(chan result, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("%s: %w: %v", method, transport.ErrNotConnected, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%s: %w", method, res.err)
		}
		if !res.frame.OK {
			msg := res.frame.Error
			if msg == "" {
				msg = "request failed"
			}
			return &BridgeError{Method: method, Message: msg}
		}
		if out != nil && len(res.frame.Data) > 0 && string(res.frame.Data) != "null" {
			if err := json.Unmarshal(res.frame.Data, out); err != nil {
				return fmt.Errorf("decode %s response: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		forget()
		return fmt.Errorf("%s: bridge did not answer within %s", method, c.cfg.RequestTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

// BridgeError is an error reported by the bridge for one request.
type BridgeError struct {
	Method  string
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge %s: %s", e.Method, e.Message)
}

// IsBridgeError reports whether err was returned by the bridge itself.
func IsBridgeError(err error) bool {
	var be *BridgeError
	return errors.As(err, &be)
}
