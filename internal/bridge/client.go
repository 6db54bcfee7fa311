package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/gyre/internal/detector"
)

// ErrNotConnected is returned when sending while the socket is down.
var ErrNotConnected = errors.New("bridge not connected")

// Config tunes the connection.
type Config struct {
	Watchdog         time.Duration // force a reconnect after this long without a message
	Keepalive        time.Duration // ping interval
	BaseDelay        time.Duration // first reconnect delay
	MaxDelay         time.Duration // reconnect delay cap
	HandshakeTimeout time.Duration
	HandsTTL         time.Duration // hands older than this are treated as absent
}

// DefaultConfig returns the standard connection tuning.
func DefaultConfig() Config {
	return Config{
		Watchdog:         2500 * time.Millisecond,
		Keepalive:        time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		HandsTTL:         500 * time.Millisecond,
	}
}

// Observer receives connection events.
type Observer interface {
	ObserveBridgeMessage(kind string)
	ObserveBridgeMalformed()
	ObserveBridgeReconnect()
}

type nopObserver struct{}

func (nopObserver) ObserveBridgeMessage(string) {}
func (nopObserver) ObserveBridgeMalformed()     {}
func (nopObserver) ObserveBridgeReconnect()     {}

// Latest is the most recent data received from the bridge.
type Latest struct {
	Hands         []detector.Hand
	HandsAt       time.Time
	Frame         image.Image
	FrameAt       time.Time
	CenterDepthMM float64
	Status        Status
	Connected     bool
}

// Client is a reconnecting bridge connection. Received data is kept in
// last-write-wins fields that the render tick reads with Latest.
type Client struct {
	url      string
	cfg      Config
	logger   *slog.Logger
	observer Observer
	dialer   websocket.Dialer

	// OnStatus is called when the bridge reports its camera status.
	OnStatus func(Status)
	// OnConnect is called from the connection goroutine after every
	// successful dial, before the first keepalive.
	OnConnect func()

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	latest  Latest
	lastMsg atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client for url. The URL is normalised with NormalizeURL.
func NewClient(url string, cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = def.Watchdog
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = def.Keepalive
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.HandsTTL <= 0 {
		cfg.HandsTTL = def.HandsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:      NormalizeURL(url),
		cfg:      cfg,
		logger:   logger.With("component", "bridge.client"),
		observer: nopObserver{},
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// SetObserver installs an observer for connection events.
func (c *Client) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

// URL returns the normalised bridge URL.
func (c *Client) URL() string {
	return c.url
}

// Start connects in the background and keeps reconnecting until Close.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	return nil
}

// Connected reports whether the socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Latest returns a copy of the most recent bridge data.
func (c *Client) Latest() Latest {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.latest
	l.Connected = c.conn != nil
	return l
}

// Hands returns the most recent hand list. It is empty when the bridge
// reported none, the list has gone stale or the connection is down.
func (c *Client) Hands(now time.Time) []detector.Hand {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || now.Sub(c.latest.HandsAt) > c.cfg.HandsTTL {
		return nil
	}
	return c.latest.Hands
}

// Send writes a command to the bridge.
func (c *Client) Send(cmd Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	return nil
}

// SetConfig tells the bridge which target and vision source to stream.
func (c *Client) SetConfig(targetIP, visionSource string) error {
	return c.Send(Command{
		Command: CommandSetConfig,
		Config:  &RemoteConfig{TargetIP: targetIP, VisionSource: visionSource},
	})
}

// GetStatus asks the bridge for its camera status.
func (c *Client) GetStatus() error {
	return c.Send(Command{Command: CommandGetStatus})
}

// Ping sends a heartbeat; the bridge answers with a pong.
func (c *Client) Ping() error {
	return c.Send(Command{Command: CommandPing})
}

// RestartCamera asks the bridge to reopen its camera.
func (c *Client) RestartCamera() error {
	return c.Send(Command{Command: CommandRestartCamera})
}

// run dials, serves and reconnects with exponential backoff.
func (c *Client) run(ctx context.Context) {
	delay := c.cfg.BaseDelay
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("bridge dial failed", "url", c.url, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
			continue
		}

		if !first {
			c.observer.ObserveBridgeReconnect()
			c.logger.Info("bridge reconnected", "url", c.url)
		} else {
			c.logger.Info("bridge connected", "url", c.url)
		}
		first = false
		delay = c.cfg.BaseDelay

		c.serve(ctx, conn)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c.lastMsg.Store(time.Now().UnixNano())

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// serve runs until the connection drops or the watchdog fires.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn)
	}()

	c.GetStatus()
	if c.OnConnect != nil {
		c.OnConnect()
	}

	ticker := time.NewTicker(c.cfg.Keepalive)
	defer ticker.Stop()

	watchdog := time.NewTicker(c.cfg.Watchdog / 5)
	defer watchdog.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-readErr:
			c.logger.Warn("bridge connection lost", "error", err)
			readErr = nil
			break loop
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
			}
		case <-watchdog.C:
			silent := time.Since(time.Unix(0, c.lastMsg.Load()))
			if silent > c.cfg.Watchdog {
				c.logger.Warn("bridge watchdog expired", "silent", silent)
				break loop
			}
		}
	}

	c.mu.Lock()
	c.conn = nil
	c.latest.Hands = nil
	c.mu.Unlock()

	conn.Close()
	if readErr != nil {
		<-readErr
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.lastMsg.Store(time.Now().UnixNano())
		c.handle(data)
	}
}

// handle applies one message. Malformed messages are dropped.
func (c *Client) handle(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("discarding malformed bridge message", "error", err)
		c.observer.ObserveBridgeMalformed()
		return
	}

	now := time.Now()

	if env.Image != "" {
		img, err := decodeImage(env.Image)
		if err != nil {
			c.logger.Debug("discarding bad bridge frame", "error", err)
			c.observer.ObserveBridgeMalformed()
		} else {
			c.mu.Lock()
			c.latest.Frame = img
			c.latest.FrameAt = now
			c.mu.Unlock()
			c.observer.ObserveBridgeMessage("image")
		}
	}

	if env.Hands != nil {
		c.mu.Lock()
		c.latest.Hands = *env.Hands
		c.latest.HandsAt = now
		c.mu.Unlock()
		c.observer.ObserveBridgeMessage(TypeGesture)
	}

	if env.CenterDepthMM != nil {
		c.mu.Lock()
		c.latest.CenterDepthMM = *env.CenterDepthMM
		c.mu.Unlock()
		c.observer.ObserveBridgeMessage("depth")
	}

	switch env.Type {
	case TypeStatus:
		var st Status
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			c.logger.Debug("discarding malformed status", "error", err)
			c.observer.ObserveBridgeMalformed()
			return
		}
		c.mu.Lock()
		c.latest.Status = st
		c.mu.Unlock()
		c.observer.ObserveBridgeMessage(TypeStatus)
		c.logger.Info("bridge status", "device", st.DeviceName, "width", st.ResW, "height", st.ResH, "align", st.AlignMode)
		if c.OnStatus != nil {
			c.OnStatus(st)
		}
	case TypePong:
		c.observer.ObserveBridgeMessage(TypePong)
	}
}

// decodeImage decodes a base64 JPEG frame.
func decodeImage(b64 string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decode jpeg: empty image")
	}
	return mat.ToImage()
}
