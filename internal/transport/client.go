package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
)

// ErrBackpressure is returned when the send queue is full.
var ErrBackpressure = errors.New("send queue full")

// WSConfig configures a WSClient.
type WSConfig struct {
	BaseURL        string // ws://host:port
	Room           string
	Username       string
	Role           protocol.Role
	Codec          protocol.Codec // defaults to JSON
	ReconnectDelay time.Duration
	BufferSize     int
	Dialer         *websocket.Dialer
}

// RoomURL builds the relay URL for a room member.
func RoomURL(base, room, username string, role protocol.Role, codec protocol.Codec) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/ws/rooms/" + url.PathEscape(room))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("user", username)
	q.Set("role", role.String())
	if codec != nil && codec.Binary() {
		q.Set("codec", "msgpack")
	} else {
		q.Set("codec", "json")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WSClient is a protocol.Transport over a relay websocket. It redials after
// ReconnectDelay whenever the link drops; messages published while
// disconnected are dropped.
type WSClient struct {
	url    string
	room   string
	codec  protocol.Codec
	dialer *websocket.Dialer
	delay  time.Duration
	log    *logrus.Entry

	in  chan protocol.Envelope
	out chan protocol.Envelope

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected atomic.Bool

	running   atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sent       atomic.Uint64
	received   atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
}

// NewWSClient validates cfg and prepares a client. Call Start to connect.
func NewWSClient(cfg WSConfig) (*WSClient, error) {
	if cfg.Room == "" || cfg.Username == "" {
		return nil, fmt.Errorf("ws client: room and username required")
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSONCodec{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	u, err := RoomURL(cfg.BaseURL, cfg.Room, cfg.Username, cfg.Role, cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("ws client: %w", err)
	}

	return &WSClient{
		url:    u,
		room:   cfg.Room,
		codec:  cfg.Codec,
		dialer: cfg.Dialer,
		delay:  cfg.ReconnectDelay,
		log: logger.Log.WithFields(logrus.Fields{
			"component": "ws-client",
			"room":      cfg.Room,
			"user":      cfg.Username,
		}),
		in:     make(chan protocol.Envelope, cfg.BufferSize),
		out:    make(chan protocol.Envelope, cfg.BufferSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the connection loop.
func (c *WSClient) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.connectionLoop()
	c.log.WithField("url", c.url).Info("📡 Relay client started")
}

// Publish queues env for sending. It never blocks.
func (c *WSClient) Publish(env protocol.Envelope) error {
	if !c.running.Load() {
		return ErrClosed
	}
	if !c.connected.Load() {
		c.dropped.Add(1)
		return nil
	}
	if env.Room == "" {
		env.Room = c.room
	}
	select {
	case c.out <- env:
		return nil
	default:
		c.dropped.Add(1)
		return ErrBackpressure
	}
}

// Inbound delivers envelopes relayed from the room.
func (c *WSClient) Inbound() <-chan protocol.Envelope { return c.in }

// Connected reports whether the websocket is up.
func (c *WSClient) Connected() bool { return c.connected.Load() }

// Close stops the loop and closes the connection. Queued sends are dropped.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		wasRunning := c.running.Swap(false)
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()

		if wasRunning {
			c.wg.Wait()
		}
		close(c.in)
		c.log.Info("📡 Relay client stopped")
	})
	return nil
}

// Stats returns sent, received, dropped and reconnect counts.
func (c *WSClient) Stats() (sent, received, dropped, reconnects uint64) {
	return c.sent.Load(), c.received.Load(), c.dropped.Load(), c.reconnects.Load()
}

func (c *WSClient) connectionLoop() {
	defer c.wg.Done()

	for c.running.Load() {
		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.WithError(err).Debug("Dial failed")
			if !c.wait() {
				return
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.connected.Store(true)
		c.log.Info("✅ Connected to relay")

		done := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writeLoop(conn, done)
		}()
		c.readLoop(conn)
		close(done)
		<-writerDone

		c.connected.Store(false)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
		c.drainOut()
		c.reconnects.Add(1)
		c.log.Warn("🔌 Relay connection lost")

		if !c.wait() {
			return
		}
	}
}

func (c *WSClient) wait() bool {
	select {
	case <-c.stopCh:
		return false
	case <-time.After(c.delay):
		return true
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := DecodeFrame(mt, data)
		if err != nil {
			c.dropped.Add(1)
			continue
		}
		select {
		case c.in <- env:
			c.received.Add(1)
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *WSClient) writeLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case env := <-c.out:
			mt, data, err := EncodeFrame(c.codec, env)
			if err != nil {
				c.dropped.Add(1)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(mt, data); err != nil {
				c.dropped.Add(1)
				conn.Close()
				return
			}
			c.sent.Add(1)
		}
	}
}

// drainOut discards sends queued for a connection that is gone.
func (c *WSClient) drainOut() {
	for {
		select {
		case <-c.out:
			c.dropped.Add(1)
		default:
			return
		}
	}
}
