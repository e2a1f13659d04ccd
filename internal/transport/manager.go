// Package transport owns the single push connection to the server.
//
// It knows how to dial, keep alive, reconnect, queue outbound frames while
// offline and hand inbound frames over in arrival order. It never looks
// inside a frame beyond its type.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/whobought/internal/events"
	"github.com/mmynk/whobought/internal/metrics"
)

var ErrClosed = errors.New("transport: closed")

// Settings tune the connection. Use DefaultSettings and override fields.
type Settings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	// QueueSize bounds the outbound queue. When full the oldest frame is dropped.
	QueueSize int
	// ReceiveBufferSize is the capacity of the Receive channel.
	ReceiveBufferSize int
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout:  5 * time.Second,
		ReconnectTimeout:  1 * time.Second,
		PingTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       45 * time.Second,
		QueueSize:         64,
		ReceiveBufferSize: 16,
	}
}

type queuedFrame struct {
	seq   uint64
	frame events.Frame
}

// Manager maintains the connection and implements events.Sender.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	header   http.Header
	dialer   *websocket.Dialer
	settings *Settings
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	queue     []queuedFrame
	nextSeq   uint64
	opened    bool
	closed    bool
	listeners []func(State)

	queued  chan struct{}
	receive chan events.Frame
	done    chan struct{}
}

// NewManager creates a manager for the websocket endpoint at url. header is
// sent with every handshake (e.g. Authorization). Nothing is dialed until Open.
func NewManager(ctx context.Context, url string, header http.Header, settings *Settings, logger *slog.Logger) *Manager {
	if settings == nil {
		settings = DefaultSettings()
	}
	if settings.QueueSize <= 0 {
		settings.QueueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		header:   header,
		settings: settings,
		logger:   logger.With("component", "transport"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		state:   Disconnected,
		queued:  make(chan struct{}, 1),
		receive: make(chan events.Frame, settings.ReceiveBufferSize),
		done:    make(chan struct{}),
	}
}

// Open starts the connect loop. Calling it again has no effect.
func (m *Manager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened || m.closed {
		return
	}
	m.opened = true
	go m.run()
}

// Close stops the manager for good. Queued frames are discarded and the
// Receive channel is closed once the connection has shut down.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	opened := m.opened
	m.queue = nil
	m.mu.Unlock()

	m.cancel()
	if !opened {
		close(m.receive)
		close(m.done)
		return
	}
	<-m.done
}

// Done is closed after the manager has fully stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Receive delivers well-formed inbound frames in arrival order.
func (m *Manager) Receive() <-chan events.Frame {
	return m.receive
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn to be called after every state transition.
// Listeners run on the connection goroutine, in transition order. Close
// waits for that goroutine, so a listener must not call Close directly;
// it can call it from a new goroutine instead.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Pending returns the number of frames waiting to be written.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Send queues a frame for delivery. It never blocks. Frames are written in
// the order they were sent once the connection is up.
func (m *Manager) Send(f events.Frame) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if len(m.queue) >= m.settings.QueueSize {
		dropped := m.queue[0]
		m.queue = m.queue[1:]
		metrics.QueueDropped.Inc()
		m.logger.Warn("Outbound queue full, dropping oldest frame", "type", dropped.frame.Type, "queue_size", m.settings.QueueSize)
	}
	m.nextSeq++
	m.queue = append(m.queue, queuedFrame{seq: m.nextSeq, frame: f})
	m.mu.Unlock()

	select {
	case m.queued <- struct{}{}:
	default:
	}
	return nil
}

func (m *Manager) peek() (queuedFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return queuedFrame{}, false
	}
	return m.queue[0], true
}

// pop removes the head if it is still the frame that was just written.
// Send may have evicted it in the meantime.
func (m *Manager) pop(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 && m.queue[0].seq == seq {
		m.queue = m.queue[1:]
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	listeners := m.listeners
	m.mu.Unlock()

	metrics.ConnectionState.Set(float64(state))
	m.logger.Debug("Connection state changed", "state", state.String())
	for _, fn := range listeners {
		fn(state)
	}
}

func (m *Manager) run() {
	defer close(m.done)
	defer close(m.receive)
	defer m.setState(Disconnected)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.Reconnects.Inc()
		}
		m.setState(Connecting)

		ws, err := m.dial()
		if err != nil {
			m.logger.Info("Connect failed", "url", m.url, "attempt", attempt+1, "error", err)
		} else {
			m.setState(Connected)
			m.logger.Info("Connected", "url", m.url)
			m.serve(ws)
			m.logger.Info("Disconnected", "url", m.url)
		}
		m.setState(Disconnected)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.settings.ReconnectTimeout):
		}
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(m.ctx, m.settings.HandshakeTimeout)
	defer cancel()
	ws, _, err := m.dialer.DialContext(dialCtx, m.url, m.header)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// serve runs the reader and writer for one connection and returns when
// either of them fails or the manager is closed.
func (m *Manager) serve(ws *websocket.Conn) {
	handleCtx, handleCancel := context.WithCancel(m.ctx)
	var wg sync.WaitGroup

	ws.SetReadDeadline(time.Now().Add(m.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(m.settings.ReadTimeout))
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer handleCancel()
		m.write(handleCtx, ws)
	}()
	go func() {
		defer wg.Done()
		defer handleCancel()
		m.read(handleCtx, ws)
	}()

	<-handleCtx.Done()
	// unblocks a reader waiting in ReadMessage
	ws.Close()
	wg.Wait()
}

func (m *Manager) write(ctx context.Context, ws *websocket.Conn) {
	flush := func() bool {
		for {
			next, ok := m.peek()
			if !ok {
				return true
			}
			message, err := json.Marshal(next.frame)
			if err != nil {
				m.logger.Error("Dropping unencodable frame", "type", next.frame.Type, "error", err)
				m.pop(next.seq)
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(m.settings.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				// the frame stays queued for the next connection
				m.logger.Info("Write failed", "type", next.frame.Type, "error", err)
				return false
			}
			m.pop(next.seq)
		}
	}

	if !flush() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queued:
			if !flush() {
				return
			}
		case <-time.After(m.settings.PingTimeout):
			deadline := time.Now().Add(m.settings.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.logger.Info("Ping failed", "error", err)
				return
			}
		}
	}
}

func (m *Manager) read(ctx context.Context, ws *websocket.Conn) {
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Info("Read failed", "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(m.settings.ReadTimeout))

		var frame events.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Type == "" {
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			m.logger.Warn("Dropping malformed frame", "bytes", len(message), "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case m.receive <- frame:
		}
	}
}
