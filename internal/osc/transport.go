package osc

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/boristopalov/abby/internal/dawerr"
)

// ErrorAddress is the DAW's distinguished error-notification address
// (spec.md §4.1): inbound messages on it are always logged and
// surfaced, never silently dropped, regardless of whether any handler
// is registered for it.
const ErrorAddress = "/live/error"

// Handler receives one decoded inbound Message. Handlers run
// synchronously on the receive loop's goroutine; they must not block.
type Handler func(Message)

// Transport owns one UDP socket pair: it binds a fixed local port and
// sends to a fixed remote host/port, dispatching inbound messages to
// address-keyed handlers. There is exactly one Transport per DAW
// attach, shared by every session (spec.md §5, "Sessions share: the
// single OSC transport").
type Transport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	logger     *slog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool

	wg sync.WaitGroup
}

// Config bundles the transport's socket addresses.
type Config struct {
	LocalPort  int
	RemoteHost string
	RemotePort int
}

// Listen binds the local UDP port and prepares to send to the
// configured remote address. A bind failure is fatal to the process
// per spec.md §4.1 and is returned wrapping dawerr.ErrFatal (plus the
// underlying net error) so callers can classify it with errors.Is.
func Listen(cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	local, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", cfg.LocalPort))
	if err != nil {
		return nil, fmt.Errorf("osc: resolve local address: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("osc: %w: bind local port %d: %w", dawerr.ErrFatal, cfg.LocalPort, err)
	}

	remote, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.RemoteHost, cfg.RemotePort))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("osc: resolve remote address: %w", err)
	}

	t := &Transport{
		conn:       conn,
		remoteAddr: remote,
		logger:     logger.With("component", "osc"),
		handlers:   make(map[string][]Handler),
	}

	t.wg.Add(1)
	go t.receiveLoop()

	return t, nil
}

// On registers a handler for an exact address. Multiple handlers may
// be registered per address. It returns an unregister function.
func (t *Transport) On(address string, h Handler) (unregister func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[address] = append(t.handlers[address], h)
	idx := len(t.handlers[address]) - 1

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			hs := t.handlers[address]
			if idx < len(hs) {
				hs[idx] = nil
			}
		})
	}
}

// Send encodes and fires msg at the configured remote address. Send is
// fire-and-forget: no reliability or ordering guarantee beyond the
// network's (spec.md §4.1).
func (t *Transport) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("osc: %w: %w", dawerr.ErrTransport, err)
	}
	if _, err := t.conn.WriteToUDP(data, t.remoteAddr); err != nil {
		return fmt.Errorf("osc: %w: send to %s: %w", dawerr.ErrTransport, msg.Address, err)
	}
	return nil
}

// Close shuts down the receive loop and the underlying socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()

	buf := make([]byte, 65535)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.isClosed() {
				return
			}
			t.logger.Warn("osc: receive error", "error", err)
			continue
		}

		msg, err := Decode(buf[:n])
		if err != nil {
			t.logger.Warn("osc: malformed datagram", "error", err)
			continue
		}

		if msg.Address == ErrorAddress {
			t.logger.Warn("osc: DAW-side error notification", "args", msg.Args)
		}

		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg Message) {
	t.mu.Lock()
	hs := append([]Handler(nil), t.handlers[msg.Address]...)
	t.mu.Unlock()

	for _, h := range hs {
		if h != nil {
			h(msg)
		}
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
