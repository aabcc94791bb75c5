// Package rpc synthesizes request/response semantics on top of the
// fire-and-forget OSC transport (internal/osc), following the
// per-address serialization requirement of spec.md §4.2: because
// replies are matched to callers only by address, concurrent in-flight
// calls to the same address are indistinguishable, so calls to a given
// address are serialized behind a per-address mutex rather than
// disambiguated by best-effort FIFO.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boristopalov/abby/internal/dawerr"
	"github.com/boristopalov/abby/internal/osc"
)

// Sender is the subset of *osc.Transport the shim needs, so tests can
// substitute a fake.
type Sender interface {
	Send(osc.Message) error
	On(address string, h osc.Handler) (unregister func())
}

// Shim turns the shared OSC transport into an awaitable call/reply
// primitive, one call at a time per address.
type Shim struct {
	transport Sender
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Shim over the given transport.
func New(transport Sender, logger *slog.Logger) *Shim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shim{
		transport: transport,
		logger:    logger.With("component", "rpc"),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Call sends a request on address and awaits exactly one reply on the
// same address, per the DAW's address-mirroring convention. Calls to
// the same address are serialized; concurrent callers to different
// addresses proceed independently.
func (s *Shim) Call(ctx context.Context, address string, args []any, timeout time.Duration) (osc.Message, error) {
	lock := s.addressLock(address)
	lock.Lock()
	defer lock.Unlock()

	replies := make(chan osc.Message, 1)
	unregister := s.transport.On(address, func(m osc.Message) {
		select {
		case replies <- m:
		default:
		}
	})
	defer unregister()

	if err := s.transport.Send(osc.Message{Address: address, Args: args}); err != nil {
		return osc.Message{}, fmt.Errorf("rpc: call %s: %w", address, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return osc.Message{}, fmt.Errorf("rpc: call %s: %w", address, dawerr.ErrTimeout)
	case <-ctx.Done():
		return osc.Message{}, fmt.Errorf("rpc: call %s: %w", address, ctx.Err())
	}
}

// Fire sends a one-way message with no expected reply (e.g.
// start_listen/stop_listen).
func (s *Shim) Fire(address string, args []any) error {
	if err := s.transport.Send(osc.Message{Address: address, Args: args}); err != nil {
		return fmt.Errorf("rpc: fire %s: %w", address, err)
	}
	return nil
}

// Listen registers a standing handler on address, for push
// notifications that aren't request/response (parameter-value
// updates). It does not participate in per-address call
// serialization.
func (s *Shim) Listen(address string, h osc.Handler) (unregister func()) {
	return s.transport.On(address, h)
}

func (s *Shim) addressLock(address string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[address]
	if !ok {
		l = &sync.Mutex{}
		s.locks[address] = l
	}
	return l
}
