package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/boristopalov/abby/internal/agent"
	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/llm"
	"github.com/boristopalov/abby/internal/mcptools"
	"github.com/boristopalov/abby/internal/mixer"
	"github.com/boristopalov/abby/internal/observer"
	"github.com/boristopalov/abby/internal/session"
	"github.com/boristopalov/abby/internal/store"
)

// Deps are the shared, session-independent collaborators every
// connection is built against.
type Deps struct {
	Registry  *session.Registry
	Bridge    *daw.Bridge
	LLMClient llm.Client
	Prompts   *agent.PromptRegistry
	Observer  observer.Options
	BusBuffer int
	Logger    *slog.Logger

	// Audit, when non-nil, receives a copy of every event forwarded to
	// the client so it can be inspected after the process restarts.
	// abbyd wires this to its store.Store; it is optional so tests and
	// the audit-less code paths don't need a database.
	Audit *store.Store
}

// conn handles one client connection end to end: attach, indexing,
// inbound frame dispatch, and outbound event forwarding.
type conn struct {
	deps    Deps
	nc      net.Conn
	logger  *slog.Logger
	scanner *bufio.Scanner

	writeMu sync.Mutex
}

func newConn(nc net.Conn, deps Deps) *conn {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Prompts == nil {
		deps.Prompts = agent.NewPromptRegistry()
	}
	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &conn{deps: deps, nc: nc, logger: deps.Logger.With("remote", nc.RemoteAddr().String()), scanner: scanner}
}

// serve runs the connection lifecycle. It returns once the connection
// closes; Server.Close closes every live connection on shutdown.
func (c *conn) serve(ctx context.Context) {
	defer c.nc.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	attach, err := c.readAttach()
	if err != nil {
		c.logger.Warn("attach failed", "error", err)
		c.write(errorFrame(err.Error()))
		return
	}

	sess, isNew := c.attachSession(attach)
	c.logger.Info("session attached", "sessionId", sess.ID, "project", sess.Project, "new", isNew)

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		c.forwardEvents(connCtx, sess.ID, sess.Bus)
	}()

	c.runIndexing(connCtx, sess, isNew)

	gate := newApprovalGate()
	catalog := mcptools.New(sess.Mirror, c.deps.Bridge)
	system := c.deps.Prompts.Lookup(attach.SystemPromptID)
	loop := agent.New(c.deps.LLMClient, catalog, sess.Bus, gate, agent.Options{System: system, Logger: c.deps.Logger})

	messages := make(chan string, 8)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for text := range messages {
			history := sess.History()
			loop.Run(connCtx, text, history, sess.AppendHistory)
		}
	}()

	c.readLoop(messages, gate)
	close(messages)

	cancel()
	<-workerDone
	<-forwardDone
}

// readAttach reads the mandatory first frame and validates it selects
// a project (spec.md §4.8 step 1).
func (c *conn) readAttach() (AttachRequest, error) {
	if !c.scanner.Scan() {
		return AttachRequest{}, fmt.Errorf("connection closed before attach")
	}
	var in Inbound
	if err := json.Unmarshal(c.scanner.Bytes(), &in); err != nil {
		return AttachRequest{}, fmt.Errorf("malformed attach frame: %w", err)
	}
	if in.Attach == nil || in.Attach.Project == "" {
		return AttachRequest{}, errors.New("no project selected")
	}
	if in.Attach.SessionID == "" {
		return AttachRequest{}, errors.New("attach requires a session id")
	}
	return *in.Attach, nil
}

// attachSession creates or looks up the session (spec.md §4.8 step 2).
func (c *conn) attachSession(req AttachRequest) (*session.Session, bool) {
	if sess, ok := c.deps.Registry.Get(req.SessionID); ok {
		return sess, false
	}

	m := mixer.New()
	bus := events.NewBus(c.deps.BusBuffer)
	obs := observer.New(c.deps.Bridge, bus, c.deps.Observer)
	sess := session.New(req.SessionID, req.Project, m, obs, bus)
	c.deps.Registry.Put(sess)
	return sess, true
}

// runIndexing implements spec.md §4.8 step 3: a fresh session runs
// enumerate+subscribe behind an indexing_status transition; a
// reconnected session (mirror already populated) reports done
// immediately, written straight to this connection.
func (c *conn) runIndexing(ctx context.Context, sess *session.Session, isNew bool) {
	if !isNew && sess.Indexed() {
		c.write(events.Indexing(false, 100))
		return
	}

	sess.Bus.Publish(events.Indexing(true, 0))

	snap, err := c.deps.Bridge.EnumerateMixer(ctx, func(p int) {
		sess.Bus.Publish(events.Indexing(true, p))
	})
	if err != nil {
		sess.Bus.Publish(events.Error(fmt.Sprintf("enumerate mixer: %v", err)))
		sess.Bus.Publish(events.Indexing(false, 0))
		return
	}
	sess.Mirror.Replace(snap)

	sess.Observer.Subscribe(ctx, snap, func(p int) {
		sess.Bus.Publish(events.Indexing(true, p))
	})
	sess.Bus.Publish(events.Indexing(false, 100))
}

// readLoop reads inbound frames until the connection closes, routing
// message frames to the worker channel and approvals frames to the
// approval gate. Frames this build doesn't recognize are ignored, per
// spec.md §4.8's forward-compatibility rule.
func (c *conn) readLoop(messages chan<- string, gate *approvalGate) {
	for c.scanner.Scan() {
		var in Inbound
		if err := json.Unmarshal(c.scanner.Bytes(), &in); err != nil {
			c.logger.Warn("malformed inbound frame", "error", err)
			continue
		}
		switch {
		case in.Message != nil:
			select {
			case messages <- *in.Message:
			default:
				c.write(errorFrame("too many messages are queued"))
			}
		case in.Approvals != nil:
			gate.deliver(in.Approvals)
		}
	}
}

// forwardEvents drains sess's bus onto the wire until ctx is canceled
// or the bus closes (spec.md §4.8 step 4), auditing each event as it
// goes if an audit store is configured.
func (c *conn) forwardEvents(ctx context.Context, sessionID string, bus *events.Bus) {
	for {
		select {
		case ev, ok := <-bus.Events():
			if !ok {
				return
			}
			c.write(ev)
			if c.deps.Audit != nil {
				if err := c.deps.Audit.Record(sessionID, ev); err != nil {
					c.logger.Warn("audit record failed", "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) write(frame Outbound) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("encode outbound frame", "error", err)
		return
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(data); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}
