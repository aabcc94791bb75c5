package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/boristopalov/abby/internal/agent"
	"github.com/boristopalov/abby/internal/config"
	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/llm"
	"github.com/boristopalov/abby/internal/observer"
	"github.com/boristopalov/abby/internal/osc"
	"github.com/boristopalov/abby/internal/session"
)

// emptyMixerCaller answers just enough of the daw.Caller surface to
// let EnumerateMixer complete over a zero-track project.
type emptyMixerCaller struct{}

func (emptyMixerCaller) Call(_ context.Context, address string, _ []any, _ time.Duration) (osc.Message, error) {
	switch address {
	case "/live/song/get/num_tracks":
		return osc.Message{Address: address, Args: []any{int32(0)}}, nil
	default:
		return osc.Message{Address: address}, nil
	}
}
func (emptyMixerCaller) Fire(string, []any) error          { return nil }
func (emptyMixerCaller) Listen(string, osc.Handler) func() { return func() {} }

type scriptedStream struct {
	events []llm.StreamEvent
	i      int
}

func (s *scriptedStream) Next() (llm.StreamEvent, error) {
	if s.i >= len(s.events) {
		return llm.StreamEvent{}, errors.New("scriptedStream: exhausted")
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

// echoClient replies to every turn with a fixed text message and no
// tool calls.
type echoClient struct{}

func (echoClient) Stream(_ context.Context, _ string, _ []llm.Message, _ []llm.Tool) (llm.Stream, error) {
	return &scriptedStream{events: []llm.StreamEvent{
		{Kind: llm.StreamEventTextDelta, Delta: "hi there"},
		{Kind: llm.StreamEventMessage, Final: llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock("hi there")}}},
	}}, nil
}

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	deps := Deps{
		Registry:  session.NewRegistry(),
		Bridge:    daw.New(emptyMixerCaller{}, config.Timeouts{LivenessSeconds: 5, QuerySeconds: 2}),
		LLMClient: echoClient{},
		Prompts:   agent.NewPromptRegistry(),
		Observer:  observer.Options{Debounce: 10 * time.Millisecond, Window: time.Minute},
		BusBuffer: 16,
	}
	srv, err := Listen(context.Background(), "127.0.0.1:0", deps)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	return srv, func() { srv.Close() }
}

func readFrame(t *testing.T, r *bufio.Reader) events.Event {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		t.Fatalf("unmarshal frame: %v (%s)", err, line)
	}
	return ev
}

func readUntil(t *testing.T, r *bufio.Reader, kind events.Kind, max int) events.Event {
	t.Helper()
	for i := 0; i < max; i++ {
		ev := readFrame(t, r)
		if ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("did not see event kind %q within %d frames", kind, max)
	return events.Event{}
}

func TestAttachRunsIndexingThenAcceptsMessages(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	nc, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer nc.Close()

	_, err = nc.Write([]byte(`{"attach":{"sessionId":"s1","project":"MySet"}}` + "\n"))
	if err != nil {
		t.Fatalf("write attach: %v", err)
	}

	r := bufio.NewReader(nc)
	done := readUntil(t, r, events.KindIndexingStatus, 10)
	for i := 0; i < 10 && done.Indexing != nil && done.Indexing.IsIndexing; i++ {
		done = readUntil(t, r, events.KindIndexingStatus, 10)
	}
	if done.Indexing == nil || done.Indexing.IsIndexing {
		t.Fatalf("expected a terminal indexing_status, got %+v", done)
	}

	if _, err := nc.Write([]byte(`{"message":"hello"}` + "\n")); err != nil {
		t.Fatalf("write message: %v", err)
	}

	text := readUntil(t, r, events.KindText, 5)
	if text.Text != "hi there" {
		t.Errorf("text = %q, want %q", text.Text, "hi there")
	}
	end := readUntil(t, r, events.KindEndMessage, 5)
	if end.Kind != events.KindEndMessage {
		t.Errorf("end = %+v", end)
	}
}

func TestAttachWithoutProjectIsRejected(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	nc, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer nc.Close()

	if _, err := nc.Write([]byte(`{"attach":{"sessionId":"s1"}}` + "\n")); err != nil {
		t.Fatalf("write attach: %v", err)
	}

	r := bufio.NewReader(nc)
	ev := readFrame(t, r)
	if ev.Kind != events.KindError {
		t.Fatalf("ev = %+v, want an error frame", ev)
	}
}

func TestReconnectSkipsReindexing(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	dial := func() *bufio.Reader {
		nc, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { nc.Close() })
		if _, err := nc.Write([]byte(`{"attach":{"sessionId":"reused","project":"MySet"}}` + "\n")); err != nil {
			t.Fatalf("write attach: %v", err)
		}
		return bufio.NewReader(nc)
	}

	r1 := dial()
	first := readUntil(t, r1, events.KindIndexingStatus, 10)
	for i := 0; i < 10 && first.Indexing != nil && first.Indexing.IsIndexing; i++ {
		first = readUntil(t, r1, events.KindIndexingStatus, 10)
	}

	r2 := dial()
	// The very first frame on a reconnect must already be the terminal
	// indexing_status (spec.md §4.8 step 3's "already present" branch).
	ev := readFrame(t, r2)
	if ev.Kind != events.KindIndexingStatus || ev.Indexing == nil || ev.Indexing.IsIndexing {
		t.Fatalf("first frame on reconnect = %+v, want terminal indexing_status", ev)
	}
}
