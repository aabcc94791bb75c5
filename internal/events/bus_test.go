package events

import (
	"sync"
	"testing"
	"time"

	"github.com/boristopalov/abby/internal/model"
)

func TestBusDeliversInPublishOrderPerProducer(t *testing.T) {
	b := NewBus(16)
	for i := 0; i < 5; i++ {
		b.Publish(Text(string(rune('a' + i))))
	}
	b.Close()

	var got []string
	for ev := range b.Events() {
		got = append(got, ev.Text)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBusPublishAfterCloseIsNoOp(t *testing.T) {
	b := NewBus(1)
	b.Close()
	b.Publish(EndMessage()) // must not panic or block
}

func TestBusConcurrentProducersInterleaveWithoutLoss(t *testing.T) {
	b := NewBus(64)
	var wg sync.WaitGroup
	producers := 4
	perProducer := 10
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Publish(Text("x"))
			}
		}(p)
	}
	wg.Wait()
	b.Close()

	count := 0
	for range b.Events() {
		count++
	}
	if count != producers*perProducer {
		t.Fatalf("count = %d, want %d", count, producers*perProducer)
	}
}

func TestFunctionCallAndResultRoundTrip(t *testing.T) {
	call := model.ToolCall{ID: "tc1", Name: model.ToolSetDeviceParameter, Arguments: map[string]any{"value": 0.3}}
	ev := FunctionCall(call)
	if ev.Kind != KindFunctionCall || ev.ToolCallID != "tc1" {
		t.Errorf("FunctionCall event = %+v", ev)
	}

	result := model.ToolResult{CallID: "tc1", Content: `{"from":"0.6","to":"0.3"}`}
	rev := FunctionResult(result)
	if rev.Kind != KindFunctionResult || rev.ResultContent == "" {
		t.Errorf("FunctionResult event = %+v", rev)
	}
}

func TestBusPublishParameterChangeWrapsEvent(t *testing.T) {
	b := NewBus(1)
	b.PublishParameterChange(model.ParameterChange{OldValue: 0.4, NewValue: 0.7})
	select {
	case ev := <-b.Events():
		if ev.Kind != KindParameterChange || ev.ParameterChange == nil {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
