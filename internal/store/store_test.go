package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "abby.db")); err != nil {
		t.Errorf("expected abby.db to exist: %v", err)
	}
}

func TestRecordParameterChangePersistsAndReadsBack(t *testing.T) {
	s := newTestStore(t)

	change := model.ParameterChange{
		TrackName:     "Drums",
		DeviceName:    "Kit",
		ParameterName: "Gain",
		OldValue:      0.5,
		NewValue:      0.75,
		Min:           0,
		Max:           1,
		Sequence:      1,
		Timestamp:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Record("sess-1", events.ParameterChanged(change)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.RecentParameterChanges("sess-1", 10)
	if err != nil {
		t.Fatalf("RecentParameterChanges: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].TrackName != "Drums" || got[0].ParameterName != "Gain" || got[0].NewValue != 0.75 {
		t.Errorf("got[0] = %+v", got[0])
	}
}

func TestRecentParameterChangesScopesToSession(t *testing.T) {
	s := newTestStore(t)

	s.Record("sess-a", events.ParameterChanged(model.ParameterChange{TrackName: "A", Timestamp: time.Now()}))
	s.Record("sess-b", events.ParameterChanged(model.ParameterChange{TrackName: "B", Timestamp: time.Now()}))

	got, err := s.RecentParameterChanges("sess-a", 10)
	if err != nil {
		t.Fatalf("RecentParameterChanges: %v", err)
	}
	if len(got) != 1 || got[0].TrackName != "A" {
		t.Errorf("got = %+v, want only sess-a's change", got)
	}
}

func TestRecordFunctionCallAndResultAreAudited(t *testing.T) {
	s := newTestStore(t)

	call := model.ToolCall{ID: "tc1", Name: model.ToolSetDeviceParameter, Arguments: map[string]any{"value": 0.5}}
	if err := s.Record("sess-1", events.FunctionCall(call)); err != nil {
		t.Fatalf("Record function_call: %v", err)
	}
	result := model.ToolResult{CallID: "tc1", Content: "ok", IsError: false}
	if err := s.Record("sess-1", events.FunctionResult(result)); err != nil {
		t.Fatalf("Record function_result: %v", err)
	}

	got, err := s.RecentToolEvents("sess-1", 10)
	if err != nil {
		t.Fatalf("RecentToolEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	// newest first
	if got[0].Kind != "function_result" || got[0].ResultContent != "ok" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Kind != "function_call" || got[1].ToolName != string(model.ToolSetDeviceParameter) {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestRecordApprovalRequiredAuditsEachCall(t *testing.T) {
	s := newTestStore(t)

	req := model.ApprovalRequest{
		CorrelationID: "c1",
		Calls: []model.ToolCall{
			{ID: "tc1", Name: model.ToolSetDeviceParameter, Arguments: map[string]any{"value": 1.0}},
			{ID: "tc2", Name: model.ToolSetDeviceParameter, Arguments: map[string]any{"value": 0.0}},
		},
	}
	if err := s.Record("sess-1", events.ApprovalRequired(req)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.RecentToolEvents("sess-1", 10)
	if err != nil {
		t.Fatalf("RecentToolEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	for _, e := range got {
		if e.Kind != "approval_required" {
			t.Errorf("e.Kind = %q, want approval_required", e.Kind)
		}
	}
}

func TestRecordIgnoresTransientEventKinds(t *testing.T) {
	s := newTestStore(t)

	for _, ev := range []events.Event{
		events.Text("hi"),
		events.EndMessage(),
		events.Indexing(true, 50),
		events.Error("boom"),
	} {
		if err := s.Record("sess-1", ev); err != nil {
			t.Fatalf("Record(%v): %v", ev.Kind, err)
		}
	}

	changes, _ := s.RecentParameterChanges("sess-1", 10)
	toolEvents, _ := s.RecentToolEvents("sess-1", 10)
	if len(changes) != 0 || len(toolEvents) != 0 {
		t.Errorf("transient events were persisted: changes=%v toolEvents=%v", changes, toolEvents)
	}
}

func TestNewFailsWhenOpenDBErrors(t *testing.T) {
	orig := openDB
	defer func() { openDB = orig }()

	openDB = func(driverName, dataSourceName string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}
	if _, err := New(Config{DataDir: t.TempDir()}); err == nil {
		t.Fatal("expected an error from a failing opener")
	}
}
