package channel

import (
	"encoding/json"
	"testing"
)

func TestInboundUnmarshalsAttachFrame(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"attach":{"sessionId":"s1","project":"MySet"}}`), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.Attach == nil || in.Attach.SessionID != "s1" || in.Attach.Project != "MySet" {
		t.Errorf("in.Attach = %+v", in.Attach)
	}
	if in.Message != nil || in.Approvals != nil {
		t.Errorf("unrelated fields populated: %+v", in)
	}
}

func TestInboundUnmarshalsMessageFrame(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"message":"turn down the gain"}`), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.Message == nil || *in.Message != "turn down the gain" {
		t.Errorf("in.Message = %v", in.Message)
	}
}

func TestInboundUnmarshalsApprovalsFrame(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"approvals":{"tc1":true,"tc2":false}}`), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(in.Approvals) != 2 || !in.Approvals["tc1"] || in.Approvals["tc2"] {
		t.Errorf("in.Approvals = %+v", in.Approvals)
	}
}

func TestInboundIgnoresUnknownKind(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"ping":true}`), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.Attach != nil || in.Message != nil || in.Approvals != nil {
		t.Errorf("unknown frame produced non-empty Inbound: %+v", in)
	}
}
