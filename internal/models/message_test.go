// filename: internal/models/message_test.go
package models

import (
	"testing"
)

func TestMessageFromJSON(t *testing.T) {
	raw := []byte(`{"sender":"controller/db","recipient":"controller/alerter","command":"GET","args":"sensors/a","request_id":"r1","reply":true,"payload":{"data":21.5}}`)

	msg, err := MessageFromJSON(raw)
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}

	if !msg.Reply || msg.RequestID != "r1" {
		t.Errorf("Unexpected reply fields: %+v", msg)
	}
	if v, ok := msg.GetData().(float64); !ok || v != 21.5 {
		t.Errorf("Expected data 21.5, got %v", msg.GetData())
	}
}

func TestMessageFromJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"no sender", `{"recipient":"a/b","command":"RUN"}`},
		{"no recipient", `{"sender":"a/b","command":"RUN"}`},
		{"no command", `{"sender":"a/b","recipient":"c/d"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MessageFromJSON([]byte(tt.raw)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestMessageFromJSON_EmptyPayload(t *testing.T) {
	msg, err := MessageFromJSON([]byte(`{"sender":"a/b","recipient":"c/d","command":"RUN"}`))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	if msg.Payload == nil {
		t.Error("Payload must be initialised")
	}
	if msg.Has("macro") {
		t.Error("Unexpected payload key")
	}
}

func TestMessage_NewReply(t *testing.T) {
	req := NewRequest("controller/alerter", "controller/db", "GET", "sensors/a")
	if req.RequestID == "" {
		t.Fatal("Request must carry a correlation token")
	}

	reply := req.NewReply("controller/db")
	if reply.Recipient != "controller/alerter" || reply.Sender != "controller/db" {
		t.Errorf("Reply addressed wrong: %s", reply)
	}
	if !reply.Reply || reply.RequestID != req.RequestID {
		t.Errorf("Reply must keep request id: %+v", reply)
	}
	if reply.ID == req.ID {
		t.Error("Reply must get its own id")
	}
}

func TestMessage_SplitArgs(t *testing.T) {
	tests := []struct {
		args       string
		head, tail string
	}{
		{"frost", "frost", ""},
		{"room/kitchen", "room", "kitchen"},
		{"sensors/a/b", "sensors", "a/b"},
	}

	for _, tt := range tests {
		msg := NewMessage("a/b", "c/d", "RUN", tt.args)
		head, tail := msg.SplitArgs()
		if head != tt.head || tail != tt.tail {
			t.Errorf("SplitArgs(%q) = %q, %q", tt.args, head, tail)
		}
	}
}

func TestMessage_Payload(t *testing.T) {
	msg := &Message{}
	if msg.GetString("macro") != "" || msg.Has("macro") {
		t.Error("Empty message must have empty payload")
	}

	msg.Set("macro", "kitchen")
	msg.SetData(3)
	if msg.GetString("macro") != "kitchen" {
		t.Errorf("Expected macro kitchen, got %q", msg.GetString("macro"))
	}
	if msg.GetString(DataKey) != "" {
		t.Error("GetString must ignore non-string values")
	}
	if !NewMessage("a/b", BroadcastRecipient, "NOTIFY", "").IsBroadcast() {
		t.Error("Expected broadcast message")
	}
}
