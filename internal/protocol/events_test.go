package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_Join(t *testing.T) {
	data := []byte(`{"type":"join","display_name":"alice"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Errorf("expected type %q, got %q", TypeJoin, msgType)
	}
	join, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
	if join.DisplayName != "alice" {
		t.Errorf("expected display name alice, got %q", join.DisplayName)
	}
}

func TestParseClientMessage_Send(t *testing.T) {
	data := []byte(`{
		"type": "message:send",
		"ack_id": "a1",
		"room_id": "lounge",
		"sender_id": "u1",
		"sender_name": "alice",
		"content": "hello",
		"attachments": [{"url": "https://cdn/x.png", "filename": "x.png", "size": 42}]
	}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSend {
		t.Errorf("expected type %q, got %q", TypeSend, msgType)
	}
	send, ok := msg.(SendMsg)
	if !ok {
		t.Fatalf("expected SendMsg, got %T", msg)
	}
	if send.AckID != "a1" || send.RoomID != "lounge" || send.Content != "hello" {
		t.Errorf("unexpected decode: %+v", send)
	}
	if len(send.Attachments) != 1 || send.Attachments[0].URL != "https://cdn/x.png" {
		t.Errorf("attachments not decoded: %+v", send.Attachments)
	}
}

func TestParseClientMessage_ReceiptTypes(t *testing.T) {
	for _, typ := range []string{TypeRead, TypeDelivered, TypeDelete} {
		data := []byte(`{"type":"` + typ + `","message_id":"m1","user_id":"u1"}`)
		msgType, msg, err := ParseClientMessage(data)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if msgType != typ {
			t.Errorf("expected type %q, got %q", typ, msgType)
		}
		receipt, ok := msg.(ReceiptMsg)
		if !ok {
			t.Fatalf("%s: expected ReceiptMsg, got %T", typ, msg)
		}
		if receipt.MessageID != "m1" || receipt.UserID != "u1" {
			t.Errorf("%s: unexpected decode: %+v", typ, receipt)
		}
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"made_up"}`))
	if err == nil {
		t.Fatal("expected an error for an unknown event type")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"display_name":"alice"}`))
	if err == nil {
		t.Fatal("expected an error for a missing type field")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypePong, PongMsg{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypePong {
		t.Errorf("expected injected type %q, got %v", TypePong, decoded["type"])
	}
}

func TestNewServerMessage_RoundTrip(t *testing.T) {
	data, err := NewServerMessage(TypeError, ErrorMsg{Code: "bad_request", Message: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ErrorMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Type != TypeError || decoded.Code != "bad_request" || decoded.Message != "nope" {
		t.Errorf("unexpected round trip: %+v", decoded)
	}
}
