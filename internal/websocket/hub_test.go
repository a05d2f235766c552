package websocket

import (
	"encoding/json"
	"testing"
)

func TestBroadcastWalletWrapsEventEnvelope(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("u1", client)

	hub.BroadcastWallet("u1", WalletUpdate{WalletID: "w1", Available: 2500, Pending: 100})

	select {
	case frame := <-client.send:
		var event struct {
			Type string       `json:"type"`
			Data WalletUpdate `json:"data"`
		}
		if err := json.Unmarshal(frame, &event); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		if event.Type != "wallet_update" {
			t.Fatalf("expected wallet_update frame, got %q", event.Type)
		}
		if event.Data.WalletID != "w1" || event.Data.Available != 2500 || event.Data.Pending != 100 {
			t.Fatalf("unexpected payload: %+v", event.Data)
		}
	default:
		t.Fatal("no frame delivered to the registered client")
	}
}

func TestBroadcastWalletSkipsOtherUsers(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("u1", client)

	hub.BroadcastWallet("u2", WalletUpdate{WalletID: "w2"})

	if len(client.send) != 0 {
		t.Fatal("frame delivered to the wrong user")
	}
}
