package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testEvent() TriggerEvent {
	return TriggerEvent{
		AlertID:     7,
		ItineraryID: 1,
		Origin:      "LHR",
		Destination: "JFK",
		Provider:    "BA",
		Price:       decimal.RequireFromString("274.34"),
		Currency:    "GBP",
		MaxPrice:    decimal.RequireFromString("300"),
		MaxCurrency: "GBP",
		DeepLink:    "https://www.britishairways.com",
		TriggeredAt: time.Now(),
	}
}

func TestTelegramDispatcherSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	dispatcher := NewTelegramDispatcher("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := dispatcher.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("Dispatch should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id = %#v", received)
	}
	for _, want := range []string{"LHR -> JFK", "274.34 GBP", "britishairways"} {
		if !strings.Contains(received["text"], want) {
			t.Fatalf("message missing %q: %s", want, received["text"])
		}
	}
}

func TestTelegramDispatcherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	dispatcher := NewTelegramDispatcher("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := dispatcher.Dispatch(context.Background(), testEvent()); err == nil {
		t.Fatal("ok=false should error")
	}
}
