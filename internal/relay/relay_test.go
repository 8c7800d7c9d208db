package relay

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/config"
	"relaybot/internal/domain"
)

func TestMatch(t *testing.T) {
	routes := []config.Route{
		{From: "whatsapp", To: "telegram", ToChat: "-100123"},
		{From: "signal", FromChat: "signal:group:g1", To: "discord", ToChat: "chan-1"},
	}

	tests := []struct {
		name      string
		msg       domain.InboundMessage
		wantCount int
		wantChan  string
		wantChat  string
	}{
		{
			name:      "whatsapp routes anywhere",
			msg:       domain.InboundMessage{Channel: "whatsapp", ChatID: "15551234567@s.whatsapp.net", SenderID: "alice", Content: "hi"},
			wantCount: 1,
			wantChan:  "telegram",
			wantChat:  "-100123",
		},
		{
			name:      "signal group matches fromChat filter",
			msg:       domain.InboundMessage{Channel: "signal", ChatID: "signal:group:g1", SenderID: "+1555", Content: "yo"},
			wantCount: 1,
			wantChan:  "discord",
			wantChat:  "chan-1",
		},
		{
			name:      "signal direct misses group filter",
			msg:       domain.InboundMessage{Channel: "signal", ChatID: "+1555", SenderID: "+1555", Content: "yo"},
			wantCount: 0,
		},
		{
			name:      "unrouted channel",
			msg:       domain.InboundMessage{Channel: "slack", ChatID: "C1", Content: "yo"},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(routes, tt.msg)
			if len(got) != tt.wantCount {
				t.Fatalf("got %d outbound messages, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if got[0].Channel != tt.wantChan || got[0].ChatID != tt.wantChat {
				t.Errorf("routed to %s/%s, want %s/%s", got[0].Channel, got[0].ChatID, tt.wantChan, tt.wantChat)
			}
		})
	}
}

func TestMatch_PrefixesSender(t *testing.T) {
	routes := []config.Route{{From: "telegram", To: "whatsapp", ToChat: "+1555"}}
	out := Match(routes, domain.InboundMessage{
		Channel: "telegram", ChatID: "42", SenderID: "bob", Content: "hello there",
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 outbound, got %d", len(out))
	}
	if want := "[telegram bob] hello there"; out[0].Content != want {
		t.Errorf("content = %q, want %q", out[0].Content, want)
	}
}

func TestMatch_FanOut(t *testing.T) {
	routes := []config.Route{
		{From: "whatsapp", To: "telegram", ToChat: "-100123"},
		{From: "whatsapp", To: "slack", ToChat: "C1"},
	}
	out := Match(routes, domain.InboundMessage{Channel: "whatsapp", ChatID: "x", Content: "hi"})
	if len(out) != 2 {
		t.Fatalf("expected fan-out to 2 channels, got %d", len(out))
	}
}

func TestLoadRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	data := `routes:
  - from: whatsapp
    to: telegram
    toChat: "-100123"
  - from: signal
    fromChat: "signal:group:g1"
    to: discord
    toChat: chan-1
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("LoadRoutes: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(routes))
	}
	if routes[0].To != "telegram" || routes[1].FromChat != "signal:group:g1" {
		t.Errorf("routes parsed wrong: %+v", routes)
	}
}

func TestLoadRoutes_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte("routes:\n  - from: whatsapp\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoutes(path); err == nil {
		t.Error("expected validation error for route missing to/toChat")
	}
}

func TestRelay_RunForwards(t *testing.T) {
	mbus := bus.New(16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer mbus.Close()

	got := make(chan domain.OutboundMessage, 1)
	mbus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		got <- msg
	})

	r := New(Config{
		Routes: []config.Route{{From: "whatsapp", To: "telegram", ToChat: "-100123"}},
		Bus:    mbus,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	mbus.Publish(domain.InboundMessage{Channel: "whatsapp", ChatID: "x", SenderID: "alice", Content: "ping"})

	select {
	case msg := <-got:
		if msg.ChatID != "-100123" {
			t.Errorf("forwarded to chat %q", msg.ChatID)
		}
		if msg.Content != "[whatsapp alice] ping" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}
