package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"relaybot/internal/domain"
)

type recordingRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.output, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignal_SendArgs(t *testing.T) {
	tests := []struct {
		name   string
		chatID string
		want   []string
	}{
		{
			name:   "direct recipient",
			chatID: "+15551234567",
			want:   []string{"-a", "+1000", "send", "-m", "hello", "+15551234567"},
		},
		{
			name:   "group target",
			chatID: "signal:group:abc123==",
			want:   []string{"-a", "+1000", "send", "-m", "hello", "-g", "abc123=="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sendArgs("+1000", tt.chatID, "hello")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sendArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignal_ReactArgs(t *testing.T) {
	r := domain.Reaction{
		Target:           "+15551234567",
		MessageID:        "1724900000000",
		Emoji:            "👍",
		TargetAuthorUUID: "uuid-1",
	}
	got, err := reactArgs("+1000", r)
	if err != nil {
		t.Fatalf("reactArgs: %v", err)
	}
	want := []string{"-a", "+1000", "sendReaction",
		"--emoji", "👍",
		"--target-timestamp", "1724900000000",
		"--target-author", "uuid-1",
		"+15551234567",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reactArgs = %v, want %v", got, want)
	}

	r.Target = "signal:group:xyz"
	r.TargetAuthorUUID = ""
	got, err = reactArgs("+1000", r)
	if err != nil {
		t.Fatalf("reactArgs group: %v", err)
	}
	want = []string{"-a", "+1000", "sendReaction",
		"--emoji", "👍",
		"--target-timestamp", "1724900000000",
		"-g", "xyz",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reactArgs group = %v, want %v", got, want)
	}

	r.MessageID = "not-a-timestamp"
	if _, err := reactArgs("+1000", r); err == nil {
		t.Error("expected error for non-numeric message id")
	}
}

func TestSignal_SendInvokesCLI(t *testing.T) {
	runner := &recordingRunner{}
	s := NewSignal(SignalConfig{
		Account: "+1000",
		Runner:  runner,
		Logger:  discardLogger(),
	})

	if err := s.Send(context.Background(), "+15551234567", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(runner.calls))
	}
	if runner.calls[0][0] != "signal-cli" {
		t.Errorf("binary = %q, want signal-cli", runner.calls[0][0])
	}
}

func TestSignal_SendErrorIncludesOutput(t *testing.T) {
	runner := &recordingRunner{output: []byte("Unregistered user\n"), err: fmt.Errorf("exit status 1")}
	s := NewSignal(SignalConfig{Account: "+1000", Runner: runner, Logger: discardLogger()})

	err := s.Send(context.Background(), "+15551234567", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "Unregistered user") {
		t.Errorf("error should carry CLI output, got %q", got)
	}
}

func TestSignal_ReceiveParsesEnvelopes(t *testing.T) {
	runner := &recordingRunner{output: []byte(`
{"envelope":{"source":"+15550001111","sourceUuid":"u1","timestamp":1724900000000,"dataMessage":{"message":"direct hello"}}}
{"envelope":{"source":"+15550002222","timestamp":1724900001000,"dataMessage":{"message":"group hello","groupInfo":{"groupId":"g1=="}}}}
{"envelope":{"source":"+15550003333","timestamp":1724900002000}}
not json
`)}
	s := NewSignal(SignalConfig{Account: "+1000", Runner: runner, Logger: discardLogger()})

	capture := newCaptureBus()
	if err := s.receiveOnce(context.Background(), capture); err != nil {
		t.Fatalf("receiveOnce: %v", err)
	}

	if len(capture.published) != 2 {
		t.Fatalf("expected 2 inbound messages, got %d", len(capture.published))
	}
	if capture.published[0].ChatID != "+15550001111" || capture.published[0].Content != "direct hello" {
		t.Errorf("direct message mismatch: %+v", capture.published[0])
	}
	if capture.published[1].ChatID != "signal:group:g1==" {
		t.Errorf("group chat id = %q", capture.published[1].ChatID)
	}
}

// captureBus records published inbound messages; the rest of the
// domain.MessageBus surface is inert.
type captureBus struct {
	published []domain.InboundMessage
	inbound   chan domain.InboundMessage
	handlers  map[string]func(domain.OutboundMessage)
}

func newCaptureBus() *captureBus {
	return &captureBus{
		inbound:  make(chan domain.InboundMessage, 16),
		handlers: make(map[string]func(domain.OutboundMessage)),
	}
}

func (b *captureBus) Publish(msg domain.InboundMessage) {
	b.published = append(b.published, msg)
}

func (b *captureBus) Subscribe() <-chan domain.InboundMessage { return b.inbound }

func (b *captureBus) SendOutbound(msg domain.OutboundMessage) {
	if h, ok := b.handlers[msg.Channel]; ok {
		h(msg)
	}
}

func (b *captureBus) OnOutbound(channel string, h func(domain.OutboundMessage)) {
	b.handlers[channel] = h
}

func (b *captureBus) Close() {}
