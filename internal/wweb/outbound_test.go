package wweb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeConn is a scriptable Conn that records what the dispatcher does.
type fakeConn struct {
	mu            sync.Mutex
	ready         chan error
	resp          SendResponse
	sendErr       error
	presenceErr   error
	closeErr      error
	closeCount    int
	sentJID       string
	sentPayloads  []Payload
	presenceCalls []string
}

func newFakeConn() *fakeConn {
	ready := make(chan error, 1)
	ready <- nil
	close(ready)
	return &fakeConn{ready: ready, resp: SendResponse{ID: "MSG-1"}}
}

// newStalledConn never signals readiness.
func newStalledConn() *fakeConn {
	return &fakeConn{ready: make(chan error)}
}

func (c *fakeConn) Ready() <-chan error { return c.ready }

func (c *fakeConn) SendMessage(ctx context.Context, jid string, p Payload) (SendResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return SendResponse{}, c.sendErr
	}
	c.sentJID = jid
	c.sentPayloads = append(c.sentPayloads, p)
	return c.resp, nil
}

func (c *fakeConn) SendPresence(ctx context.Context, jid, state string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.presenceErr != nil {
		return c.presenceErr
	}
	c.presenceCalls = append(c.presenceCalls, state+" "+jid)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return c.closeErr
}

// fakeSession records the call order an active session sees.
type fakeSession struct {
	mu           sync.Mutex
	calls        []string
	composingErr error
	sendErr      error
	receipt      domain.SendReceipt
	lastMedia    []byte
	lastType     string
}

func (s *fakeSession) SendMessage(ctx context.Context, to, text string, media []byte, mediaType string) (domain.SendReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "sendMessage")
	s.lastMedia = media
	s.lastType = mediaType
	if s.sendErr != nil {
		return domain.SendReceipt{}, s.sendErr
	}
	return s.receipt, nil
}

func (s *fakeSession) SendComposingTo(ctx context.Context, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "sendComposing")
	return s.composingErr
}

func newTestDispatcher(t *testing.T, factory SocketFactory, registry *Registry) *Dispatcher {
	t.Helper()
	logger := testLogger()
	return NewDispatcher(DispatcherConfig{
		Registry: registry,
		Manager: NewManager(ManagerConfig{
			Factory:      factory,
			ReadyTimeout: 200 * time.Millisecond,
			Logger:       logger,
		}),
		Media:  NewResolver(ResolverConfig{Logger: logger}),
		Logger: logger,
	})
}

func countingFactory(conn Conn) (SocketFactory, *int) {
	count := new(int)
	return func(ctx context.Context, fresh bool) (Conn, error) {
		*count++
		return conn, nil
	}, count
}

func TestSend_NoActiveSession_PlainText(t *testing.T) {
	conn := newFakeConn()
	factory, connects := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if *connects != 1 {
		t.Errorf("connects: got %d, want 1", *connects)
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
	if res.ToJID != "15551234567@s.whatsapp.net" {
		t.Errorf("ToJID: got %q", res.ToJID)
	}
	if res.MessageID != "MSG-1" {
		t.Errorf("MessageID: got %q", res.MessageID)
	}
	if len(conn.sentPayloads) != 1 || conn.sentPayloads[0].Text != "hi" {
		t.Errorf("payload: got %+v", conn.sentPayloads)
	}
	if len(conn.presenceCalls) != 1 || conn.presenceCalls[0] != "composing 15551234567@s.whatsapp.net" {
		t.Errorf("presence: got %v", conn.presenceCalls)
	}
}

func TestSend_SendFailure_StillClosesConnection(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("stream errored")
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
}

func TestSend_CloseFailureIsSwallowed(t *testing.T) {
	conn := newFakeConn()
	conn.closeErr = errors.New("already closed")
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	if _, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"}); err != nil {
		t.Fatalf("Send should succeed despite close failure: %v", err)
	}
}

func TestSend_EphemeralPresenceFailure_StillSucceeds(t *testing.T) {
	conn := newFakeConn()
	conn.presenceErr = errors.New("presence rejected")
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "MSG-1" {
		t.Errorf("MessageID: got %q", res.MessageID)
	}
}

func TestSend_ReadyTimeout_NoDispatch(t *testing.T) {
	conn := newStalledConn()
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
	if len(conn.sentPayloads) != 0 {
		t.Errorf("no message should be dispatched, got %v", conn.sentPayloads)
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
}

func TestSend_HandshakeRejected(t *testing.T) {
	conn := &fakeConn{ready: make(chan error, 1)}
	conn.ready <- fmt.Errorf("%w: logged out", ErrConnect)
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
}

func TestSend_MissingMessageID_FallsBackToUnknown(t *testing.T) {
	conn := newFakeConn()
	conn.resp = SendResponse{}
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != UnknownMessageID {
		t.Errorf("MessageID: got %q, want %q", res.MessageID, UnknownMessageID)
	}
}

func TestSend_BadRecipient_StillClosesConnection(t *testing.T) {
	conn := newFakeConn()
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "not a number", Body: "hi"})
	if !errors.Is(err, ErrBadRecipient) {
		t.Fatalf("expected ErrBadRecipient, got %v", err)
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
}

func TestSend_MediaFetchFailure_StillClosesConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	conn := newFakeConn()
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi", MediaURL: srv.URL + "/gone.png"})
	if !errors.Is(err, ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch, got %v", err)
	}
	if len(conn.sentPayloads) != 0 {
		t.Errorf("no message should be dispatched, got %v", conn.sentPayloads)
	}
	if conn.closeCount != 1 {
		t.Errorf("closeCount: got %d, want 1", conn.closeCount)
	}
}

func TestSend_ActiveSession_NoEphemeralConnection(t *testing.T) {
	session := &fakeSession{receipt: domain.SendReceipt{MessageID: "ACTIVE-1"}}
	registry := NewRegistry()
	registry.SetActive(session)

	factory, connects := countingFactory(newFakeConn())
	d := newTestDispatcher(t, factory, registry)

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if *connects != 0 {
		t.Errorf("connects: got %d, want 0", *connects)
	}
	if res.MessageID != "ACTIVE-1" {
		t.Errorf("MessageID: got %q", res.MessageID)
	}
	want := []string{"sendComposing", "sendMessage"}
	if len(session.calls) != 2 || session.calls[0] != want[0] || session.calls[1] != want[1] {
		t.Errorf("call order: got %v, want %v", session.calls, want)
	}
}

func TestSend_ActiveSession_MediaBytesPassedThrough(t *testing.T) {
	payload := []byte("\x89PNG fake image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	session := &fakeSession{receipt: domain.SendReceipt{MessageID: "ACTIVE-2"}}
	registry := NewRegistry()
	registry.SetActive(session)

	factory, connects := countingFactory(newFakeConn())
	d := newTestDispatcher(t, factory, registry)

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "look", MediaURL: srv.URL + "/pic.png"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if *connects != 0 {
		t.Errorf("connects: got %d, want 0", *connects)
	}
	if session.lastType != "image/png" {
		t.Errorf("media type: got %q, want image/png", session.lastType)
	}
	if string(session.lastMedia) != string(payload) {
		t.Errorf("media bytes not passed through")
	}
	if len(session.calls) < 2 || session.calls[0] != "sendComposing" {
		t.Errorf("sendComposing should precede sendMessage: %v", session.calls)
	}
}

func TestSend_ActiveSession_ComposingFailureStillSucceeds(t *testing.T) {
	session := &fakeSession{
		receipt:      domain.SendReceipt{MessageID: "ACTIVE-3"},
		composingErr: errors.New("presence rejected"),
	}
	registry := NewRegistry()
	registry.SetActive(session)

	factory, _ := countingFactory(newFakeConn())
	d := newTestDispatcher(t, factory, registry)

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "ACTIVE-3" {
		t.Errorf("MessageID: got %q", res.MessageID)
	}
}

func TestSend_ActiveSession_EmptyReceiptFallsBackToUnknown(t *testing.T) {
	session := &fakeSession{}
	registry := NewRegistry()
	registry.SetActive(session)

	factory, _ := countingFactory(newFakeConn())
	d := newTestDispatcher(t, factory, registry)

	res, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != UnknownMessageID {
		t.Errorf("MessageID: got %q, want %q", res.MessageID, UnknownMessageID)
	}
}

func TestSend_VoiceNotePayload(t *testing.T) {
	audio := []byte("OggS fake voice data")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		w.Write(audio)
	}))
	defer srv.Close()

	conn := newFakeConn()
	factory, _ := countingFactory(conn)
	d := newTestDispatcher(t, factory, NewRegistry())

	_, err := d.Send(context.Background(), OutboundRequest{To: "+15551234567", Body: "", MediaURL: srv.URL + "/note.ogg"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(conn.sentPayloads) != 1 {
		t.Fatalf("payloads: got %d, want 1", len(conn.sentPayloads))
	}
	p := conn.sentPayloads[0]
	if !p.PTT {
		t.Error("voice note should set PTT")
	}
	if p.Mimetype != "audio/ogg; codecs=opus" {
		t.Errorf("mimetype: got %q", p.Mimetype)
	}
	if !strings.HasPrefix(string(p.Audio), "OggS") {
		t.Errorf("audio bytes not carried")
	}
}
