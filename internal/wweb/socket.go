package wweb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Payload mirrors the platform's outbound message content shapes. Exactly
// one of Text, Image, Video, Audio or Document is populated.
type Payload struct {
	Text     string `json:"text,omitempty"`
	Image    []byte `json:"image,omitempty"`
	Video    []byte `json:"video,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	Document []byte `json:"document,omitempty"`
	PTT      bool   `json:"ptt,omitempty"` // play as voice note
	FileName string `json:"fileName,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
}

// BuildPayload constructs the channel payload for a message body and an
// optional classified attachment.
func BuildPayload(body string, art *Artifact) Payload {
	if art == nil {
		return Payload{Text: body}
	}

	mimetype := art.ContentType
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	switch art.Kind {
	case MediaAudio:
		return Payload{Audio: art.Data, PTT: true, Mimetype: mimetype}
	case MediaVideo:
		return Payload{Video: art.Data, Caption: body, Mimetype: mimetype}
	case MediaImage:
		return Payload{Image: art.Data, Caption: body, Mimetype: mimetype}
	default:
		fileName := art.FileName
		if fileName == "" {
			fileName = "file"
		}
		return Payload{Document: art.Data, FileName: fileName, Caption: body, Mimetype: mimetype}
	}
}

// SendResponse is the gateway's acknowledgement of a dispatched message.
// ID is empty when the gateway omits one.
type SendResponse struct {
	ID string
}

// Conn is a live connection to the web-session gateway. The wire protocol
// and cryptographic handshake live behind this boundary.
type Conn interface {
	// Ready yields nil once the connection is usable for sending, or the
	// handshake error. The channel is closed after the first value.
	Ready() <-chan error
	SendMessage(ctx context.Context, jid string, p Payload) (SendResponse, error)
	SendPresence(ctx context.Context, jid, state string) error
	Close() error
}

// Event is an inbound message surfaced by a connection that listens.
type Event struct {
	From      string
	Text      string
	Timestamp time.Time
}

// EventConn is a Conn that also surfaces inbound traffic. The gateway
// listener needs it; one-shot ephemeral sends do not.
type EventConn interface {
	Conn
	Events() <-chan Event
}

// SocketFactory creates a fresh connection. freshLogin forces the gateway
// to discard stored credentials and start a new pairing.
type SocketFactory func(ctx context.Context, freshLogin bool) (Conn, error)

// --- websocket gateway transport ---

// wsFrame is the JSON frame protocol spoken with the session gateway.
type wsFrame struct {
	Type    string   `json:"type"` // send | presence | ready | ack | message | error
	Seq     int64    `json:"seq,omitempty"`
	JID     string   `json:"jid,omitempty"`
	State   string   `json:"state,omitempty"`
	Payload *Payload `json:"payload,omitempty"`
	ID      string   `json:"id,omitempty"`
	From    string   `json:"from,omitempty"`
	Text    string   `json:"text,omitempty"`
	Error   string   `json:"error,omitempty"`
	Fresh   bool     `json:"fresh,omitempty"`
}

// gatewaySocket speaks JSON frames to the session gateway over a websocket.
type gatewaySocket struct {
	ws      *websocket.Conn
	ready   chan error
	events  chan Event
	writeMu sync.Mutex

	mu      sync.Mutex
	seq     int64
	pending map[int64]chan wsFrame
	closed  bool
}

// DialGateway returns a SocketFactory that connects to the given websocket
// gateway URL.
func DialGateway(gatewayURL string) SocketFactory {
	return func(ctx context.Context, freshLogin bool) (Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
		ws, _, err := dialer.DialContext(ctx, gatewayURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, gatewayURL, err)
		}

		s := &gatewaySocket{
			ws:      ws,
			ready:   make(chan error, 1),
			events:  make(chan Event, 64),
			pending: make(map[int64]chan wsFrame),
		}
		go s.readLoop()

		if err := s.writeFrame(wsFrame{Type: "hello", Fresh: freshLogin}); err != nil {
			ws.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return s, nil
	}
}

func (s *gatewaySocket) Ready() <-chan error { return s.ready }

func (s *gatewaySocket) Events() <-chan Event { return s.events }

func (s *gatewaySocket) readLoop() {
	defer func() {
		s.mu.Lock()
		for _, ch := range s.pending {
			close(ch)
		}
		s.pending = make(map[int64]chan wsFrame)
		s.mu.Unlock()
		close(s.events)
	}()

	readySignaled := false
	for {
		var frame wsFrame
		if err := s.ws.ReadJSON(&frame); err != nil {
			if !readySignaled {
				s.ready <- fmt.Errorf("%w: %v", ErrConnect, err)
				close(s.ready)
			}
			return
		}

		switch frame.Type {
		case "ready":
			if !readySignaled {
				readySignaled = true
				s.ready <- nil
				close(s.ready)
			}
		case "error":
			if !readySignaled {
				readySignaled = true
				s.ready <- fmt.Errorf("%w: %s", ErrConnect, frame.Error)
				close(s.ready)
			}
		case "ack":
			s.mu.Lock()
			ch, ok := s.pending[frame.Seq]
			delete(s.pending, frame.Seq)
			s.mu.Unlock()
			if ok {
				ch <- frame
			}
		case "message":
			select {
			case s.events <- Event{From: frame.From, Text: frame.Text, Timestamp: time.Now()}:
			default:
				// Listener not draining; drop rather than stall the socket.
			}
		}
	}
}

func (s *gatewaySocket) writeFrame(f wsFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *gatewaySocket) SendMessage(ctx context.Context, jid string, p Payload) (SendResponse, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	ack := make(chan wsFrame, 1)
	s.pending[seq] = ack
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
	}()

	if err := s.writeFrame(wsFrame{Type: "send", Seq: seq, JID: jid, Payload: &p}); err != nil {
		return SendResponse{}, fmt.Errorf("send frame: %w", err)
	}

	select {
	case frame, ok := <-ack:
		if !ok {
			return SendResponse{}, fmt.Errorf("connection closed before ack")
		}
		if frame.Error != "" {
			return SendResponse{}, fmt.Errorf("gateway rejected send: %s", frame.Error)
		}
		return SendResponse{ID: frame.ID}, nil
	case <-ctx.Done():
		return SendResponse{}, ctx.Err()
	}
}

func (s *gatewaySocket) SendPresence(ctx context.Context, jid, state string) error {
	return s.writeFrame(wsFrame{Type: "presence", JID: jid, State: state})
}

func (s *gatewaySocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.ws.Close()
}
