package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gregghy/sec-projet/protocol"
)

// EventStream is a live subscription to the server's push channel. Events
// arrive in server publish order until the stream ends; the terminal cause
// is then available on Err. A frame with an unknown tag ends the stream with
// a decode error rather than being skipped.
type EventStream struct {
	conn   *websocket.Conn
	events chan protocol.Event
	err    chan error
}

// Listen dials the push channel for the established session. The returned
// stream delivers events until the context is cancelled, the connection
// drops, or a frame fails to decode. There is no replay: callers re-fetch
// auction state after reconnecting.
func (c *Client) Listen(ctx context.Context) (*EventStream, error) {
	session := c.Session()
	if session == nil {
		return nil, ErrSessionNotEstablished
	}

	wsURL, err := pushURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(protocol.SessionHeader, session.ID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	stream := &EventStream{
		conn:   conn,
		events: make(chan protocol.Event, 16),
		err:    make(chan error, 1),
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go stream.readLoop(ctx)

	return stream, nil
}

// Events returns the receive channel; it is closed when the stream ends.
func (s *EventStream) Events() <-chan protocol.Event {
	return s.events
}

// Err reports why the stream ended. It yields at most one error; a stream
// closed by context cancellation reports the context error.
func (s *EventStream) Err() <-chan error {
	return s.err
}

// Close tears the connection down; the read loop then finishes.
func (s *EventStream) Close() error {
	return s.conn.Close()
}

func (s *EventStream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.conn.Close()

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.err <- ctx.Err()
			} else {
				s.err <- fmt.Errorf("push channel: %w", err)
			}
			return
		}

		ev, err := protocol.ParseEvent(frame)
		if err != nil {
			s.err <- err
			return
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			s.err <- ctx.Err()
			return
		}
	}
}

func pushURL(baseURL string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "http://"):
		return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws", nil
	case strings.HasPrefix(baseURL, "https://"):
		return "wss" + strings.TrimPrefix(baseURL, "https") + "/ws", nil
	}
	return "", fmt.Errorf("cannot derive push URL from %q", baseURL)
}
