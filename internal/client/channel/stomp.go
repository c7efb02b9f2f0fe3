package channel

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-stomp/stomp/v3/frame"
)

const subscriptionID = "sub-0"

// StompError is an ERROR frame sent by the broker.
type StompError struct {
	Message string
	Body    string
}

func (e *StompError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Body)
	}
	return "stomp error: " + e.Message
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrame parses one WebSocket message. A nil frame is a heart-beat.
func decodeFrame(b []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(b)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func connectFrame(host, token string) *frame.Frame {
	f := frame.New(frame.CONNECT,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", "0,0",
	)
	if token != "" {
		f.Header.Add("Authorization", "Bearer "+token)
	}
	return f
}

func subscribeFrame(sessionID string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		"id", subscriptionID,
		"destination", TopicFor(sessionID),
		"ack", "auto",
	)
}

func sendFrame(destination string, body []byte) *frame.Frame {
	f := frame.New(frame.SEND,
		"destination", destination,
		"content-type", "application/json",
	)
	f.Body = body
	return f
}

var errNotConnected = errors.New("stomp: expected CONNECTED")

func checkConnected(f *frame.Frame) error {
	if f == nil {
		return errNotConnected
	}
	switch f.Command {
	case frame.CONNECTED:
		return nil
	case frame.ERROR:
		return &StompError{Message: f.Header.Get("message"), Body: string(f.Body)}
	default:
		return fmt.Errorf("%w, got %s", errNotConnected, f.Command)
	}
}
