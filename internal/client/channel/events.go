package channel

import "encoding/json"

// Inbound envelope types on the session topic.
const (
	PeerJoined         = "PEER_JOINED"
	PeerLeft           = "PEER_LEFT"
	FileUploaded       = "FILE_UPLOADED"
	FileDownloaded     = "FILE_DOWNLOADED"
	SessionNoteCreated = "SESSION_NOTE_CREATED"
	SessionExpired     = "SESSION_EXPIRED"
	SessionClosed      = "SESSION_CLOSED"
	FilesPurged        = "FILES_PURGED"
)

// Envelope is the JSON body of every MESSAGE frame on the session topic.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TransportError is published on the event bus when the connection fails.
type TransportError struct {
	SessionID string
	Code      int
	Message   string
}

func TopicFor(sessionID string) string {
	return "/topic/sessions/" + sessionID
}
