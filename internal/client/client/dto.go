package client

import "time"

// Wire shapes of the drop-session REST API. Field names follow the server's
// camelCase JSON.

type SessionDTO struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	QRCode    string    `json:"qrCode,omitempty"`
}

type ParticipantDTO struct {
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId,omitempty"`
	Role          string `json:"role"`
	DisplayName   string `json:"displayName,omitempty"`
	IsGuest       bool   `json:"isGuest"`
}

type RosterDTO struct {
	Participants []ParticipantDTO `json:"participants"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

type SettingsDTO struct {
	AutoDownload bool `json:"autoDownload"`
}

type UploadURLRequest struct {
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

type UploadURLResponse struct {
	UploadURL  string            `json:"uploadUrl"`
	StorageKey string            `json:"storageKey"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type ConfirmUploadRequest struct {
	StorageKey  string `json:"storageKey"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

type FileDTO struct {
	ID                    string    `json:"id"`
	FileName              string    `json:"fileName"`
	FileSize              int64     `json:"fileSize"`
	ContentType           string    `json:"contentType,omitempty"`
	UploaderParticipantID string    `json:"uploaderParticipantId,omitempty"`
	DownloadedByMe        bool      `json:"downloadedByMe"`
	DownloadCount         int       `json:"downloadCount"`
	CreatedAt             time.Time `json:"createdAt"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

type NoteDTO struct {
	ID            string    `json:"id"`
	ClientNoteID  string    `json:"clientNoteId,omitempty"`
	ParticipantID string    `json:"participantId"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CreateNoteRequest struct {
	Content      string `json:"content"`
	ClientNoteID string `json:"clientNoteId"`
}

// FileDownloadedEvent is the payload of FILE_DOWNLOADED broadcasts.
type FileDownloadedEvent struct {
	FileID        string `json:"fileId"`
	ParticipantID string `json:"participantId"`
}

// ParticipantLeftEvent is the payload of PEER_LEFT broadcasts.
type ParticipantLeftEvent struct {
	ParticipantID string `json:"participantId"`
}
