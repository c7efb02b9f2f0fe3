package client

import "context"

// Client is the drop-session backend contract.
type Client interface {
	CreateSession(ctx context.Context) (*SessionDTO, error)
	GetSessionByCode(ctx context.Context, code string) (*SessionDTO, error)
	EndSession(ctx context.Context, sessionID string) error
	ActiveSessions(ctx context.Context) ([]SessionDTO, error)

	JoinSession(ctx context.Context, sessionID string) (*ParticipantDTO, error)
	LeaveSession(ctx context.Context, sessionID string) error
	Participants(ctx context.Context, sessionID string) (*RosterDTO, error)
	Settings(ctx context.Context, sessionID string) (*SettingsDTO, error)
	UpdateSettings(ctx context.Context, sessionID string, s SettingsDTO) (*SettingsDTO, error)

	RequestUploadURL(ctx context.Context, sessionID string, req UploadURLRequest) (*UploadURLResponse, error)
	ConfirmUpload(ctx context.Context, sessionID string, req ConfirmUploadRequest) (*FileDTO, error)
	Files(ctx context.Context, sessionID string) ([]FileDTO, error)
	DownloadURL(ctx context.Context, sessionID, fileID string) (string, error)
	MarkDownloaded(ctx context.Context, sessionID, fileID string) error

	Notes(ctx context.Context, sessionID string) ([]NoteDTO, error)
	CreateNote(ctx context.Context, sessionID string, req CreateNoteRequest) (*NoteDTO, error)
}
