package downloads

import "context"

type Repository interface {
	// Mark records fileID as downloaded in sessionID. Marking twice is not an error.
	Mark(ctx context.Context, sessionID, fileID string) error

	// ListBySession returns downloaded file ids, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]string, error)

	// DeleteBySession forgets every download of the session.
	DeleteBySession(ctx context.Context, sessionID string) error
}
