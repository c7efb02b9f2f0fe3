package metadata

import (
	"context"
	"encoding/json"
	"fmt"
)

const currentSessionKey = "current_session"

// SessionPointer is what a restarted client needs to rejoin its session.
type SessionPointer struct {
	SessionID     string `json:"sessionId"`
	Code          string `json:"code"`
	ParticipantID string `json:"participantId,omitempty"`
}

func SavePointer(ctx context.Context, repo Repository, p SessionPointer) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return repo.Set(ctx, currentSessionKey, b)
}

// LoadPointer returns nil when no session is remembered.
func LoadPointer(ctx context.Context, repo Repository) (*SessionPointer, error) {
	b, err := repo.Get(ctx, currentSessionKey)
	if err != nil || b == nil {
		return nil, err
	}
	var p SessionPointer
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("corrupt session pointer: %w", err)
	}
	return &p, nil
}

func ForgetPointer(ctx context.Context, repo Repository) error {
	return repo.Delete(ctx, currentSessionKey)
}
