package models

// Role of a participant within a session.
type Role string

const (
	RoleOwner Role = "OWNER"
	RolePeer  Role = "PEER"
)

// Participant is one device attached to a session. ID is unique within the
// roster and is the dedup key.
type Participant struct {
	ID          string
	UserID      string
	Role        Role
	DisplayName string
	Guest       bool
}

// Name returns the display name, or "Peer" plus the last four characters of
// the participant id when none was supplied.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	id := p.ID
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "Peer " + id
}

func (p Participant) IsOwner() bool {
	return p.Role == RoleOwner
}
