package models

import "time"

// NoteKey identifies a note row; see FileKey.
type NoteKey struct {
	ClientID string
	ServerID string
}

func (k NoteKey) Pending() bool {
	return k.ServerID == ""
}

func (k NoteKey) ID() string {
	if k.ServerID != "" {
		return k.ServerID
	}
	return k.ClientID
}

// Note is a short text message exchanged in a session. Ordering is arrival order.
type Note struct {
	Key        NoteKey
	SenderID   string
	Content    string
	CreatedAt  time.Time
	Optimistic bool
}

// MergeNote reconciles a server-confirmed note onto rows. A row is matched
// by the echoed client id first, by server id second and finally by a pending
// optimistic row with the same sender and content (for echoes that lost the
// client id). Unmatched notes are appended. The matched row keeps its position.
func MergeNote(rows []Note, in Note) ([]Note, int) {
	if in.Key.ClientID != "" {
		for i := range rows {
			if rows[i].Key.ClientID == in.Key.ClientID {
				rows[i] = confirmNote(rows[i], in)
				return rows, i
			}
		}
	}
	if in.Key.ServerID != "" {
		for i := range rows {
			if rows[i].Key.ServerID == in.Key.ServerID {
				rows[i] = confirmNote(rows[i], in)
				return rows, i
			}
		}
	}
	if in.SenderID != "" {
		for i := range rows {
			r := rows[i]
			if r.Optimistic && r.Key.Pending() && r.SenderID == in.SenderID && r.Content == in.Content {
				rows[i] = confirmNote(r, in)
				return rows, i
			}
		}
	}
	in.Optimistic = false
	return append(rows, in), len(rows)
}

// RemoveNote drops the row with the given client id, if present.
func RemoveNote(rows []Note, clientID string) []Note {
	out := rows[:0]
	for _, r := range rows {
		if r.Key.ClientID != clientID {
			out = append(out, r)
		}
	}
	return out
}

func confirmNote(cur, in Note) Note {
	if in.Key.ServerID != "" {
		cur.Key.ServerID = in.Key.ServerID
	}
	if cur.Key.ClientID == "" {
		cur.Key.ClientID = in.Key.ClientID
	}
	if in.SenderID != "" {
		cur.SenderID = in.SenderID
	}
	if in.Content != "" {
		cur.Content = in.Content
	}
	if !in.CreatedAt.IsZero() {
		cur.CreatedAt = in.CreatedAt
	}
	cur.Optimistic = false
	return cur
}
