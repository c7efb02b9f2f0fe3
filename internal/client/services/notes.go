package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/google/uuid"
)

// MaxNoteLength is the longest note accepted, in runes.
const MaxNoteLength = 2000

// SendNote shows the note immediately and reconciles it with the server's
// copy once the create call returns. The create call is the only ack: when
// it fails the optimistic row is removed, so no note stays pending.
func (s *SessionService) SendNote(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		s.toast(toastFor("send the note", common.ErrEmptyNote))
		return common.ErrEmptyNote
	}
	if r := []rune(content); len(r) > MaxNoteLength {
		content = string(r[:MaxNoteLength])
	}

	sid, gen, err := s.requireSession()
	if err != nil {
		return err
	}

	clientID := common.TempIDPrefix + uuid.NewString()
	if !s.update(gen, func() {
		s.notes = append(s.notes, models.Note{
			Key:        models.NoteKey{ClientID: clientID},
			SenderID:   s.me.ID,
			Content:    content,
			CreatedAt:  s.now(),
			Optimistic: true,
		})
	}) {
		return errSuperseded
	}

	dto, err := s.api.CreateNote(ctx, sid, client.CreateNoteRequest{Content: content, ClientNoteID: clientID})
	if err != nil {
		forbidden := errors.Is(err, client.ErrForbidden)
		s.update(gen, func() {
			s.notes = models.RemoveNote(s.notes, clientID)
			if forbidden {
				s.guest = true
			}
		})
		if s.isCurrent(gen) {
			s.toast(toastFor("send notes", err))
		}
		return err
	}

	confirmed := noteFromDTO(*dto)
	if confirmed.Key.ClientID == "" {
		confirmed.Key.ClientID = clientID
	}
	s.update(gen, func() {
		s.notes, _ = models.MergeNote(s.notes, confirmed)
	})
	return nil
}
