package services

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/lazydrop/internal/client/channel"
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
)

// subscribe registers the real-time handlers of session generation gen.
func (s *SessionService) subscribe(gen uint64) []func() {
	on := func(typ string, fn func(gen uint64, raw json.RawMessage)) func() {
		return s.ch.Subscribe(typ, func(raw json.RawMessage) { fn(gen, raw) })
	}
	return []func(){
		on(channel.PeerJoined, s.onPeerJoined),
		on(channel.PeerLeft, s.onPeerLeft),
		on(channel.FileUploaded, s.onFileUploaded),
		on(channel.FileDownloaded, s.onFileDownloaded),
		on(channel.SessionNoteCreated, s.onNoteCreated),
		on(channel.FilesPurged, s.onFilesPurged),
		on(channel.SessionExpired, func(gen uint64, _ json.RawMessage) { s.teardown(gen, ReasonExpired) }),
		on(channel.SessionClosed, func(gen uint64, _ json.RawMessage) { s.teardown(gen, ReasonClosed) }),
	}
}

func (s *SessionService) decode(typ string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn(context.Background(), "bad real-time payload", "type", typ, "error", err)
		return false
	}
	return true
}

func (s *SessionService) onPeerJoined(gen uint64, raw json.RawMessage) {
	var d client.ParticipantDTO
	if !s.decode(channel.PeerJoined, raw, &d) || d.ParticipantID == "" {
		return
	}
	p := participantFromDTO(d)

	var added, self bool
	var roster []models.Participant
	ok := s.update(gen, func() {
		self = s.me != nil && s.me.ID == p.ID
		for i := range s.participants {
			if s.participants[i].ID == p.ID {
				s.participants[i] = p
				roster = append(roster, s.participants...)
				return
			}
		}
		s.participants = append(s.participants, p)
		roster = append(roster, s.participants...)
		added = true
	})
	if !ok {
		return
	}
	s.bus.Emit(eventbus.ParticipantsChanged, roster)
	if added && !self {
		s.info(p.Name() + " joined the session.")
	}
}

func (s *SessionService) onPeerLeft(gen uint64, raw json.RawMessage) {
	var d client.ParticipantLeftEvent
	if !s.decode(channel.PeerLeft, raw, &d) {
		return
	}

	var gone *models.Participant
	var roster []models.Participant
	ok := s.update(gen, func() {
		kept := s.participants[:0]
		for _, p := range s.participants {
			if p.ID == d.ParticipantID {
				cp := p
				gone = &cp
				continue
			}
			kept = append(kept, p)
		}
		s.participants = kept
		roster = append(roster, kept...)
	})
	if !ok || gone == nil {
		return
	}
	s.bus.Emit(eventbus.ParticipantsChanged, roster)
	s.info(gone.Name() + " left the session.")
}

func (s *SessionService) onFileUploaded(gen uint64, raw json.RawMessage) {
	var d client.FileDTO
	if !s.decode(channel.FileUploaded, raw, &d) || d.ID == "" {
		return
	}

	var row models.TransferredFile
	var fromPeer bool
	ok := s.update(gen, func() {
		meID := ""
		if s.me != nil {
			meID = s.me.ID
		}
		var i int
		s.files, i = models.MergeFile(s.files, fileFromDTO(d, meID))
		row = s.files[i]
		fromPeer = row.UploaderID != meID && !isLocalUpload(row)
	})
	if !ok {
		return
	}
	s.bus.Emit(eventbus.FileUploaded, row)
	if fromPeer {
		s.info("New file: " + row.Name)
		s.scheduleAutoDownload(gen)
	}
}

func (s *SessionService) onFileDownloaded(gen uint64, raw json.RawMessage) {
	var d client.FileDownloadedEvent
	if !s.decode(channel.FileDownloaded, raw, &d) {
		return
	}

	var row models.TransferredFile
	found := false
	s.update(gen, func() {
		i := models.FindFile(s.files, d.FileID)
		if i < 0 {
			return
		}
		f := &s.files[i]
		if s.me != nil && d.ParticipantID == s.me.ID {
			f.DownloadedByMe = true
			f.Status = models.FileDownloaded
		} else {
			f.SeenByPeer = true
		}
		row, found = *f, true
	})
	if found {
		s.bus.Emit(eventbus.FileDownloaded, row)
	}
}

func (s *SessionService) onNoteCreated(gen uint64, raw json.RawMessage) {
	var d client.NoteDTO
	if !s.decode(channel.SessionNoteCreated, raw, &d) {
		return
	}
	n := noteFromDTO(d)

	var fromPeer bool
	ok := s.update(gen, func() {
		s.notes, _ = models.MergeNote(s.notes, n)
		fromPeer = s.me == nil || n.SenderID != s.me.ID
	})
	if ok && fromPeer {
		s.bus.Emit(eventbus.NoteReceived, n)
	}
}

func (s *SessionService) onFilesPurged(gen uint64, _ json.RawMessage) {
	ok := s.update(gen, func() {
		s.files = nil
		s.downloading = make(map[string]bool)
	})
	if !ok {
		return
	}
	s.bus.Emit(eventbus.FilesPurged, nil)
	s.info("The session files were removed.")
}
