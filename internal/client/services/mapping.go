package services

import (
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
)

func sessionFromDTO(d *client.SessionDTO, joinBase string) *models.Session {
	code := models.NormalizeCode(d.Code)
	qr := d.QRCode
	if qr == "" && code != "" {
		qr = models.JoinURL(joinBase, code)
	}
	return &models.Session{
		ID:          d.ID,
		Code:        code,
		CodeDisplay: models.FormatCode(code),
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
		QRPayload:   qr,
	}
}

func participantFromDTO(d client.ParticipantDTO) models.Participant {
	role := models.Role(d.Role)
	if role != models.RoleOwner {
		role = models.RolePeer
	}
	return models.Participant{
		ID:          d.ParticipantID,
		UserID:      d.UserID,
		Role:        role,
		DisplayName: d.DisplayName,
		Guest:       d.IsGuest,
	}
}

func participantsFromDTO(list []client.ParticipantDTO) []models.Participant {
	out := make([]models.Participant, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, d := range list {
		if seen[d.ParticipantID] {
			continue
		}
		seen[d.ParticipantID] = true
		out = append(out, participantFromDTO(d))
	}
	return out
}

func fileFromDTO(d client.FileDTO, meID string) models.TransferredFile {
	f := models.TransferredFile{
		Key:            models.FileKey{ServerID: d.ID},
		Name:           d.FileName,
		Size:           d.FileSize,
		ContentType:    d.ContentType,
		UploaderID:     d.UploaderParticipantID,
		Status:         models.FileUploaded,
		Progress:       100,
		DownloadedByMe: d.DownloadedByMe,
		CreatedAt:      d.CreatedAt,
	}
	if d.UploaderParticipantID == meID && d.DownloadCount > 0 {
		f.SeenByPeer = true
	}
	if f.DownloadedByMe {
		f.Status = models.FileDownloaded
	}
	return f
}

func noteFromDTO(d client.NoteDTO) models.Note {
	return models.Note{
		Key:       models.NoteKey{ClientID: d.ClientNoteID, ServerID: d.ID},
		SenderID:  d.ParticipantID,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}
