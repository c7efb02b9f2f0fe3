package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/google/uuid"
)

// snapshot is everything a session needs to become active.
type snapshot struct {
	session      *models.Session
	me           models.Participant
	participants []models.Participant
	files        []models.TransferredFile
	notes        []models.Note
	guest        bool
	autoDownload bool
}

// CreatePairing mints a new session, joins it as owner and makes it current.
func (s *SessionService) CreatePairing(ctx context.Context) (*models.Session, error) {
	gen := s.begin(models.PhaseCreating)

	dto, err := s.api.CreateSession(ctx)
	if err != nil {
		return nil, s.fail(gen, "create a session", err)
	}
	sess := sessionFromDTO(dto, s.cfg.JoinURLBase)

	p, err := s.api.JoinSession(ctx, sess.ID)
	if err != nil {
		return nil, s.fail(gen, "open your new session", err)
	}
	me := participantFromDTO(*p)
	if sess.OwnerID == "" {
		sess.OwnerID = me.ID
	}

	snap := snapshot{
		session:      sess,
		me:           me,
		participants: []models.Participant{me},
		guest:        me.Guest,
	}

	if files, err := s.api.Files(ctx, sess.ID); err != nil {
		s.logger.Warn(ctx, "preload files failed", "session_id", sess.ID, "error", err)
	} else {
		snap.files = s.mapFiles(files, me.ID)
	}
	snap.autoDownload = s.loadSettings(ctx, sess.ID)

	if err := s.activate(ctx, gen, snap); err != nil {
		return nil, err
	}
	return s.Session(), nil
}

// JoinSession attaches to an existing session by its human code (any case,
// separators allowed) or by its id. A nil error means the session is active.
func (s *SessionService) JoinSession(ctx context.Context, codeOrID string) error {
	ref := strings.TrimSpace(codeOrID)

	var sessionID, code string
	if _, err := uuid.Parse(ref); err == nil {
		sessionID = ref
	} else {
		code = models.NormalizeCode(ref)
		if !models.ValidCode(code) {
			s.toast(toastFor("join", common.ErrInvalidCode))
			return common.ErrInvalidCode
		}
	}

	gen := s.begin(models.PhaseJoining)

	sess := &models.Session{ID: sessionID}
	if code != "" {
		dto, err := s.api.GetSessionByCode(ctx, code)
		if err != nil {
			return s.fail(gen, "join the session", err)
		}
		sess = sessionFromDTO(dto, s.cfg.JoinURLBase)
	}
	log := s.logger.With("session_id", sess.ID)

	p, err := s.api.JoinSession(ctx, sess.ID)
	if err != nil {
		return s.fail(gen, "join the session", err)
	}
	me := participantFromDTO(*p)

	roster, err := s.api.Participants(ctx, sess.ID)
	if err != nil {
		return s.fail(gen, "load the participants", err)
	}
	if !roster.ExpiresAt.IsZero() {
		sess.ExpiresAt = roster.ExpiresAt
	}

	files, err := s.api.Files(ctx, sess.ID)
	if err != nil {
		return s.fail(gen, "load the session files", err)
	}

	snap := snapshot{
		session:      sess,
		me:           me,
		participants: withParticipant(participantsFromDTO(roster.Participants), me),
		files:        s.mapFiles(files, me.ID),
		guest:        me.Guest,
	}

	notes, err := s.api.Notes(ctx, sess.ID)
	switch {
	case errors.Is(err, client.ErrForbidden):
		log.Info(ctx, "notes are not available to this participant")
		snap.guest = true
	case err != nil:
		return s.fail(gen, "load the session notes", err)
	default:
		for _, n := range notes {
			snap.notes, _ = models.MergeNote(snap.notes, noteFromDTO(n))
		}
	}

	snap.autoDownload = s.loadSettings(ctx, sess.ID)
	s.applyLocalDownloads(ctx, sess.ID, snap.files)

	return s.activate(ctx, gen, snap)
}

// Rehydrate rejoins the session remembered in the local state database, if
// any. It runs the same sequence as JoinSession.
func (s *SessionService) Rehydrate(ctx context.Context) error {
	if s.meta == nil {
		return nil
	}
	p, err := metadata.LoadPointer(ctx, s.meta)
	if err != nil {
		s.logger.Warn(ctx, "cannot read the remembered session", "error", err)
		_ = metadata.ForgetPointer(ctx, s.meta)
		return err
	}
	if p == nil {
		return nil
	}

	ref := p.Code
	if ref == "" {
		ref = p.SessionID
	}
	err = s.JoinSession(ctx, ref)
	if errors.Is(err, client.ErrNotFound) || errors.Is(err, common.ErrInvalidCode) {
		_ = metadata.ForgetPointer(ctx, s.meta)
	}
	return err
}

// LeaveRoom removes this participant from the session. Local state is torn
// down even when the server call fails.
func (s *SessionService) LeaveRoom(ctx context.Context) error {
	id, gen, ok := s.current()
	if !ok {
		return common.ErrNoActiveSession
	}

	if err := s.api.LeaveSession(ctx, id); err != nil {
		s.logger.Warn(ctx, "leave request failed, leaving locally", "session_id", id, "error", err)
	}
	s.teardown(gen, ReasonLeft)
	return nil
}

// EndSessionForEveryone closes the session for all participants. The local
// teardown happens when the SESSION_CLOSED broadcast arrives.
func (s *SessionService) EndSessionForEveryone(ctx context.Context) error {
	id, _, err := s.requireSession()
	if err != nil {
		return err
	}
	if me := s.Me(); me == nil || !me.IsOwner() {
		s.toast(toastFor("end the session", common.ErrNotOwner))
		return common.ErrNotOwner
	}

	if err := s.api.EndSession(ctx, id); err != nil {
		s.toast(toastFor("end the session", err))
		return err
	}
	s.info("Ending the session for everyone...")
	return nil
}

// SetAutoDownload stores the preference on the server and, when turned on,
// starts fetching files that are waiting.
func (s *SessionService) SetAutoDownload(ctx context.Context, on bool) error {
	id, gen, err := s.requireSession()
	if err != nil {
		return err
	}

	st, err := s.api.UpdateSettings(ctx, id, client.SettingsDTO{AutoDownload: on})
	if err != nil {
		s.toast(toastFor("change auto-download", err))
		return err
	}
	s.update(gen, func() { s.autoDownload = st.AutoDownload })
	if st.AutoDownload {
		s.scheduleAutoDownload(gen)
	}
	return nil
}

func (s *SessionService) loadSettings(ctx context.Context, sessionID string) bool {
	st, err := s.api.Settings(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "load settings failed", "session_id", sessionID, "error", err)
		return false
	}
	return st.AutoDownload
}

func (s *SessionService) mapFiles(list []client.FileDTO, meID string) []models.TransferredFile {
	var rows []models.TransferredFile
	for _, d := range list {
		rows, _ = models.MergeFile(rows, fileFromDTO(d, meID))
	}
	return rows
}

// applyLocalDownloads marks files this client saved in an earlier run.
func (s *SessionService) applyLocalDownloads(ctx context.Context, sessionID string, rows []models.TransferredFile) {
	if s.downloads == nil {
		return
	}
	ids, err := s.downloads.ListBySession(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "read local downloads failed", "session_id", sessionID, "error", err)
		return
	}
	for _, id := range ids {
		if i := models.FindFile(rows, id); i >= 0 {
			rows[i].DownloadedByMe = true
			rows[i].Status = models.FileDownloaded
		}
	}
}

func withParticipant(list []models.Participant, p models.Participant) []models.Participant {
	for i := range list {
		if list[i].ID == p.ID {
			return list
		}
	}
	return append(list, p)
}

// begin replaces whatever session is current and starts a new generation.
func (s *SessionService) begin(phase models.Phase) uint64 {
	s.mu.Lock()
	prev, busy := s.gen, s.phase != models.PhaseNone
	s.mu.Unlock()

	if busy {
		s.teardown(prev, ReasonReplaced)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.phase = phase
	return s.gen
}

// fail ends a create/join attempt and shows the matching toast.
func (s *SessionService) fail(gen uint64, action string, err error) error {
	s.mu.Lock()
	stale := gen != s.gen
	if !stale && (s.phase == models.PhaseCreating || s.phase == models.PhaseJoining) {
		s.phase = models.PhaseNone
	}
	s.mu.Unlock()

	s.logger.Warn(context.Background(), "session request failed", "action", action, "error", err)
	if !stale {
		s.toast(toastFor(action, err))
	}
	return err
}

func (s *SessionService) activate(ctx context.Context, gen uint64, snap snapshot) error {
	sessCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		return errSuperseded
	}
	me := snap.me
	s.phase = models.PhaseActive
	s.lastEnd = ""
	s.session = snap.session
	s.me = &me
	s.participants = snap.participants
	s.files = snap.files
	s.notes = snap.notes
	s.guest = snap.guest
	s.autoDownload = snap.autoDownload
	s.downloading = make(map[string]bool)
	s.sessCtx, s.sessCancel = sessCtx, cancel
	s.mu.Unlock()

	sess := *snap.session
	log := s.logger.With("session_id", sess.ID)

	unsubs := s.subscribe(gen)
	if !s.update(gen, func() { s.chUnsubs = unsubs }) {
		for _, u := range unsubs {
			u()
		}
		return errSuperseded
	}
	if err := s.ch.Connect(ctx, sess.ID); err != nil {
		log.Warn(ctx, "real-time channel unavailable, will retry", "error", err)
	}
	if !s.isCurrent(gen) {
		// torn down while connecting; the teardown's Disconnect ran first
		if s.ch.SessionID() == sess.ID {
			s.ch.Disconnect()
		}
		return s.staleErr()
	}

	s.timer.OnExpiring(func(remaining int) { s.onExpiring(gen, remaining) })
	s.timer.OnExpired(func() { s.teardown(gen, ReasonExpired) })
	s.timer.StartUntil(sess.ExpiresAt, s.cfg.DefaultTTL)

	if !s.isCurrent(gen) {
		return s.staleErr()
	}

	if s.meta != nil {
		p := metadata.SessionPointer{SessionID: sess.ID, Code: sess.Code, ParticipantID: me.ID}
		if err := metadata.SavePointer(ctx, s.meta, p); err != nil {
			log.Warn(ctx, "remember session failed", "error", err)
		}
	}

	log.Info(ctx, "session active", "participant_id", me.ID, "role", me.Role, "guest", snap.guest)
	s.bus.Emit(eventbus.SessionStarted, sess)
	s.scheduleAutoDownload(gen)
	return nil
}

func (s *SessionService) staleErr() error {
	if s.LastEndReason() == ReasonExpired {
		return common.ErrSessionExpired
	}
	return errSuperseded
}

func (s *SessionService) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && s.phase == models.PhaseActive
}

func (s *SessionService) onExpiring(gen uint64, remaining int) {
	if !s.isCurrent(gen) {
		return
	}
	s.bus.Emit(eventbus.SessionExpiring, remaining)
	if remaining >= 60 {
		mins := remaining / 60
		unit := "minutes"
		if mins == 1 {
			unit = "minute"
		}
		s.info("Session expires in " + strconv.Itoa(mins) + " " + unit + ".")
		return
	}
	s.info("Session expires in " + strconv.Itoa(remaining) + " seconds.")
}

// teardown is the only way out of a session. It is idempotent per
// generation: the first caller wins, later callers are no-ops.
func (s *SessionService) teardown(gen uint64, reason EndReason) bool {
	s.mu.Lock()
	if gen != s.gen || s.phase == models.PhaseNone {
		s.mu.Unlock()
		return false
	}
	wasActive := s.phase == models.PhaseActive
	sess := s.session
	cancel := s.sessCancel
	unsubs := s.chUnsubs

	s.gen++
	s.phase = models.PhaseNone
	s.lastEnd = reason
	s.session = nil
	s.me = nil
	s.participants = nil
	s.files = nil
	s.notes = nil
	s.guest = false
	s.autoDownload = false
	s.downloading = make(map[string]bool)
	s.sessCtx, s.sessCancel = nil, nil
	s.chUnsubs = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.timer.Stop()
	for _, u := range unsubs {
		u()
	}
	s.ch.Disconnect()

	if !wasActive {
		return true
	}

	ctx := context.Background()
	s.logger.Info(ctx, "session ended", "session_id", sess.ID, "reason", reason)
	if reason != ReasonShutdown && reason != ReasonReplaced {
		s.forget(ctx, sess.ID)
	}

	s.bus.Emit(eventbus.SessionEnded, reason)

	switch reason {
	case ReasonExpired:
		s.toast(models.Toast{
			Message:  "The session has expired.",
			Severity: models.SeverityError,
			Action:   &models.ToastAction{Label: "Start a new session", Navigate: RouteLanding},
		})
	case ReasonClosed:
		s.info("The session was closed by its owner.")
	case ReasonLeft:
		s.info("You left the session.")
	}
	return true
}

func (s *SessionService) forget(ctx context.Context, sessionID string) {
	if s.forgetter != nil {
		if err := s.forgetter.Forget(ctx, sessionID); err != nil {
			s.logger.Warn(ctx, "forget session failed", "session_id", sessionID, "error", err)
		}
		return
	}
	if s.meta != nil {
		if err := metadata.ForgetPointer(ctx, s.meta); err != nil {
			s.logger.Warn(ctx, "forget session failed", "error", err)
		}
	}
	if s.downloads != nil {
		if err := s.downloads.DeleteBySession(ctx, sessionID); err != nil {
			s.logger.Warn(ctx, "forget downloads failed", "error", err)
		}
	}
}
