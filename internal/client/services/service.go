// Package services holds the session orchestrator: the single owner of "which
// drop session am I in and what does it contain". It coordinates REST calls,
// optimistic local rows and real-time reconciliation, and turns every failure
// into a toast.
//
// State is guarded by one mutex that is never held across network calls or
// callbacks. Each session gets a generation number; continuations that finish
// after the session was replaced or torn down see a different generation and
// drop their result.
package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/channel"
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories/downloads"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/lazydrop/internal/client/sink"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/dmitrijs2005/lazydrop/internal/logging"
	"github.com/dmitrijs2005/lazydrop/internal/netx"
)

// Channel is the real-time session channel.
type Channel interface {
	Connect(ctx context.Context, sessionID string) error
	Subscribe(eventType string, h channel.Handler) func()
	Send(destination string, payload any)
	Disconnect()
	SessionID() string
}

// Transfer moves file bodies to and from signed storage URLs.
type Transfer interface {
	Upload(ctx context.Context, url string, body io.Reader, size int64, contentType string, headers map[string]string, progress netx.ProgressFunc) error
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Notifier shows toasts.
type Notifier interface {
	Show(t models.Toast) string
}

// Timer is the session countdown.
type Timer interface {
	StartUntil(expiresAt time.Time, fallback time.Duration)
	Stop()
	Remaining() int
	OnExpiring(func(remaining int))
	OnExpired(func())
}

// Forgetter drops everything remembered locally about a session.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

type Config struct {
	MaxFileSize       int64
	DownloadDelay     time.Duration
	DefaultTTL        time.Duration
	JoinURLBase       string
	UploadConcurrency int
}

const (
	DefaultMaxFileSize       = 100 << 20
	DefaultDownloadDelay     = 500 * time.Millisecond
	DefaultUploadConcurrency = 3
)

type Deps struct {
	API      client.Client
	Channel  Channel
	Transfer Transfer
	Sink     sink.Sink
	Toasts   Notifier
	Bus      *eventbus.Bus
	Timer    Timer

	// Optional local state; nil disables rehydration and download memory.
	Metadata  metadata.Repository
	Downloads downloads.Repository
	// Forgetter, when set, clears both of the above for a session atomically.
	Forgetter Forgetter

	Logger logging.Logger
}

// EndReason tells why a session was torn down.
type EndReason string

const (
	ReasonExpired  EndReason = "expired"
	ReasonClosed   EndReason = "closed"
	ReasonLeft     EndReason = "left"
	ReasonReplaced EndReason = "replaced"
	ReasonShutdown EndReason = "shutdown"
)

var errSuperseded = errors.New("superseded by a newer session request")

type SessionService struct {
	api       client.Client
	ch        Channel
	transfer  Transfer
	sink      sink.Sink
	toasts    Notifier
	bus       *eventbus.Bus
	timer     Timer
	meta      metadata.Repository
	downloads downloads.Repository
	forgetter Forgetter
	logger    logging.Logger
	cfg       Config
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	busUnsub func()

	mu           sync.Mutex
	gen          uint64
	phase        models.Phase
	lastEnd      EndReason
	session      *models.Session
	me           *models.Participant
	participants []models.Participant
	files        []models.TransferredFile
	notes        []models.Note
	guest        bool
	autoDownload bool
	downloading  map[string]bool
	sessCtx      context.Context
	sessCancel   context.CancelFunc
	chUnsubs     []func()
}

func NewSessionService(d Deps, cfg Config) *SessionService {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.DownloadDelay < 0 {
		cfg.DownloadDelay = 0
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = common.DefaultSessionTTL
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = DefaultUploadConcurrency
	}
	if d.Logger == nil {
		d.Logger = logging.NopLogger{}
	}
	if d.Bus == nil {
		d.Bus = eventbus.New(d.Logger)
	}

	s := &SessionService{
		api:         d.API,
		ch:          d.Channel,
		transfer:    d.Transfer,
		sink:        d.Sink,
		toasts:      d.Toasts,
		bus:         d.Bus,
		timer:       d.Timer,
		meta:        d.Metadata,
		downloads:   d.Downloads,
		forgetter:   d.Forgetter,
		logger:      d.Logger,
		cfg:         cfg,
		now:         time.Now,
		sleep:       sleepCtx,
		phase:       models.PhaseNone,
		downloading: make(map[string]bool),
	}

	s.busUnsub = s.bus.On(eventbus.TransportError, func(p any) {
		if te, ok := p.(channel.TransportError); ok {
			s.toast(models.Toast{Message: te.Message, Severity: models.SeverityError})
		}
	})
	return s
}

// Bus exposes the event bus for UI listeners.
func (s *SessionService) Bus() *eventbus.Bus { return s.bus }

// Close tears down the current session locally and detaches from the bus.
func (s *SessionService) Close() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.teardown(gen, ReasonShutdown)
	s.busUnsub()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SessionService) toast(t models.Toast) {
	if s.toasts != nil {
		s.toasts.Show(t)
	}
}

func (s *SessionService) info(msg string) {
	s.toast(models.Toast{Message: msg, Severity: models.SeverityInfo})
}

func (s *SessionService) success(msg string) {
	s.toast(models.Toast{Message: msg, Severity: models.SeveritySuccess})
}

// current returns the active session id and generation.
func (s *SessionService) current() (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseActive || s.session == nil {
		return "", 0, false
	}
	return s.session.ID, s.gen, true
}

// update runs fn under the lock when gen is still current.
func (s *SessionService) update(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.phase != models.PhaseActive {
		return false
	}
	fn()
	return true
}

func (s *SessionService) requireSession() (string, uint64, error) {
	id, gen, ok := s.current()
	if !ok {
		s.toast(toastFor("continue", common.ErrNoActiveSession))
		return "", 0, common.ErrNoActiveSession
	}
	return id, gen, nil
}

// Snapshot accessors. Slices are copies.

func (s *SessionService) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastEndReason is the reason of the most recent teardown, or "".
func (s *SessionService) LastEndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEnd
}

func (s *SessionService) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

func (s *SessionService) Me() *models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.me == nil {
		return nil
	}
	cp := *s.me
	return &cp
}

func (s *SessionService) Participants() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Participant(nil), s.participants...)
}

func (s *SessionService) Files() []models.TransferredFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TransferredFile(nil), s.files...)
}

func (s *SessionService) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Note(nil), s.notes...)
}

func (s *SessionService) IsGuest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guest
}

func (s *SessionService) AutoDownload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoDownload
}

// Remaining is the countdown value in seconds, 0 without a session.
func (s *SessionService) Remaining() int {
	if s.Phase() != models.PhaseActive || s.timer == nil {
		return 0
	}
	return s.timer.Remaining()
}
