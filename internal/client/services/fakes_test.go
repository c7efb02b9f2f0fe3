package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/channel"
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories"
	"github.com/dmitrijs2005/lazydrop/internal/client/toast"
	"github.com/dmitrijs2005/lazydrop/internal/netx"
	"github.com/stretchr/testify/require"
)

const (
	testSessionID = "7c1e2a5b-7d7a-4c35-9a51-3b2f0f6d1e11"
	otherSession  = "0b9f5c4e-1111-4b7e-8f3a-2c9d8e7f6a55"
	meID          = "p-me"
	peerID        = "p-peer"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory backend. Errors are injected per method name.
type fakeAPI struct {
	mu sync.Mutex

	session  client.SessionDTO
	me       client.ParticipantDTO
	roster   []client.ParticipantDTO
	files    []client.FileDTO
	notes    []client.NoteDTO
	settings client.SettingsDTO

	errs   map[string]error
	calls  map[string]int
	marked []string

	echoClientID bool
	nextID       int

	// onJoin runs inside JoinSession, before it returns.
	onJoin func()
	// onCreateNote runs inside CreateNote, before the server records the note.
	onCreateNote func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		session: client.SessionDTO{
			ID:        testSessionID,
			Code:      "abcd1234",
			CreatedAt: baseTime,
			ExpiresAt: baseTime.Add(10 * time.Minute),
		},
		me:           client.ParticipantDTO{ParticipantID: meID, Role: "OWNER", DisplayName: "Me"},
		errs:         map[string]error{},
		calls:        map[string]int{},
		echoClientID: true,
	}
}

func (f *fakeAPI) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.errs[name]
}

func (f *fakeAPI) setErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) CreateSession(ctx context.Context) (*client.SessionDTO, error) {
	if err := f.call("CreateSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.session
	return &d, nil
}

func (f *fakeAPI) GetSessionByCode(ctx context.Context, code string) (*client.SessionDTO, error) {
	if err := f.call("GetSessionByCode"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if models.NormalizeCode(f.session.Code) != code {
		return nil, &client.APIError{Status: 404, Message: "no such session"}
	}
	d := f.session
	return &d, nil
}

func (f *fakeAPI) EndSession(ctx context.Context, sessionID string) error {
	return f.call("EndSession")
}

func (f *fakeAPI) ActiveSessions(ctx context.Context) ([]client.SessionDTO, error) {
	if err := f.call("ActiveSessions"); err != nil {
		return nil, err
	}
	return []client.SessionDTO{f.session}, nil
}

func (f *fakeAPI) JoinSession(ctx context.Context, sessionID string) (*client.ParticipantDTO, error) {
	err := f.call("JoinSession")
	f.mu.Lock()
	hook := f.onJoin
	me := f.me
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &me, nil
}

func (f *fakeAPI) LeaveSession(ctx context.Context, sessionID string) error {
	return f.call("LeaveSession")
}

func (f *fakeAPI) Participants(ctx context.Context, sessionID string) (*client.RosterDTO, error) {
	if err := f.call("Participants"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &client.RosterDTO{
		Participants: append([]client.ParticipantDTO{f.me}, f.roster...),
		ExpiresAt:    f.session.ExpiresAt,
	}, nil
}

func (f *fakeAPI) Settings(ctx context.Context, sessionID string) (*client.SettingsDTO, error) {
	if err := f.call("Settings"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.settings
	return &st, nil
}

func (f *fakeAPI) UpdateSettings(ctx context.Context, sessionID string, in client.SettingsDTO) (*client.SettingsDTO, error) {
	if err := f.call("UpdateSettings"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = in
	return &in, nil
}

func (f *fakeAPI) RequestUploadURL(ctx context.Context, sessionID string, in client.UploadURLRequest) (*client.UploadURLResponse, error) {
	if err := f.call("RequestUploadURL"); err != nil {
		return nil, err
	}
	if err := f.call("RequestUploadURL:" + in.FileName); err != nil {
		return nil, err
	}
	return &client.UploadURLResponse{
		UploadURL:  "https://storage.test/put/" + in.FileName,
		StorageKey: "objects/" + in.FileName,
	}, nil
}

func (f *fakeAPI) ConfirmUpload(ctx context.Context, sessionID string, in client.ConfirmUploadRequest) (*client.FileDTO, error) {
	if err := f.call("ConfirmUpload"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d := client.FileDTO{
		ID:                    fmt.Sprintf("f-%d", f.nextID),
		FileName:              in.FileName,
		FileSize:              in.FileSize,
		ContentType:           in.ContentType,
		UploaderParticipantID: f.me.ParticipantID,
		CreatedAt:             baseTime,
	}
	f.files = append(f.files, d)
	return &d, nil
}

func (f *fakeAPI) Files(ctx context.Context, sessionID string) ([]client.FileDTO, error) {
	if err := f.call("Files"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.FileDTO(nil), f.files...), nil
}

func (f *fakeAPI) DownloadURL(ctx context.Context, sessionID, fileID string) (string, error) {
	if err := f.call("DownloadURL"); err != nil {
		return "", err
	}
	return "https://storage.test/get/" + fileID, nil
}

func (f *fakeAPI) MarkDownloaded(ctx context.Context, sessionID, fileID string) error {
	if err := f.call("MarkDownloaded"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, fileID)
	return nil
}

func (f *fakeAPI) Notes(ctx context.Context, sessionID string) ([]client.NoteDTO, error) {
	if err := f.call("Notes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.NoteDTO(nil), f.notes...), nil
}

func (f *fakeAPI) CreateNote(ctx context.Context, sessionID string, in client.CreateNoteRequest) (*client.NoteDTO, error) {
	err := f.call("CreateNote")
	f.mu.Lock()
	hook := f.onCreateNote
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d := client.NoteDTO{
		ID:            fmt.Sprintf("n-%d", f.nextID),
		ParticipantID: f.me.ParticipantID,
		Content:       in.Content,
		CreatedAt:     baseTime,
	}
	if f.echoClientID {
		d.ClientNoteID = in.ClientNoteID
	}
	f.notes = append(f.notes, d)
	return &d, nil
}

// fakeChannel keeps handlers like the real channel: Disconnect drops them all.
// A failed Connect publishes a TransportError on bus, as the real one does.
type fakeChannel struct {
	mu          sync.Mutex
	bus         *eventbus.Bus
	sessionID   string
	handlers    map[string]map[int]channel.Handler
	next        int
	connects    []string
	disconnects int
	sent        []string
	connectErr  error
	onConnect   func()
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string]map[int]channel.Handler{}}
}

func (c *fakeChannel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.connects = append(c.connects, sessionID)
	c.sessionID = sessionID
	hook := c.onConnect
	err := c.connectErr
	bus := c.bus
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil && bus != nil {
		bus.Emit(eventbus.TransportError, channel.TransportError{
			SessionID: sessionID,
			Message:   "Real-time connection failed. Check your network.",
		})
	}
	return err
}

func (c *fakeChannel) Subscribe(eventType string, h channel.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = map[int]channel.Handler{}
	}
	c.handlers[eventType][id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[eventType], id)
	}
}

func (c *fakeChannel) Send(destination string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		c.sent = append(c.sent, destination)
	}
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.sessionID = ""
	c.handlers = map[string]map[int]channel.Handler{}
}

func (c *fakeChannel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *fakeChannel) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.handlers {
		n += len(m)
	}
	return n
}

// emit delivers an envelope the way the reader goroutine would.
func (c *fakeChannel) emit(t *testing.T, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	c.mu.Lock()
	var hs []channel.Handler
	for _, h := range c.handlers[eventType] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(raw)
	}
}

type fakeTransfer struct {
	mu        sync.Mutex
	uploadErr map[string]error
	uploads   []string
	downloads map[string]int
	dlErr     error
	progress  map[string][]int64
	// gate, when set, blocks every download until closed.
	gate chan struct{}
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{
		uploadErr: map[string]error{},
		downloads: map[string]int{},
		progress:  map[string][]int64{},
	}
}

func (f *fakeTransfer) Upload(ctx context.Context, url string, body io.Reader, size int64, contentType string, headers map[string]string, progress netx.ProgressFunc) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, url)
	err := f.uploadErr[url]
	f.mu.Unlock()

	if progress != nil {
		progress(size/2, size)
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	if progress != nil {
		progress(size, size)
	}
	f.mu.Lock()
	f.progress[url] = append(f.progress[url], size)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransfer) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.downloads[url]++
	err := f.dlErr
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if err != nil {
		return nil, 0, err
	}
	body := "content of " + url
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func (f *fakeTransfer) downloadCount(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads["https://storage.test/get/"+fileID]
}

type memSink struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newMemSink() *memSink { return &memSink{saved: map[string][]byte{}} }

func (s *memSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[name] = buf.Bytes()
	return "mem://" + name, nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// fakeTimer captures the countdown callbacks so tests can fire them.
type fakeTimer struct {
	mu        sync.Mutex
	starts    []time.Time
	stops     int
	expiring  func(int)
	expired   func()
	remaining int
}

func (f *fakeTimer) StartUntil(expiresAt time.Time, fallback time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, expiresAt)
	f.remaining = int(fallback / time.Second)
}

func (f *fakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.remaining = 0
}

func (f *fakeTimer) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

func (f *fakeTimer) OnExpiring(fn func(int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiring = fn
}

func (f *fakeTimer) OnExpired(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = fn
}

func (f *fakeTimer) fireExpiring(remaining int) {
	f.mu.Lock()
	fn := f.expiring
	f.mu.Unlock()
	fn(remaining)
}

func (f *fakeTimer) fireExpired() {
	f.mu.Lock()
	fn := f.expired
	f.mu.Unlock()
	fn()
}

type toastLog struct {
	mu   sync.Mutex
	list []models.Toast
}

func (l *toastLog) add(t models.Toast) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, t)
}

func (l *toastLog) all() []models.Toast {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Toast(nil), l.list...)
}

func (l *toastLog) of(sev models.Severity) []models.Toast {
	var out []models.Toast
	for _, t := range l.all() {
		if t.Severity == sev {
			out = append(out, t)
		}
	}
	return out
}

func (l *toastLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = nil
}

type harness struct {
	svc    *SessionService
	api    *fakeAPI
	ch     *fakeChannel
	tr     *fakeTransfer
	sink   *memSink
	timer  *fakeTimer
	toasts *toastLog
	repos  *repositories.Repositories
}

type harnessOption func(*testing.T, *harness, *Deps, *Config)

// withRepos backs the service with a real SQLite state database.
func withRepos() harnessOption {
	return func(t *testing.T, h *harness, d *Deps, _ *Config) {
		repos, err := repositories.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repos.Close() })
		h.repos = repos
		d.Metadata = repos.Metadata
		d.Downloads = repos.Downloads
		d.Forgetter = repos
	}
}

func withMaxFileSize(n int64) harnessOption {
	return func(_ *testing.T, _ *harness, _ *Deps, c *Config) { c.MaxFileSize = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	q := toast.NewQueue(time.Minute)
	t.Cleanup(q.Close)

	h := &harness{
		api:    newFakeAPI(),
		ch:     newFakeChannel(),
		tr:     newFakeTransfer(),
		sink:   newMemSink(),
		timer:  &fakeTimer{},
		toasts: &toastLog{},
	}
	q.OnShow(h.toasts.add)
	bus := eventbus.New(nil)
	h.ch.bus = bus

	d := Deps{
		API:      h.api,
		Channel:  h.ch,
		Transfer: h.tr,
		Sink:     h.sink,
		Toasts:   q,
		Bus:      bus,
		Timer:    h.timer,
	}
	cfg := Config{JoinURLBase: "https://lazydrop.test/join"}
	for _, o := range opts {
		o(t, h, &d, &cfg)
	}

	h.svc = NewSessionService(d, cfg)
	h.svc.now = func() time.Time { return baseTime }
	h.svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(h.svc.Close)
	return h
}

// join makes the harness participant a peer in the default session.
func (h *harness) join(t *testing.T) {
	t.Helper()
	h.api.me.Role = "PEER"
	require.NoError(t, h.svc.JoinSession(context.Background(), h.api.session.Code))
	h.toasts.reset()
}

func (h *harness) fileByName(name string) (models.TransferredFile, bool) {
	for _, f := range h.svc.Files() {
		if f.Name == name {
			return f, true
		}
	}
	return models.TransferredFile{}, false
}

func memSource(name string, size int64) Source {
	return Source{
		Name:        name,
		Size:        size,
		ContentType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(strings.Repeat("x", int(min(size, 64))))), nil
		},
	}
}

func peerFile(id, name string, size int64) client.FileDTO {
	return client.FileDTO{
		ID:                    id,
		FileName:              name,
		FileSize:              size,
		UploaderParticipantID: peerID,
		CreatedAt:             baseTime,
	}
}
