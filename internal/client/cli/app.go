package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/auth"
	"github.com/dmitrijs2005/lazydrop/internal/client/channel"
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/config"
	"github.com/dmitrijs2005/lazydrop/internal/client/countdown"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories"
	"github.com/dmitrijs2005/lazydrop/internal/client/services"
	"github.com/dmitrijs2005/lazydrop/internal/client/sink"
	"github.com/dmitrijs2005/lazydrop/internal/client/toast"
	"github.com/dmitrijs2005/lazydrop/internal/logging"
	"github.com/dmitrijs2005/lazydrop/internal/netx"
)

// sessionAPI is the part of services.SessionService the commands drive.
type sessionAPI interface {
	CreatePairing(ctx context.Context) (*models.Session, error)
	JoinSession(ctx context.Context, codeOrID string) error
	Rehydrate(ctx context.Context) error
	LeaveRoom(ctx context.Context) error
	EndSessionForEveryone(ctx context.Context) error
	SetAutoDownload(ctx context.Context, on bool) error
	ProcessFiles(ctx context.Context, srcs []services.Source) error
	DownloadFile(ctx context.Context, fileID string) error
	DownloadAllFiles(ctx context.Context) error
	SendNote(ctx context.Context, content string) error

	Phase() models.Phase
	Session() *models.Session
	Me() *models.Participant
	Participants() []models.Participant
	Files() []models.TransferredFile
	Notes() []models.Note
	IsGuest() bool
	AutoDownload() bool
	Remaining() int
	Bus() *eventbus.Bus
	Close()
}

type sessionLister interface {
	ActiveSessions(ctx context.Context) ([]client.SessionDTO, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	session  sessionAPI
	lister   sessionLister
	tokens   *auth.TokenSource
	identity auth.Identity
	reader   *bufio.Reader
	out      io.Writer
	now      func() time.Time
	closers  []func()
}

// NewApp builds every client component from c and connects them.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	repos, err := repositories.Open(ctx, c.StateDB)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	snk, err := newSink(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	tokens := auth.NewTokenSource(c.AuthToken)
	api := client.NewHTTPClient(c.APIBaseURL, c.RequestTimeout, tokens.Token)
	bus := eventbus.New(logger)
	toasts := toast.NewQueue(c.ToastDuration)

	ch := channel.New(channel.Options{
		URL:            c.WebSocketURL,
		Token:          tokens.Token,
		ReconnectDelay: c.ReconnectDelay,
		Bus:            bus,
		Logger:         logger.With("component", "channel"),
	})

	svc := services.NewSessionService(services.Deps{
		API:       api,
		Channel:   ch,
		Transfer:  netx.NewHTTPTransfer(http.DefaultClient),
		Sink:      snk,
		Toasts:    toasts,
		Bus:       bus,
		Timer:     countdown.New(),
		Metadata:  repos.Metadata,
		Downloads: repos.Downloads,
		Forgetter: repos,
		Logger:    logger.With("component", "session"),
	}, services.Config{
		MaxFileSize:       c.MaxFileSize,
		DownloadDelay:     c.DownloadDelay,
		DefaultTTL:        c.DefaultSessionTTL,
		JoinURLBase:       c.JoinURLBase,
		UploadConcurrency: c.UploadConcurrency,
	})

	a := &App{
		config:  c,
		logger:  logger,
		session: svc,
		lister:  api,
		tokens:  tokens,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		now:     time.Now,
	}
	a.adoptToken(c.AuthToken)

	toasts.OnShow(func(t models.Toast) { printlnFn(renderToast(t)) })
	a.closers = append(a.closers,
		a.watch(bus),
		svc.Close,
		toasts.Close,
		func() { _ = repos.Close() },
	)
	return a, nil
}

func newSink(ctx context.Context, c *config.Config) (sink.Sink, error) {
	if c.S3Bucket == "" {
		d, err := sink.NewDirSink(c.DownloadDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	s, err := sink.NewS3Sink(ctx, sink.S3Config{
		Bucket:       c.S3Bucket,
		Prefix:       c.S3Prefix,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// watch prints session lifecycle events that have no toast of their own.
func (a *App) watch(bus *eventbus.Bus) func() {
	offStart := bus.On(eventbus.SessionStarted, func(p any) {
		if s, ok := p.(models.Session); ok {
			printlnFn(fmt.Sprintf("Connected to session %s.", s.CodeDisplay))
		}
	})
	offEnd := bus.On(eventbus.SessionEnded, func(p any) {
		a.logger.Debug(context.Background(), "session ended event", "reason", p)
	})
	return func() {
		offStart()
		offEnd()
	}
}

// adoptToken sets the identity from a configured token. A token that does
// not parse or has expired is dropped so requests go out as a guest.
func (a *App) adoptToken(token string) {
	id, err := auth.ParseToken(token, a.now())
	if err != nil {
		a.logger.Warn(context.Background(), "ignoring access token", "error", err)
		a.tokens.Clear()
	}
	a.identity = id
}

// Run resumes a remembered session, then serves the REPL on stdin until the
// user exits. Everything is torn down on return.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	if err := a.session.Rehydrate(ctx); err != nil {
		a.logger.Debug(ctx, "nothing resumed", "error", err)
	}

	printlnFn("Type 'help' for the list of commands.")
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}

func (a *App) isLoggedIn() bool {
	return !a.identity.Guest
}

// status is shown in the prompt: who we are, then the session and its timer.
func (a *App) status() string {
	who := "guest"
	if a.isLoggedIn() {
		who = a.identity.Email
		if who == "" {
			who = a.identity.UserID
		}
	}
	s := a.session.Session()
	if s == nil || a.session.Phase() != models.PhaseActive {
		return who
	}
	return fmt.Sprintf("%s @ %s %s", who, s.CodeDisplay, formatRemaining(a.session.Remaining()))
}
