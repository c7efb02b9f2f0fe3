package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/lazydrop/internal/client/auth"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/client/services"
	"github.com/dmitrijs2005/lazydrop/internal/common"
)

var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

var errUsage = errors.New("usage")

// report prints the errors the session service does not turn into toasts.
func (a *App) report(err error) error {
	if errors.Is(err, common.ErrNoActiveSession) {
		printlnFn("You are not in a session. Use 'create' or 'join <code>'.")
	}
	return err
}

func usage(text string) error {
	printlnFn("Usage:", text)
	return errUsage
}

func (a *App) Login(ctx context.Context) error {
	raw, err := getPassword(a.out, "Paste access token: ")
	if err != nil {
		printlnFn("Could not read the token:", err)
		return err
	}
	token := strings.TrimSpace(string(raw))

	id, err := auth.ParseToken(token, a.now())
	if err != nil {
		printlnFn("This token cannot be used:", err)
		return err
	}
	if id.Guest {
		printlnFn("No token given, you are still a guest.")
		return nil
	}

	a.tokens.Set(token)
	a.identity = id
	a.logger.Info(ctx, "logged in", "user_id", id.UserID)
	printlnFn("Logged in as", a.status())
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.tokens.Clear()
	a.identity = auth.GuestIdentity()
	a.logger.Info(ctx, "logged out")
	printlnFn("Logged out. You can still join sessions as a guest.")
	return nil
}

func (a *App) Create(ctx context.Context) error {
	s, err := a.session.CreatePairing(ctx)
	if err != nil {
		return err
	}
	printlnFn("Session code:", s.CodeDisplay)
	if s.QRPayload != "" {
		printlnFn("Join link:", s.QRPayload)
	}
	printlnFn("Expires in", formatRemaining(a.session.Remaining()))
	return nil
}

// Join accepts the code split over several arguments ("ABC 123").
func (a *App) Join(ctx context.Context, args []string) error {
	code := strings.Join(args, "")
	if code == "" {
		var err error
		if code, err = getSimpleText(a.reader, "Session code:", a.out); err != nil {
			return err
		}
	}
	return a.session.JoinSession(ctx, code)
}

func (a *App) Rejoin(ctx context.Context) error {
	if err := a.session.Rehydrate(ctx); err != nil {
		return err
	}
	if a.session.Phase() != models.PhaseActive {
		printlnFn("There is no session to return to.")
	}
	return nil
}

func (a *App) Sessions(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Log in to see your sessions.")
		return nil
	}
	list, err := a.lister.ActiveSessions(ctx)
	if err != nil {
		printlnFn("Could not load your sessions:", err)
		return err
	}
	if len(list) == 0 {
		printlnFn("You have no active sessions.")
		return nil
	}
	for _, s := range list {
		left := int(s.ExpiresAt.Sub(a.now()).Seconds())
		printlnFn(fmt.Sprintf("  %s  expires in %s", models.FormatCode(s.Code), formatRemaining(left)))
	}
	return nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("upload <path> [path...]")
	}
	srcs := make([]services.Source, 0, len(args))
	for _, p := range args {
		src, err := services.FileSource(p)
		if err != nil {
			printlnFn("Skipping", p+":", err)
			continue
		}
		srcs = append(srcs, src)
	}
	if len(srcs) == 0 {
		return nil
	}
	return a.report(a.session.ProcessFiles(ctx, srcs))
}

func (a *App) Files(ctx context.Context) error {
	files := a.session.Files()
	if len(files) == 0 {
		printlnFn("No files yet.")
		return nil
	}
	me := a.session.Me()
	for i, f := range files {
		printlnFn(formatFile(i+1, f, me))
	}
	return nil
}

// Download takes "all", a row number from 'files' or a file id.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("download <n|id|all>")
	}
	if strings.EqualFold(args[0], "all") {
		return a.report(a.session.DownloadAllFiles(ctx))
	}
	return a.report(a.session.DownloadFile(ctx, a.resolveFile(args[0])))
}

func (a *App) resolveFile(ref string) string {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref
	}
	files := a.session.Files()
	if n < 1 || n > len(files) {
		return ref
	}
	return files[n-1].Key.ID()
}

func (a *App) Note(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		if text, err = getMultiline(a.reader, "Note:", a.out); err != nil {
			return err
		}
	}
	return a.report(a.session.SendNote(ctx, text))
}

func (a *App) Notes(ctx context.Context) error {
	notes := a.session.Notes()
	if len(notes) == 0 {
		printlnFn("No notes yet.")
		return nil
	}
	names := a.names()
	for _, n := range notes {
		printlnFn(formatNote(n, names))
	}
	return nil
}

func (a *App) Peers(ctx context.Context) error {
	peers := a.session.Participants()
	if len(peers) == 0 {
		printlnFn("Nobody is here.")
		return nil
	}
	me := a.session.Me()
	for _, p := range peers {
		printlnFn(formatParticipant(p, me))
	}
	return nil
}

func (a *App) Auto(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("auto on|off")
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return usage("auto on|off")
	}
	if err := a.session.SetAutoDownload(ctx, on); err != nil {
		return a.report(err)
	}
	printlnFn("Auto-download is", onOff(a.session.AutoDownload())+".")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	s := a.session.Session()
	if s == nil || a.session.Phase() != models.PhaseActive {
		printlnFn("Not in a session.")
		return nil
	}
	role := "peer"
	if me := a.session.Me(); me != nil && me.IsOwner() {
		role = "owner"
	}
	printlnFn("Session:", s.CodeDisplay)
	printlnFn("Role:", role)
	printlnFn("Expires in", formatRemaining(a.session.Remaining()))
	printlnFn("Participants:", len(a.session.Participants()))
	printlnFn("Auto-download:", onOff(a.session.AutoDownload()))
	if a.session.IsGuest() {
		printlnFn("Notes are read-only for guests.")
	}
	return nil
}

func (a *App) Leave(ctx context.Context) error {
	return a.report(a.session.LeaveRoom(ctx))
}

func (a *App) End(ctx context.Context) error {
	return a.report(a.session.EndSessionForEveryone(ctx))
}

func (a *App) names() map[string]string {
	out := make(map[string]string)
	for _, p := range a.session.Participants() {
		out[p.ID] = p.Name()
	}
	if me := a.session.Me(); me != nil {
		out[me.ID] = "you"
	}
	return out
}
