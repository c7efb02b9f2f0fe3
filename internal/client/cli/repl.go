package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Create(ctx context.Context) error
	Join(ctx context.Context, args []string) error
	Rejoin(ctx context.Context) error
	Sessions(ctx context.Context) error
	Upload(ctx context.Context, args []string) error
	Files(ctx context.Context) error
	Download(ctx context.Context, args []string) error
	Note(ctx context.Context, args []string) error
	Notes(ctx context.Context) error
	Peers(ctx context.Context) error
	Auto(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Leave(ctx context.Context) error
	End(ctx context.Context) error
}

const (
	helpGuest = "Available commands: create, join <code>, rejoin, upload <path>..., files, download <n|id|all>, " +
		"note [text], notes, peers, auto on|off, status, leave, end, login, exit"
	helpUser = "Available commands: create, join <code>, rejoin, sessions, upload <path>..., files, " +
		"download <n|id|all>, note [text], notes, peers, auto on|off, status, leave, end, logout, exit"
)

// runREPL reads one command per line from reader and dispatches it to a.
// The first token is the command, the rest are its arguments. The loop ends
// on EOF, on ctx cancellation or when the user types "exit" or "quit".
//
// Command errors are not printed here: the session service reports them as
// toasts and the handlers print their own usage hints.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("ld> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help", "?":
			if a.isLoggedIn() {
				printlnFn(helpUser)
			} else {
				printlnFn(helpGuest)
			}

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "create", "new":
			_ = a.Create(ctx)

		case "join":
			_ = a.Join(ctx, args)

		case "rejoin":
			_ = a.Rejoin(ctx)

		case "sessions":
			_ = a.Sessions(ctx)

		case "upload", "send":
			_ = a.Upload(ctx, args)

		case "files", "ls":
			_ = a.Files(ctx)

		case "download", "get":
			_ = a.Download(ctx, args)

		case "note":
			_ = a.Note(ctx, args)

		case "notes":
			_ = a.Notes(ctx)

		case "peers":
			_ = a.Peers(ctx)

		case "auto":
			_ = a.Auto(ctx, args)

		case "status":
			_ = a.Status(ctx)

		case "leave":
			_ = a.Leave(ctx)

		case "end":
			_ = a.End(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
