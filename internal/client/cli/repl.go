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
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Dashboard(ctx context.Context) error
	Create(ctx context.Context) error
	Join(ctx context.Context, ref string) error
	Vote(ctx context.Context, choice string) error
	Results(ctx context.Context) error
	Refresh(ctx context.Context) error
	Share(ctx context.Context) error
	Leave(ctx context.Context) error
	Delete(ctx context.Context, pollID string) error
	Toggle(ctx context.Context, pollID string) error
	Schedule(ctx context.Context, pollID string) error
}

const (
	helpLoggedOut = "Available commands: register, login, join <id|link>, results, share, leave, exit"
	helpLoggedIn  = "Available commands: whoami, dashboard, create, join <id|link>, vote <n|optionId>, " +
		"results, refresh, share, leave, delete [id], toggle [id], schedule [id], logout, exit"
)

// runREPL starts a simple read–eval–print loop for the livepoll CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn). Errors returned by
// command handlers are printed with describe and never end the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("lp> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		arg := strings.Join(parts[1:], " ")

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "whoami":
			cmdErr = a.WhoAmI(ctx)

		case "dashboard", "d":
			cmdErr = a.Dashboard(ctx)

		case "create":
			cmdErr = a.Create(ctx)

		case "join", "j":
			cmdErr = a.Join(ctx, arg)

		case "vote", "v":
			cmdErr = a.Vote(ctx, arg)

		case "results", "r":
			cmdErr = a.Results(ctx)

		case "refresh":
			cmdErr = a.Refresh(ctx)

		case "share":
			cmdErr = a.Share(ctx)

		case "leave":
			cmdErr = a.Leave(ctx)

		case "delete":
			cmdErr = a.Delete(ctx, arg)

		case "toggle":
			cmdErr = a.Toggle(ctx, arg)

		case "schedule":
			cmdErr = a.Schedule(ctx, arg)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", describe(cmdErr))
		}
		if err != nil {
			return
		}
	}
}
