package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	visible()
	notices() []string
	report(ctx context.Context, op string, err error)

	Register(ctx context.Context) error
	Login(ctx context.Context) error
	OAuth(ctx context.Context, provider string) error
	MagicLink(ctx context.Context) error
	Callback(ctx context.Context, rawURL string) error
	Reset(ctx context.Context) error
	Profile(ctx context.Context) error
	SetProfile(ctx context.Context) error
	Status(ctx context.Context) error
	Refresh(ctx context.Context) error
	Reload(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a read–eval–print loop over scanner.
//
// Each line's first token is the command, the rest its arguments. Every
// command is reported to the health monitor as user activity. Pending
// notices are printed before the prompt, which shows statusFn. The loop
// exits on EOF or on "exit"/"quit".
//
//	Not logged in:
//	  help, register, login, oauth <provider>, magiclink, callback <url>,
//	  reset, status, reload, exit
//
//	Logged in:
//	  help, profile, setprofile, status, refresh, reload, logout, exit
//
// Command errors are shown through the executor's report.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		for _, n := range a.notices() {
			printlnFn(n)
		}
		printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, arg := parts[0], ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		a.visible()

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: profile, setprofile, status, refresh, reload, logout, exit")
			} else {
				printlnFn("Available commands: register, login, oauth <provider>, magiclink, callback <url>, reset, status, reload, exit")
			}
		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "oauth":
			err = a.OAuth(ctx, arg)
		case "magiclink":
			err = a.MagicLink(ctx)
		case "callback":
			err = a.Callback(ctx, arg)
		case "reset":
			err = a.Reset(ctx)
		case "profile":
			err = a.Profile(ctx)
		case "setprofile":
			err = a.SetProfile(ctx)
		case "status":
			err = a.Status(ctx)
		case "refresh":
			err = a.Refresh(ctx)
		case "reload":
			err = a.Reload(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil && !errors.Is(err, errUsage) {
			a.report(ctx, cmd, err)
		}
	}
}
