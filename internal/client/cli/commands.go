package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

var errUsage = errors.New("usage")

// Register prompts for the account fields and creates the account. The
// user then has to confirm the email address.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	fullName, err := getSimpleText(a.reader, "Enter full name", a.out)
	if err != nil {
		return err
	}
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	res, err := a.auth.SignUp(ctx, models.SignUpFields{
		Email:    email,
		Password: string(password),
		FullName: fullName,
		Username: username,
	})
	if err != nil {
		return err
	}

	if res.VerificationPending {
		printlnFn(fmt.Sprintf("Account created. Check %s for the verification link, then log in.", res.Email))
	} else {
		printlnFn("Account created.")
	}
	return nil
}

// Login prompts for credentials and signs in. The password is wiped by the
// auth service.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	if err := a.auth.SignIn(ctx, models.Credentials{Email: email, Password: password}); err != nil {
		return err
	}
	printlnFn("Login successful")
	return nil
}

// OAuth starts sign-in with an external provider such as github or google.
func (a *App) OAuth(ctx context.Context, provider string) error {
	if provider == "" {
		printlnFn("Usage: oauth <provider>")
		return errUsage
	}
	_, err := a.auth.SignInWithOAuth(ctx, provider, a.redirectURL)
	return err
}

// MagicLink emails a one-time sign-in link.
func (a *App) MagicLink(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.SignInWithMagicLink(ctx, email, a.redirectURL); err != nil {
		return err
	}
	printlnFn("Check your inbox for the sign-in link, then paste the address it opens with: callback <url>")
	return nil
}

// Callback completes an OAuth or magic-link sign-in from the redirect URL.
func (a *App) Callback(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		printlnFn("Usage: callback <url>")
		return errUsage
	}
	if err := a.auth.CompleteSignIn(ctx, rawURL); err != nil {
		return err
	}
	printlnFn("Login successful")
	return nil
}

// Reset requests a password-reset email.
func (a *App) Reset(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.ResetPassword(ctx, email, a.redirectURL); err != nil {
		return err
	}
	printlnFn("If the address is registered, a reset link is on its way.")
	return nil
}

// Profile prints the signed-in user and profile.
func (a *App) Profile(_ context.Context) error {
	u := a.auth.User()
	if u == nil {
		printlnFn("Not logged in")
		return nil
	}

	lines := []string{"Email:     " + u.Email}
	if p := a.auth.Profile(); p != nil {
		lines = append(lines,
			"Full name: "+p.FullName,
			"Username:  "+p.Username,
			"Avatar:    "+p.AvatarURL,
		)
	} else {
		lines = append(lines, "No profile yet. Use 'setprofile' to create one.")
	}
	printlnFn(strings.Join(lines, "\n"))
	return nil
}

// SetProfile prompts for profile fields; empty answers keep the old value.
func (a *App) SetProfile(ctx context.Context) error {
	var upd models.ProfileUpdate
	var err error

	if upd.FullName, err = getOptionalText(a.reader, "Full name", a.out); err != nil {
		return err
	}
	if upd.Username, err = getOptionalText(a.reader, "Username", a.out); err != nil {
		return err
	}
	if upd.AvatarURL, err = getOptionalText(a.reader, "Avatar URL", a.out); err != nil {
		return err
	}
	if upd.Empty() {
		printlnFn("Nothing to change")
		return nil
	}

	if _, err := a.auth.UpdateProfile(ctx, upd); err != nil {
		return err
	}
	printlnFn("Profile updated")
	return nil
}

// Status prints the session health state.
func (a *App) Status(_ context.Context) error {
	who := "not logged in"
	if u := a.auth.User(); u != nil {
		who = u.Email
	}
	mode := ""
	if a.mode != nil {
		mode = string(a.mode())
	}
	printlnFn(fmt.Sprintf("User: %s, session: %s, connectivity: %s", who, a.health.State(), orUnknown(mode)))
	return nil
}

// Refresh tries to recover the session.
func (a *App) Refresh(ctx context.Context) error {
	if err := a.health.Refresh(ctx); err != nil {
		return err
	}
	printlnFn("Session refreshed")
	return nil
}

// Reload re-validates the session from scratch.
func (a *App) Reload(_ context.Context) error {
	if a.health.CheckNow() == services.HealthValid {
		printlnFn("Session is valid")
	}
	return nil
}

// Logout signs out. Local state is gone even when the server could not be
// reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.SignOut(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
