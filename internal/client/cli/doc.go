// Package cli provides the interactive SessionKeeper command-line client.
//
// The REPL drives the auth services: email/password, OAuth and magic-link
// sign-in, registration, password reset, profile edits and sign-out. Every
// command counts as user activity for the session health monitor, whose
// findings are shown as notices above the next prompt together with the
// recovery commands (refresh, reload). The prompt shows the signed-in user
// and whether the identity provider is reachable.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
