// Package services is the session layer of the client.
//
// AuthService is the façade the CLI talks to. It owns the current user and
// profile and runs sign-in through GuardedCaller (cooldown gate plus
// retrier). SessionSynchronizer mirrors provider auth events to the
// application backend and tears local auth state down on sign-out.
// SessionHealthMonitor re-validates the session on start and on user
// activity and drives refresh and reload prompts. ConnectivityWatcher
// tracks whether the provider is reachable.
package services
