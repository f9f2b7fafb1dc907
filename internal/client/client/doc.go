// Package client contains the HTTP collaborators of the session layer.
//
// # Overview
//
// The package provides:
//  1. Transport-agnostic contracts: IdentityProvider (sign-in, refresh,
//     sign-out and the auth event stream), SessionEndpoint (the application
//     backend's session-cookie API) and ProfileStore (profile rows).
//  2. HTTP implementations: GoTrueProvider talks the Supabase/GoTrue REST API,
//     AppClient talks /api/auth/*, PostgRESTProfiles talks /rest/v1/profiles.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) opening the
//     SQLite database and applying the embedded goose migrations.
//
// # Error Handling
//
// Every non-2xx response and transport failure is classified here, once, by
// mapError into an *autherr.Error. Local conditions use the sentinels
// ErrUnavailable and ErrNoSession.
//
// # Concurrency & Contexts
//
// All implementations are safe for concurrent use. Every network operation
// accepts a context.Context and honours cancellation and deadlines.
package client
