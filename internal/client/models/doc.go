// Package models defines the client-side session data: the provider session
// and user, profile rows, auth events, and persisted cookies.
package models
