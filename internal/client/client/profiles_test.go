package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgRESTProfiles_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id") == "eq.u1" {
			_, _ = w.Write([]byte(`[{"id":"u1","full_name":"Ada","username":"ada","updated_at":"2025-01-02T03:04:05.123456+00:00"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := NewPostgRESTProfiles(srv.URL, "anon", srv.Client(), "")
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "tok", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FullName)
	assert.Equal(t, 2025, p.UpdatedAt.Year())

	p, err = s.GetProfile(ctx, "tok", "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostgRESTProfiles_Update(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"username": "lovelace"}, body)

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id") == "eq.u1" {
			_, _ = w.Write([]byte(`[{"id":"u1","username":"lovelace"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := NewPostgRESTProfiles(srv.URL, "anon", srv.Client(), "")
	name := "lovelace"

	p, err := s.UpdateProfile(context.Background(), "tok", "u1", models.ProfileUpdate{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "lovelace", p.Username)

	_, err = s.UpdateProfile(context.Background(), "tok", "u2", models.ProfileUpdate{Username: &name})
	require.ErrorIs(t, err, common.ErrorNotFound)
}
