package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
)

// PostgRESTProfiles is the ProfileStore over the PostgREST profiles table.
type PostgRESTProfiles struct {
	baseURL string
	anonKey string
	t       *transport
}

var _ ProfileStore = (*PostgRESTProfiles)(nil)

func NewPostgRESTProfiles(baseURL, anonKey string, hc *http.Client, clientID string) *PostgRESTProfiles {
	return &PostgRESTProfiles{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		t:       newTransport(hc, clientID),
	}
}

func (s *PostgRESTProfiles) rowURL(userID string) string {
	q := url.Values{"id": {"eq." + userID}, "select": {"*"}}
	return s.baseURL + "/rest/v1/profiles?" + q.Encode()
}

func (s *PostgRESTProfiles) headers(accessToken string) http.Header {
	h := http.Header{}
	h.Set("apikey", s.anonKey)
	h.Set("Authorization", "Bearer "+accessToken)
	return h
}

func (s *PostgRESTProfiles) GetProfile(ctx context.Context, accessToken, userID string) (*models.Profile, error) {
	var rows []models.Profile
	err := s.t.do(ctx, "postgrest.get_profile", netx.Request{
		Method: http.MethodGet,
		URL:    s.rowURL(userID),
		Header: s.headers(accessToken),
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *PostgRESTProfiles) UpdateProfile(ctx context.Context, accessToken, userID string, upd models.ProfileUpdate) (*models.Profile, error) {
	h := s.headers(accessToken)
	h.Set("Prefer", "return=representation")

	var rows []models.Profile
	err := s.t.do(ctx, "postgrest.update_profile", netx.Request{
		Method: http.MethodPatch,
		URL:    s.rowURL(userID),
		Header: h,
		Body:   upd,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, common.ErrorNotFound)
	}
	return &rows[0], nil
}
