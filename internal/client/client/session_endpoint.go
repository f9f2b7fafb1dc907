package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
)

// AppClient is the SessionEndpoint of the application backend. The backend
// answers with session cookies, so hc should carry a persistent jar.
type AppClient struct {
	baseURL string
	t       *transport
}

var _ SessionEndpoint = (*AppClient)(nil)

func NewAppClient(baseURL string, hc *http.Client, clientID string) *AppClient {
	return &AppClient{baseURL: strings.TrimRight(baseURL, "/"), t: newTransport(hc, clientID)}
}

type pushSessionRequest struct {
	Event   models.EventKind `json:"event"`
	Session *models.Session  `json:"session"`
}

// PushSession mirrors a provider session into the server-side cookie store.
func (c *AppClient) PushSession(ctx context.Context, event models.EventKind, session *models.Session) error {
	return c.t.do(ctx, "app.push_session", netx.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/api/auth/session",
		Body:   pushSessionRequest{Event: event, Session: session},
	}, nil)
}

// DeleteSession clears the server-side session cookie.
func (c *AppClient) DeleteSession(ctx context.Context) error {
	return c.t.do(ctx, "app.delete_session", netx.Request{
		Method: http.MethodDelete,
		URL:    c.baseURL + "/api/auth/session",
	}, nil)
}

type signUpReply struct {
	UserID              string `json:"user_id"`
	Email               string `json:"email"`
	VerificationPending *bool  `json:"verification_pending"`
}

// SignUp registers through the backend, which validates the form and
// creates the profile row. Verification is pending unless the backend says
// otherwise.
func (c *AppClient) SignUp(ctx context.Context, fields models.SignUpFields) (*models.SignUpResult, error) {
	var reply signUpReply
	err := c.t.do(ctx, "app.sign_up", netx.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/api/auth/signup",
		Body:   fields,
	}, &reply)
	if err != nil {
		return nil, err
	}

	res := &models.SignUpResult{UserID: reply.UserID, Email: reply.Email, VerificationPending: true}
	if res.Email == "" {
		res.Email = fields.Email
	}
	if reply.VerificationPending != nil {
		res.VerificationPending = *reply.VerificationPending
	}
	return res, nil
}
