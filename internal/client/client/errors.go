package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
)

var (
	ErrUnavailable = errors.New("service unavailable")
	ErrNoSession   = errors.New("no active session")
)

// errorBody covers the error shapes GoTrue, PostgREST and the application
// backend send.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if s, ok := b.Code.(string); ok {
		return s
	}
	return ""
}

// mapError classifies a failed call into an *autherr.Error.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		var body errorBody
		msg := ""
		if json.Unmarshal(se.Body, &body) == nil {
			msg = body.text()
		} else {
			msg = string(se.Body)
		}
		return autherr.Classify(se.StatusCode, msg, body.code(), se.RetryAfter, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return autherr.New(autherr.KindNetworkOrProvider, "request cancelled", err)
	}

	return autherr.New(autherr.KindNetworkOrProvider, ErrUnavailable.Error(), errors.Join(ErrUnavailable, err))
}
