package authz

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (uid string, err error)
}

// StaticVerifier recognizes a fixed token→uid table. Used for development and tests.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticVerifier{tokens: cp}
}

// ParseStaticTokens parses "token:uid,token2:uid2".
func ParseStaticTokens(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, uid, ok := strings.Cut(pair, ":")
		if !ok || token == "" || uid == "" {
			return nil, errors.Errorf("invalid static token entry %q, expected token:uid", pair)
		}
		out[token] = uid
	}
	return out, nil
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	uid, ok := v.tokens[token]
	if !ok {
		return "", model.Errorf(model.ErrUnauthorized, "invalid credential")
	}
	return uid, nil
}

// RemoteVerifier asks an external identity endpoint to verify the token.
// The endpoint receives {"token": "..."} and answers 200 {"uid": "..."}.
type RemoteVerifier struct {
	client *resty.Client
	path   string
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UID string `json:"uid"`
}

// NewRemoteVerifier posts to verifyURL.
func NewRemoteVerifier(verifyURL string, timeout time.Duration) *RemoteVerifier {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &RemoteVerifier{client: client, path: verifyURL}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	var out verifyResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(&verifyRequest{Token: token}).
		SetResult(&out).
		Post(v.path)
	if err != nil {
		return "", errors.Wrap(err, "verify credential")
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", model.Errorf(model.ErrUnauthorized, "invalid credential")
	default:
		return "", errors.Errorf("verify credential: unexpected status %d", resp.StatusCode())
	}
	if out.UID == "" {
		return "", model.Errorf(model.ErrUnauthorized, "credential has no subject")
	}
	return out.UID, nil
}
