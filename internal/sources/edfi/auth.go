// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package edfi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/lmsync/internal/fetch"
	"github.com/tomtom215/lmsync/internal/logging"
)

const (
	tokenPath = "oauth/token"

	// tokenSkew is subtracted from expires_in so a token is renewed
	// before the ODS rejects it.
	tokenSkew = 30 * time.Second
)

var errEmptyToken = errors.New("token response has no access_token")

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenSource obtains and caches a client credentials bearer token.
//
// Thread Safety: Safe for concurrent use. Concurrent callers that find the
// cache empty wait on the mutex and share the single token request.
type tokenSource struct {
	client *fetch.Client
	key    string
	secret string
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(client *fetch.Client, key, secret string) *tokenSource {
	return &tokenSource{client: client, key: key, secret: secret, now: time.Now}
}

// Token returns a cached token or requests a new one.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expires) {
		return ts.token, nil
	}

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(ts.key+":"+ts.secret)))

	resp, err := ts.client.Do(ctx, http.MethodPost, tokenPath, nil, []byte("grant_type=client_credentials"), header)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	var tok tokenResponse
	if err := resp.Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errEmptyToken
	}

	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime > 2*tokenSkew {
		lifetime -= tokenSkew
	} else {
		lifetime /= 2
	}
	ts.token = tok.AccessToken
	ts.expires = ts.now().Add(lifetime)

	logging.Debug().
		Str("source", "EdFi").
		Dur("lifetime", lifetime).
		Msg("Obtained ODS access token")
	return ts.token, nil
}

// Invalidate drops the cached token.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expires = time.Time{}
	ts.mu.Unlock()
}

// Authorize implements fetch.Authorizer.
func (ts *tokenSource) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := ts.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
