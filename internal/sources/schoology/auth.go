// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package schoology

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// oauthAuthorizer signs requests with two-legged OAuth1 PLAINTEXT. The
// signature is the percent-encoded consumer secret followed by an encoded
// "&" and the empty token secret.
type oauthAuthorizer struct {
	key    string
	secret string
	now    func() time.Time
	nonce  func() string
}

func newOAuthAuthorizer(key, secret string) *oauthAuthorizer {
	return &oauthAuthorizer{key: key, secret: secret, now: time.Now, nonce: randomNonce}
}

// Authorize sets the Authorization header.
func (a *oauthAuthorizer) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", a.header())
	return nil
}

func (a *oauthAuthorizer) header() string {
	params := []string{
		`OAuth realm="Schoology API"`,
		fmt.Sprintf(`oauth_consumer_key="%s"`, a.key),
		`oauth_token=""`,
		fmt.Sprintf(`oauth_nonce="%s"`, a.nonce()),
		fmt.Sprintf(`oauth_timestamp="%s"`, strconv.FormatInt(a.now().Unix(), 10)),
		`oauth_signature_method="PLAINTEXT"`,
		`oauth_version="1.0"`,
		fmt.Sprintf(`oauth_signature="%s%%26"`, url.QueryEscape(a.secret)),
	}
	return strings.Join(params, ",")
}

// randomNonce returns eight random decimal digits.
func randomNonce() string {
	u := uuid.New()
	return fmt.Sprintf("%08d", binary.BigEndian.Uint64(u[:8])%100_000_000)
}
