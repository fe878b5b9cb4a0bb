package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
)

// DefaultFailureDelay is slept after a failed attempt against a short secret.
const DefaultFailureDelay = 250 * time.Millisecond

const basicScheme = "Basic "

// Authenticator checks HTTP Basic credentials against the shared credential.
type Authenticator struct {
	cred         *Credential
	failureDelay time.Duration
}

// NewAuthenticator binds an Authenticator to cred. A zero failureDelay
// means DefaultFailureDelay; a negative one disables the delay.
func NewAuthenticator(cred *Credential, failureDelay time.Duration) *Authenticator {
	if failureDelay == 0 {
		failureDelay = DefaultFailureDelay
	}
	if failureDelay < 0 {
		failureDelay = 0
	}
	return &Authenticator{cred: cred, failureDelay: failureDelay}
}

// Check validates an Authorization header value. The scheme must be exactly
// "Basic "; the payload is base64 "user:pass".
func (a *Authenticator) Check(header string) bool {
	if !strings.HasPrefix(header, basicScheme) {
		return false
	}

	payload := strings.TrimSpace(header[len(basicScheme):])
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded = nil
	}
	return TimingResistantEqual(decoded, a.cred.bytes())
}

// FailureDelay is how long Penalize sleeps for this credential.
func (a *Authenticator) FailureDelay() time.Duration {
	if !a.cred.ShortSecret() {
		return 0
	}
	return a.failureDelay
}

// Penalize slows a failed caller down when the secret is short enough to be
// brute forced. It returns early if ctx is done.
func (a *Authenticator) Penalize(ctx context.Context) {
	d := a.FailureDelay()
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
