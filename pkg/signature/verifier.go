// Package signature implements the SignatureVerifier: HMAC-SHA256
// verification over Slack's canonical "v0:ts:body" string with replay-window
// enforcement.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	slackerrors "github.com/brennalabs/slackcore/pkg/errors"
)

// ReplayWindow is the maximum allowed clock skew between the request
// timestamp and now.
const ReplayWindow = 5 * time.Minute

// HeaderTimestamp and HeaderSignature name the two headers Slack sends.
const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
)

// Verifier validates that a request originated from Slack.
type Verifier struct {
	SigningSecret string
}

// New constructs a Verifier bound to a signing secret.
func New(signingSecret string) *Verifier {
	return &Verifier{SigningSecret: signingSecret}
}

// Verify checks headers against rawBody at time now, returning a CodedError
// on any failure: MissingSignatureHeaders, RequestExpired, or
// InvalidSignature.
func (v *Verifier) Verify(headers http.Header, rawBody []byte, now time.Time) error {
	ts := headers.Get(HeaderTimestamp)
	sig := headers.Get(HeaderSignature)
	if ts == "" || sig == "" {
		return slackerrors.NewMissingSignatureHeadersError("missing X-Slack-Request-Timestamp or X-Slack-Signature header")
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return slackerrors.NewMissingSignatureHeadersError("X-Slack-Request-Timestamp is not a valid integer")
	}

	requestTime := time.Unix(tsUnix, 0)
	skew := now.Sub(requestTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > ReplayWindow {
		return slackerrors.NewRequestExpiredError("request timestamp is outside the allowed replay window")
	}

	expected := Sign(v.SigningSecret, ts, rawBody)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return slackerrors.NewInvalidSignatureError("computed signature does not match X-Slack-Signature")
	}

	return nil
}

// Sign computes the "v0=<hex>" signature for a given timestamp and body,
// used both by Verify and by tests constructing valid requests.
func Sign(signingSecret, timestamp string, body []byte) string {
	base := "v0:" + timestamp + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
