package httpreceiver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennalabs/slackcore/pkg/types"
)

type fakeRunner struct {
	gotMethod  string
	gotPath    string
	gotHeaders http.Header
	gotBody    []byte
	resp       *types.Response
	err        error
}

func (f *fakeRunner) Run(method, path string, headers http.Header, body []byte) (*types.Response, error) {
	f.gotMethod = method
	f.gotPath = path
	f.gotHeaders = headers
	f.gotBody = body
	return f.resp, f.err
}

func TestReceiver_WritesResponseVerbatim(t *testing.T) {
	runner := &fakeRunner{resp: types.JSON(200, map[string]string{"ok": "true"})}
	receiver := New(runner)

	req := httptest.NewRequest(http.MethodPost, "/slack/events?foo=bar", strings.NewReader(`{"type":"url_verification"}`))
	rec := httptest.NewRecorder()

	receiver.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":"true"}`, rec.Body.String())
	assert.Equal(t, "/slack/events?foo=bar", runner.gotPath)
	assert.Equal(t, http.MethodPost, runner.gotMethod)
}

func TestReceiver_RunErrorProduces500(t *testing.T) {
	runner := &fakeRunner{err: assertErr{}}
	receiver := New(runner)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	receiver.ServeHTTP(rec, req)

	assert.Equal(t, 500, rec.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestReceiver_PreservesExtraResponseHeaders(t *testing.T) {
	resp := types.Redirect("https://example.com/done")
	runner := &fakeRunner{resp: resp}
	receiver := New(runner)

	req := httptest.NewRequest(http.MethodGet, "/slack/oauth_redirect", nil)
	rec := httptest.NewRecorder()

	receiver.ServeHTTP(rec, req)

	require.Equal(t, 302, rec.Code)
	assert.Equal(t, "https://example.com/done", rec.Header().Get("Location"))
}
