package oauth

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slackerrors "github.com/brennalabs/slackcore/pkg/errors"
	"github.com/brennalabs/slackcore/pkg/types"
)

func newTestFlow() *Flow {
	return NewFlow(Config{
		ClientID:             "client-id",
		ClientSecret:         "client-secret",
		Scopes:               []string{"chat:write"},
		OAuthCompletionURL:   "https://example.com/success",
		OAuthCancellationURL: "https://example.com/cancel",
	}, NewMemoryInstallationStore(), NewMemoryStateStore(0), nil)
}

func TestFlow_InstallStart_BuildsV2AuthorizeRedirect(t *testing.T) {
	f := newTestFlow()
	req := &types.Request{Kind: types.OAuthStart}

	resp, err := f.InstallStart(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)

	location := resp.Headers.Get("Location")
	assert.Contains(t, location, v2AuthorizeURL)
	assert.Contains(t, location, "client_id=client-id")
	assert.Contains(t, location, "scope=chat%3Awrite")
	assert.Contains(t, location, "state=")
}

func TestFlow_InstallStart_ClassicUsesV1URL(t *testing.T) {
	f := newTestFlow()
	f.Config.ClassicAppPermissionsEnabled = true

	resp, err := f.InstallStart(context.Background(), &types.Request{Kind: types.OAuthStart})
	require.NoError(t, err)
	assert.Contains(t, resp.Headers.Get("Location"), v1AuthorizeURL)
}

func TestFlow_InstallStart_MissingScopeCancels(t *testing.T) {
	f := newTestFlow()
	f.Config.Scopes = nil

	resp, err := f.InstallStart(context.Background(), &types.Request{Kind: types.OAuthStart})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cancel", resp.Headers.Get("Location"))
}

func TestFlow_Callback_ErrorParamRedirectsToCancellation(t *testing.T) {
	f := newTestFlow()
	query := url.Values{"error": {"access_denied"}}
	req := &types.Request{Kind: types.OAuthCallback, ParsedPayload: query}

	resp, err := f.Callback(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cancel", resp.Headers.Get("Location"))
}

func TestFlow_Callback_MissingStateRedirectsToCancellation(t *testing.T) {
	f := newTestFlow()
	query := url.Values{"code": {"abc"}}
	req := &types.Request{Kind: types.OAuthCallback, ParsedPayload: query}

	resp, err := f.Callback(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cancel", resp.Headers.Get("Location"))
}

func TestFlow_Callback_StateReuseOnlyOneSucceedsPastStateCheck(t *testing.T) {
	f := newTestFlow()
	f.exchange = func(ctx context.Context, code string) (*Installation, error) {
		return &Installation{Team: &Team{ID: "T1"}, BotToken: "xoxb-X"}, nil
	}

	state, err := f.StateStore.Issue(context.Background(), nil, nil)
	require.NoError(t, err)

	var stateErrorCount int
	f.StateErrorHandler = func(err error, req *types.Request) *types.Response {
		stateErrorCount++
		return types.Redirect(f.Config.OAuthCancellationURL)
	}

	query := url.Values{"code": {"abc"}, "state": {state}}
	req := &types.Request{Kind: types.OAuthCallback, ParsedPayload: query}

	resp, err := f.Callback(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/success", resp.Headers.Get("Location"))

	// Second callback with the same state must hit StateErrorHandler.
	_, err = f.Callback(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, stateErrorCount)
}

func TestFlow_Callback_SuccessSavesInstallationAndRedirects(t *testing.T) {
	f := newTestFlow()
	f.exchange = func(ctx context.Context, code string) (*Installation, error) {
		assert.Equal(t, "good-code", code)
		return &Installation{Team: &Team{ID: "T1"}, BotToken: "xoxb-X"}, nil
	}

	state, err := f.StateStore.Issue(context.Background(), nil, nil)
	require.NoError(t, err)

	query := url.Values{"code": {"good-code"}, "state": {state}}
	resp, err := f.Callback(context.Background(), &types.Request{Kind: types.OAuthCallback, ParsedPayload: query})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/success", resp.Headers.Get("Location"))

	saved, findErr := f.InstallationStore.FindBot(context.Background(), "", "T1")
	require.NoError(t, findErr)
	assert.Equal(t, "xoxb-X", saved.BotToken)
}

func TestFlow_Callback_ExchangeFailureRedirectsToCancellation(t *testing.T) {
	f := newTestFlow()
	f.exchange = func(ctx context.Context, code string) (*Installation, error) {
		return nil, assert.AnError
	}

	state, err := f.StateStore.Issue(context.Background(), nil, nil)
	require.NoError(t, err)

	query := url.Values{"code": {"bad-code"}, "state": {state}}
	resp, err := f.Callback(context.Background(), &types.Request{Kind: types.OAuthCallback, ParsedPayload: query})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cancel", resp.Headers.Get("Location"))
}

func TestFlow_Callback_TransportFailureUsesExceptionHandlerNotAccessErrorHandler(t *testing.T) {
	f := newTestFlow()
	f.exchange = func(ctx context.Context, code string) (*Installation, error) {
		return nil, assert.AnError
	}

	var exceptionCalls, accessErrorCalls int
	f.ExceptionHandler = func(err error, req *types.Request) *types.Response {
		exceptionCalls++
		return types.Redirect(f.Config.OAuthCancellationURL)
	}
	f.AccessErrorHandler = func(err error, req *types.Request) *types.Response {
		accessErrorCalls++
		return types.Redirect(f.Config.OAuthCancellationURL)
	}

	state, err := f.StateStore.Issue(context.Background(), nil, nil)
	require.NoError(t, err)

	query := url.Values{"code": {"bad-code"}, "state": {state}}
	_, err = f.Callback(context.Background(), &types.Request{Kind: types.OAuthCallback, ParsedPayload: query})
	require.NoError(t, err)

	assert.Equal(t, 1, exceptionCalls)
	assert.Equal(t, 0, accessErrorCalls)
}

func TestFlow_Callback_AccessDeniedUsesAccessErrorHandlerNotExceptionHandler(t *testing.T) {
	f := newTestFlow()
	f.exchange = func(ctx context.Context, code string) (*Installation, error) {
		return nil, slackerrors.NewOAuthAccessDeniedError("oauth.v2.access responded ok=false: invalid_code")
	}

	var exceptionCalls, accessErrorCalls int
	f.ExceptionHandler = func(err error, req *types.Request) *types.Response {
		exceptionCalls++
		return types.Redirect(f.Config.OAuthCancellationURL)
	}
	f.AccessErrorHandler = func(err error, req *types.Request) *types.Response {
		accessErrorCalls++
		return types.Redirect(f.Config.OAuthCancellationURL)
	}

	state, err := f.StateStore.Issue(context.Background(), nil, nil)
	require.NoError(t, err)

	query := url.Values{"code": {"bad-code"}, "state": {state}}
	_, err = f.Callback(context.Background(), &types.Request{Kind: types.OAuthCallback, ParsedPayload: query})
	require.NoError(t, err)

	assert.Equal(t, 0, exceptionCalls)
	assert.Equal(t, 1, accessErrorCalls)
}
