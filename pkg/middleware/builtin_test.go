package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennalabs/slackcore/pkg/oauth"
	"github.com/brennalabs/slackcore/pkg/types"
)

func newTestRequest(kind types.RequestKind, payload map[string]interface{}) *types.Request {
	return &types.Request{
		Kind:          kind,
		ParsedPayload: payload,
		Context:       types.NewContext(time.Now()),
	}
}

func TestSSLCheck_ShortCircuitsSlashCommandSSLCheck(t *testing.T) {
	mw := SSLCheck()
	req := newTestRequest(types.SlashCommand, map[string]interface{}{"ssl_check": "1"})

	called := false
	resp, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSSLCheck_PassesThroughOtherRequests(t *testing.T) {
	mw := SSLCheck()
	req := newTestRequest(types.SlashCommand, map[string]interface{}{"command": "/foo"})

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestMultiTeamsAuthorization_BypassesOAuthKinds(t *testing.T) {
	store := oauth.NewMemoryInstallationStore()
	mw := MultiTeamsAuthorization(AuthorizationConfig{InstallationStore: store})
	req := newTestRequest(types.OAuthStart, nil)

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestMultiTeamsAuthorization_SuccessPopulatesContext(t *testing.T) {
	store := oauth.NewMemoryInstallationStore()
	require.NoError(t, store.Save(context.Background(), &oauth.Installation{
		Team:     &oauth.Team{ID: "T1"},
		BotToken: "xoxb-1",
		BotID:    "B1",
	}))

	mw := MultiTeamsAuthorization(AuthorizationConfig{InstallationStore: store})
	req := newTestRequest(types.Event, map[string]interface{}{"team_id": "T1"})

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "xoxb-1", req.Context.BotToken)
	require.NotNil(t, req.Context.TeamID)
	assert.Equal(t, "T1", *req.Context.TeamID)
}

func TestMultiTeamsAuthorization_FailureReturns401(t *testing.T) {
	store := oauth.NewMemoryInstallationStore()
	mw := MultiTeamsAuthorization(AuthorizationConfig{InstallationStore: store})
	req := newTestRequest(types.Event, map[string]interface{}{"team_id": "unknown-team"})

	called := false
	resp, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestMultiTeamsAuthorization_NestedTeamObjectIsExtracted(t *testing.T) {
	store := oauth.NewMemoryInstallationStore()
	require.NoError(t, store.Save(context.Background(), &oauth.Installation{
		Team:     &oauth.Team{ID: "T2"},
		BotToken: "xoxb-2",
	}))

	mw := MultiTeamsAuthorization(AuthorizationConfig{InstallationStore: store})
	req := newTestRequest(types.BlockAction, map[string]interface{}{
		"team": map[string]interface{}{"id": "T2"},
	})

	_, err := mw(req, types.OK(), func() (*types.Response, error) { return types.OK(), nil })
	require.NoError(t, err)
	assert.Equal(t, "xoxb-2", req.Context.BotToken)
}

func TestSingleTeamAuthorization_SetsStaticToken(t *testing.T) {
	mw := SingleTeamAuthorization("xoxb-static", nil)
	req := newTestRequest(types.Event, map[string]interface{}{})

	_, err := mw(req, types.OK(), func() (*types.Response, error) { return types.OK(), nil })
	require.NoError(t, err)
	assert.Equal(t, "xoxb-static", req.Context.BotToken)
	assert.NotNil(t, req.Context.Client)
}

func TestIgnoringSelfEvents_ShortCircuitsOnMatchingBotUserID(t *testing.T) {
	mw := IgnoringSelfEvents()
	req := newTestRequest(types.Event, map[string]interface{}{
		"event": map[string]interface{}{"type": "message", "user": "B1"},
	})
	botUserID := "B1"
	req.Context.BotUserID = &botUserID

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestIgnoringSelfEvents_ShortCircuitsOnMatchingBotID(t *testing.T) {
	mw := IgnoringSelfEvents()
	req := newTestRequest(types.Event, map[string]interface{}{
		"event": map[string]interface{}{"type": "message", "bot_id": "BOT1"},
	})
	botID := "BOT1"
	req.Context.BotID = &botID

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestIgnoringSelfEvents_PassesThroughDifferentUser(t *testing.T) {
	mw := IgnoringSelfEvents()
	req := newTestRequest(types.Event, map[string]interface{}{
		"event": map[string]interface{}{"type": "message", "user": "U2"},
	})
	botUserID := "B1"
	req.Context.BotUserID = &botUserID

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestIgnoringSelfEvents_MembershipEventsAlwaysPassThrough(t *testing.T) {
	mw := IgnoringSelfEvents()
	req := newTestRequest(types.Event, map[string]interface{}{
		"event": map[string]interface{}{"type": "member_joined_channel", "user": "B1"},
	})
	botUserID := "B1"
	req.Context.BotUserID = &botUserID

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestIgnoringSelfEvents_NonEventKindPassesThrough(t *testing.T) {
	mw := IgnoringSelfEvents()
	req := newTestRequest(types.SlashCommand, map[string]interface{}{"command": "/foo"})

	called := false
	_, err := mw(req, types.OK(), func() (*types.Response, error) {
		called = true
		return types.OK(), nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}
