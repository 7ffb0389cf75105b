package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"

	slackerrors "github.com/brennalabs/slackcore/pkg/errors"
	"github.com/brennalabs/slackcore/pkg/types"
)

const (
	v1AuthorizeURL = "https://slack.com/oauth/authorize"
	v2AuthorizeURL = "https://slack.com/oauth/v2/authorize"
)

// Config holds the OAuth-related subset of the app's configuration.
type Config struct {
	ClientID                     string
	ClientSecret                 string
	Scopes                       []string
	UserScopes                   []string
	RedirectURI                  string
	ClassicAppPermissionsEnabled bool
	OAuthCompletionURL           string
	OAuthCancellationURL         string
}

// ErrorHandlerFunc lets the caller override how a given failure category is
// turned into a Response; the zero value falls back to a 302 redirect to
// OAuthCancellationURL.
type ErrorHandlerFunc func(err error, req *types.Request) *types.Response

// SuccessHandlerFunc lets the caller override the post-install Response;
// the zero value falls back to a 302 redirect to OAuthCompletionURL.
type SuccessHandlerFunc func(installation *Installation, req *types.Request) *types.Response

// Flow implements the OAuth install/callback state machine: InstallStart
// builds the authorize redirect, Callback consumes it. Callback failures
// are split into four categories — error param, state failure, exchange
// exception, and an `ok:false` access answer — each with its own
// overridable handler.
type Flow struct {
	Config            Config
	InstallationStore InstallationStore
	StateStore        StateStore
	Logger            *slog.Logger

	ErrorHandler       ErrorHandlerFunc
	StateErrorHandler  ErrorHandlerFunc
	ExceptionHandler   ErrorHandlerFunc
	AccessErrorHandler ErrorHandlerFunc
	SuccessHandler     SuccessHandlerFunc

	httpClient *http.Client

	// exchange is exchangeCode by default; tests substitute a fake to
	// avoid making real oauth.access/oauth.v2.access calls.
	exchange func(ctx context.Context, code string) (*Installation, error)
}

// NewFlow builds a Flow; a nil InstallationStore/StateStore falls back to
// the in-memory implementations.
func NewFlow(cfg Config, installationStore InstallationStore, stateStore StateStore, logger *slog.Logger) *Flow {
	if installationStore == nil {
		installationStore = NewMemoryInstallationStore()
	}
	if stateStore == nil {
		stateStore = NewMemoryStateStore(DefaultStateTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flow{
		Config:            cfg,
		InstallationStore: installationStore,
		StateStore:        stateStore,
		Logger:            logger,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
	}
	f.exchange = f.exchangeCode
	return f
}

func (f *Flow) authorizeURL() string {
	if f.Config.ClassicAppPermissionsEnabled {
		return v1AuthorizeURL
	}
	return v2AuthorizeURL
}

// InstallStart generates the install URL and redirects to it. Missing
// client_id/scope/state cancels instead of producing a broken redirect.
func (f *Flow) InstallStart(ctx context.Context, req *types.Request) (*types.Response, error) {
	scope := strings.Join(f.Config.Scopes, ",")
	if f.Config.ClientID == "" || scope == "" {
		f.Logger.Error("oauth install start missing client_id or scope", "client_id_present", f.Config.ClientID != "", "scope_present", scope != "")
		return types.Redirect(f.Config.OAuthCancellationURL), nil
	}

	draft := types.OK()
	state, err := f.StateStore.Issue(ctx, req, draft)
	if err != nil || state == "" {
		f.Logger.Error("failed to issue oauth state", "error", err)
		return types.Redirect(f.Config.OAuthCancellationURL), nil
	}

	params := url.Values{}
	params.Set("client_id", f.Config.ClientID)
	params.Set("scope", scope)
	params.Set("state", state)
	if !f.Config.ClassicAppPermissionsEnabled && len(f.Config.UserScopes) > 0 {
		params.Set("user_scope", strings.Join(f.Config.UserScopes, ","))
	}
	if f.Config.RedirectURI != "" {
		params.Set("redirect_uri", f.Config.RedirectURI)
	}

	resp := types.Redirect(f.authorizeURL() + "?" + params.Encode())
	for key, values := range draft.Headers {
		for _, v := range values {
			resp.Headers.Add(key, v)
		}
	}
	return resp, nil
}

// Callback drives the three-step callback state machine: error param, state
// consumption, then code exchange.
func (f *Flow) Callback(ctx context.Context, req *types.Request) (*types.Response, error) {
	query, _ := req.ParsedPayload.(url.Values)

	if errParam := query.Get("error"); errParam != "" {
		return f.handle(f.ErrorHandler, fmt.Errorf("oauth callback returned error=%s", errParam), req), nil
	}

	state := query.Get("state")
	if state == "" || !f.StateStore.Consume(ctx, state) {
		return f.handle(f.StateErrorHandler, slackerrors.NewOAuthStateError("missing, expired, or already-consumed state parameter"), req), nil
	}

	installation, err := f.exchange(ctx, query.Get("code"))
	if err != nil {
		var accessDenied *slackerrors.OAuthAccessDeniedError
		if errors.As(err, &accessDenied) {
			return f.handle(f.AccessErrorHandler, err, req), nil
		}
		return f.handle(f.ExceptionHandler, err, req), nil
	}

	if err := f.InstallationStore.Save(ctx, installation); err != nil {
		return f.handle(f.ExceptionHandler, fmt.Errorf("failed to save installation: %w", err), req), nil
	}

	if f.SuccessHandler != nil {
		return f.SuccessHandler(installation, req), nil
	}
	return types.Redirect(f.Config.OAuthCompletionURL), nil
}

// handle logs err at error level, then runs the caller-supplied handler if
// set, else redirects to the cancellation URL. Failures here are never
// surfaced to the caller as Go errors.
func (f *Flow) handle(custom ErrorHandlerFunc, err error, req *types.Request) *types.Response {
	f.Logger.Error("oauth flow failed", "error", err)
	if custom != nil {
		return custom(err, req)
	}
	return types.Redirect(f.Config.OAuthCancellationURL)
}

// exchangeCode calls oauth.access (v1) or oauth.v2.access (v2) via the
// slack-go SDK and converts the SDK's response shape into an Installation.
func (f *Flow) exchangeCode(ctx context.Context, code string) (*Installation, error) {
	if f.Config.ClassicAppPermissionsEnabled {
		resp, err := slack.GetOAuthResponseContext(ctx, f.httpClient, f.Config.ClientID, f.Config.ClientSecret, code, f.Config.RedirectURI)
		// The SDK returns resp.Ok == false alongside a non-nil err whenever
		// Slack answered the request with {"ok":false,...}; that's an access
		// denial, not a transport/exception failure, so it must reach
		// AccessErrorHandler rather than ExceptionHandler.
		if resp != nil && !resp.Ok {
			return nil, slackerrors.NewOAuthAccessDeniedError("oauth.access responded ok=false: " + resp.Error)
		}
		if err != nil {
			return nil, slackerrors.NewOAuthExchangeError("oauth.access request failed", err)
		}
		return convertV1Response(resp), nil
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, f.httpClient, f.Config.ClientID, f.Config.ClientSecret, code, f.Config.RedirectURI)
	if resp != nil && !resp.Ok {
		return nil, slackerrors.NewOAuthAccessDeniedError("oauth.v2.access responded ok=false: " + resp.Error)
	}
	if err != nil {
		return nil, slackerrors.NewOAuthExchangeError("oauth.v2.access request failed", err)
	}
	return convertV2Response(resp), nil
}

func convertV2Response(response *slack.OAuthV2Response) *Installation {
	installation := &Installation{
		IsEnterpriseInstall: response.IsEnterpriseInstall,
		AppID:               response.AppID,
		AuthVersion:         "v2",
		Scope:               response.Scope,
		InstalledAt:         time.Now(),
	}

	if response.Team.ID != "" {
		installation.Team = &Team{ID: response.Team.ID, Name: response.Team.Name}
	}
	if response.Enterprise.ID != "" {
		installation.Enterprise = &Enterprise{ID: response.Enterprise.ID, Name: response.Enterprise.Name}
	}
	if response.AuthedUser.ID != "" {
		installation.AuthedUser = &AuthedUser{
			ID:          response.AuthedUser.ID,
			Scope:       response.AuthedUser.Scope,
			AccessToken: response.AuthedUser.AccessToken,
			TokenType:   response.AuthedUser.TokenType,
		}
		installation.User = &User{ID: response.AuthedUser.ID}
		if installation.Team != nil {
			installation.User.TeamID = installation.Team.ID
		}
	}
	if response.IncomingWebhook.Channel != "" {
		installation.IncomingWebhook = &IncomingWebhook{
			Channel:          response.IncomingWebhook.Channel,
			ChannelID:        response.IncomingWebhook.ChannelID,
			ConfigurationURL: response.IncomingWebhook.ConfigurationURL,
			URL:              response.IncomingWebhook.URL,
		}
	}
	if response.AccessToken != "" && response.BotUserID != "" {
		installation.Bot = &Bot{
			ID:          response.BotUserID,
			UserID:      response.BotUserID,
			AccessToken: response.AccessToken,
			Scope:       response.Scope,
		}
		installation.BotToken = response.AccessToken
		installation.BotID = response.BotUserID
		installation.BotUserID = response.BotUserID
	}

	return installation
}

func convertV1Response(response *slack.OAuthResponse) *Installation {
	installation := &Installation{
		AuthVersion: "v1",
		Scope:       response.Scope,
		InstalledAt: time.Now(),
	}

	if response.TeamID != "" {
		installation.Team = &Team{ID: response.TeamID, Name: response.TeamName}
	}
	if response.Bot.BotAccessToken != "" {
		installation.Bot = &Bot{
			ID:          response.Bot.BotUserID,
			UserID:      response.Bot.BotUserID,
			AccessToken: response.Bot.BotAccessToken,
		}
		installation.BotToken = response.Bot.BotAccessToken
		installation.BotID = response.Bot.BotUserID
		installation.BotUserID = response.Bot.BotUserID
	}
	if response.IncomingWebhook.URL != "" {
		installation.IncomingWebhook = &IncomingWebhook{
			Channel:          response.IncomingWebhook.Channel,
			ChannelID:        response.IncomingWebhook.ChannelID,
			ConfigurationURL: response.IncomingWebhook.ConfigurationURL,
			URL:              response.IncomingWebhook.URL,
		}
	}
	if response.UserID != "" {
		installation.User = &User{ID: response.UserID, TeamID: response.TeamID}
	}

	return installation
}
