// Package app implements the Dispatcher: the component that ties
// RequestParser, MiddlewareChain, HandlerRegistry, and OAuthFlow together
// and owns App lifecycle (start/stop).
package app

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/brennalabs/slackcore/pkg/chain"
	bolterrors "github.com/brennalabs/slackcore/pkg/errors"
	"github.com/brennalabs/slackcore/pkg/middleware"
	"github.com/brennalabs/slackcore/pkg/oauth"
	"github.com/brennalabs/slackcore/pkg/parser"
	"github.com/brennalabs/slackcore/pkg/registry"
	"github.com/brennalabs/slackcore/pkg/signature"
	"github.com/brennalabs/slackcore/pkg/types"
)

// status models the App lifecycle guard: Start()/Stop() are idempotent and
// guarded against concurrent callers.
type status int

const (
	stopped status = iota
	running
)

// Config is the single configuration surface for an App. Socket mode,
// custom functions, and conversation storage are transport/feature concerns
// this package does not own.
type Config struct {
	SigningSecret      string
	VerificationToken  string
	SingleTeamBotToken string

	ClientID     string
	ClientSecret string
	Scopes       []string
	UserScopes   []string
	RedirectURI  string

	OAuthStartPath    string
	OAuthCallbackPath string

	OAuthCompletionURL   string
	OAuthCancellationURL string

	ClassicAppPermissionsEnabled bool
	StateExpirationSeconds       int

	InstallationStore oauth.InstallationStore
	StateStore        oauth.StateStore

	// OAuthSuccessHandler overrides the OAuthFlow's default post-install
	// redirect; nil keeps the 302-to-OAuthCompletionURL default.
	OAuthSuccessHandler oauth.SuccessHandlerFunc

	// IgnoreSelf defaults to true; set to a false pointer to disable
	// IgnoringSelfEvents entirely.
	IgnoreSelf *bool

	// InstallationLookupLimiter throttles MultiTeamsAuthorization's
	// InstallationStore reads. Nil disables throttling.
	InstallationLookupLimiter *rate.Limiter

	Logger *slog.Logger
}

// App is the Dispatcher: it owns the default middleware list, the
// HandlerRegistry, and the OAuthFlow, and exposes Run as the single entry
// point an HTTP adapter calls per request.
type App struct {
	mu     sync.Mutex
	status status

	cfg       Config
	logger    *slog.Logger
	parserCfg parser.Config

	verifier *signature.Verifier
	registry *registry.Registry
	oauth    *oauth.Flow

	// defaultMiddlewares is built lazily on Start(); userMiddlewares is
	// whatever Use() has appended, preserved across Start/Stop cycles.
	defaultMiddlewares []chain.Middleware
	userMiddlewares    []chain.Middleware

	clients   map[string]*slack.Client
	clientsMu sync.Mutex
}

// New constructs an App. Nothing blocking happens here; Start() does the
// lazy construction.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		parserCfg: parser.Config{
			OAuthStartPath:    cfg.OAuthStartPath,
			OAuthCallbackPath: cfg.OAuthCallbackPath,
		},
		verifier: signature.New(cfg.SigningSecret),
		registry: registry.New(logger),
		clients:  make(map[string]*slack.Client),
	}
}

// Use appends a middleware to run after the default chain, in insertion
// order. Safe to call before or after Start(); registration-after-start
// races are the caller's responsibility, and Run snapshots the list at
// dispatch time.
func (a *App) Use(mw chain.Middleware) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userMiddlewares = append(a.userMiddlewares, mw)
	if a.status == running {
		a.defaultMiddlewares = a.buildDefaultMiddlewaresLocked()
	}
	return a
}

// --- Handler registration, one method per dispatch-table row ---

// OnEvent registers a handler for the exact "type:subtype" Events API key
// (subtype "null" when the event carries none).
func (a *App) OnEvent(eventType, subtype string, handler registry.HandlerFunc) *App {
	if subtype == "" {
		subtype = "null"
	}
	a.registry.RegisterExact(types.Event, eventType+":"+subtype, handler)
	return a
}

// Command registers a slash-command handler by literal, anchored command
// string.
func (a *App) Command(command string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.SlashCommand, command, handler)
	return a
}

// CommandPattern registers a slash-command handler by pre-compiled pattern.
func (a *App) CommandPattern(pattern *regexp.Regexp, handler registry.HandlerFunc) *App {
	a.registry.RegisterCompiledPattern(types.SlashCommand, pattern, handler)
	return a
}

// Action registers a block_actions handler keyed by action_id.
func (a *App) Action(actionID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.BlockAction, actionID, handler)
	return a
}

// ActionPattern registers a block_actions handler by pre-compiled pattern.
func (a *App) ActionPattern(pattern *regexp.Regexp, handler registry.HandlerFunc) *App {
	a.registry.RegisterCompiledPattern(types.BlockAction, pattern, handler)
	return a
}

// BlockSuggestion registers a block_suggestion handler keyed by action_id.
func (a *App) BlockSuggestion(actionID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.BlockSuggestion, actionID, handler)
	return a
}

// MessageAction registers a message-shortcut handler keyed by callback_id.
func (a *App) MessageAction(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.MessageAction, callbackID, handler)
	return a
}

// AttachmentAction registers a legacy interactive-message handler keyed by
// callback_id.
func (a *App) AttachmentAction(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.AttachmentAction, callbackID, handler)
	return a
}

// ViewSubmission registers a modal-submission handler keyed by callback_id.
func (a *App) ViewSubmission(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.ViewSubmission, callbackID, handler)
	return a
}

// ViewClosed registers a modal-closed handler keyed by callback_id.
func (a *App) ViewClosed(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.ViewClosed, callbackID, handler)
	return a
}

// DialogSubmission registers a legacy dialog-submission handler keyed by
// callback_id.
func (a *App) DialogSubmission(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.DialogSubmission, callbackID, handler)
	return a
}

// DialogSuggestion registers a legacy dialog-suggestion handler keyed by
// callback_id.
func (a *App) DialogSuggestion(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.DialogSuggestion, callbackID, handler)
	return a
}

// DialogCancellation registers a legacy dialog-cancellation handler keyed by
// callback_id.
func (a *App) DialogCancellation(callbackID string, handler registry.HandlerFunc) *App {
	a.registry.RegisterPattern(types.DialogCancellation, callbackID, handler)
	return a
}

// OutgoingWebhook registers a handler for the exact trigger_word.
func (a *App) OutgoingWebhook(triggerWord string, handler registry.HandlerFunc) *App {
	a.registry.RegisterExact(types.OutgoingWebhook, triggerWord, handler)
	return a
}

// Start transitions Stopped -> Running. It is idempotent and lazily builds
// the default middleware list — SSLCheck, signature verification, team
// authorization, and (unless disabled) IgnoringSelfEvents — followed by
// every middleware registered via Use(), in insertion order. Signature
// verification and authorization middlewares always run before any user
// middleware in the default configuration.
func (a *App) Start(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == running {
		return nil
	}

	if err := a.buildOAuthFlowLocked(); err != nil {
		return err
	}

	a.defaultMiddlewares = a.buildDefaultMiddlewaresLocked()
	a.status = running
	return nil
}

// Stop transitions Running -> Stopped. Idempotent.
func (a *App) Stop(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = stopped
	return nil
}

func (a *App) buildOAuthFlowLocked() error {
	if a.cfg.ClientID == "" && a.cfg.ClientSecret == "" {
		return nil
	}

	stateStore := a.cfg.StateStore
	if stateStore == nil {
		ttl := time.Duration(a.cfg.StateExpirationSeconds) * time.Second
		stateStore = oauth.NewMemoryStateStore(ttl)
	}

	flow := oauth.NewFlow(oauth.Config{
		ClientID:                     a.cfg.ClientID,
		ClientSecret:                 a.cfg.ClientSecret,
		Scopes:                       a.cfg.Scopes,
		UserScopes:                   a.cfg.UserScopes,
		RedirectURI:                  a.cfg.RedirectURI,
		ClassicAppPermissionsEnabled: a.cfg.ClassicAppPermissionsEnabled,
		OAuthCompletionURL:           a.cfg.OAuthCompletionURL,
		OAuthCancellationURL:         a.cfg.OAuthCancellationURL,
	}, a.cfg.InstallationStore, stateStore, a.logger)
	flow.SuccessHandler = a.cfg.OAuthSuccessHandler
	a.oauth = flow

	return nil
}

func (a *App) buildDefaultMiddlewaresLocked() []chain.Middleware {
	chained := []chain.Middleware{middleware.SSLCheck(), a.signatureMiddleware()}

	if a.cfg.SingleTeamBotToken != "" {
		chained = append(chained, middleware.SingleTeamAuthorization(a.cfg.SingleTeamBotToken, a.getClient))
	} else if a.cfg.InstallationStore != nil {
		chained = append(chained, middleware.MultiTeamsAuthorization(middleware.AuthorizationConfig{
			InstallationStore: a.cfg.InstallationStore,
			GetClient:         a.getClient,
			Limiter:           a.cfg.InstallationLookupLimiter,
			Logger:            a.logger,
		}))
	}

	ignoreSelf := true
	if a.cfg.IgnoreSelf != nil {
		ignoreSelf = *a.cfg.IgnoreSelf
	}
	if ignoreSelf {
		chained = append(chained, middleware.IgnoringSelfEvents())
	}

	chained = append(chained, a.userMiddlewares...)
	return chained
}

// signatureMiddleware wraps the SignatureVerifier as a chain.Middleware.
// OAuth-path requests are exempt: Slack's redirect-based callback carries no
// HMAC headers, so install routes bypass signature verification entirely.
func (a *App) signatureMiddleware() chain.Middleware {
	return func(req *types.Request, draft *types.Response, next chain.NextFunc) (*types.Response, error) {
		if req.Kind == types.OAuthStart || req.Kind == types.OAuthCallback {
			return next()
		}
		if err := a.verifier.Verify(req.Headers, req.RawBody, time.Now()); err != nil {
			return types.Text(bolterrors.HTTPStatus(err), err.Error()), nil
		}
		return next()
	}
}

// getClient returns a pooled *slack.Client for token, creating one on first
// use, avoiding an allocation per authorized request.
func (a *App) getClient(token string) *slack.Client {
	a.clientsMu.Lock()
	defer a.clientsMu.Unlock()

	if client, ok := a.clients[token]; ok {
		return client
	}
	client := slack.New(token)
	a.clients[token] = client
	return client
}

// Run is the single entry point an HTTP adapter calls: parse, run the
// middleware chain, dispatch. It auto-starts the App on first invocation and
// is safe under concurrent invocation from multiple goroutines since every
// mutable per-request value lives on the Request/Context Run builds, not on
// App itself.
func (a *App) Run(method, path string, headers http.Header, rawBody []byte) (*types.Response, error) {
	if err := a.Start(context.Background()); err != nil {
		return nil, err
	}

	req, err := parser.Parse(a.parserCfg, method, path, headers, rawBody)
	if err != nil {
		return types.JSON(bolterrors.HTTPStatus(err), map[string]string{"error": "invalid_request"}), nil
	}

	req.Context = types.NewContext(time.Now())
	req.Context.Client = a.getClient("")
	req.Context.CancellationURL = a.cfg.OAuthCancellationURL

	a.mu.Lock()
	middlewares := a.defaultMiddlewares
	a.mu.Unlock()

	return chain.Run(req, middlewares, a.dispatch)
}

// dispatch is the chain's terminal step: select a handler from the
// HandlerRegistry, or delegate to OAuthFlow for the two OAuth kinds.
func (a *App) dispatch(req *types.Request) (*types.Response, error) {
	switch req.Kind {
	case types.UrlVerification:
		payload := req.PayloadMap()
		challenge, _ := payload["challenge"].(string)
		return types.Text(200, challenge), nil

	case types.OAuthStart:
		if a.oauth == nil {
			return types.Redirect(a.cfg.OAuthCancellationURL), nil
		}
		return a.oauth.InstallStart(context.Background(), req)

	case types.OAuthCallback:
		if a.oauth == nil {
			return types.Redirect(a.cfg.OAuthCancellationURL), nil
		}
		return a.oauth.Callback(context.Background(), req)

	case types.Event:
		payload := req.PayloadMap()
		key := parser.EventKey(payload)
		return a.dispatchExact(req, types.Event, key)

	case types.SlashCommand:
		payload := req.PayloadMap()
		command, _ := payload["command"].(string)
		return a.dispatchPattern(req, types.SlashCommand, command)

	case types.BlockAction:
		return a.dispatchBlockAction(req)

	case types.BlockSuggestion:
		payload := req.PayloadMap()
		actionID, _ := payload["action_id"].(string)
		return a.dispatchPattern(req, types.BlockSuggestion, actionID)

	case types.MessageAction, types.AttachmentAction, types.ViewSubmission, types.ViewClosed,
		types.DialogSubmission, types.DialogSuggestion, types.DialogCancellation:
		payload := req.PayloadMap()
		callbackID, _ := payload["callback_id"].(string)
		return a.dispatchPattern(req, req.Kind, callbackID)

	case types.OutgoingWebhook:
		payload := req.PayloadMap()
		trigger, _ := payload["trigger_word"].(string)
		return a.dispatchExact(req, types.OutgoingWebhook, trigger)

	default:
		err := bolterrors.NewNoHandlerFoundError(req.Kind.String())
		return types.JSON(bolterrors.HTTPStatus(err), map[string]string{"error": "no handler found"}), nil
	}
}

// dispatchBlockAction dispatches a block_actions payload carrying several
// actions only on actions[0].action_id; any other action's handler, if
// registered, is never invoked and its return value never computed.
func (a *App) dispatchBlockAction(req *types.Request) (*types.Response, error) {
	payload := req.PayloadMap()
	actions, _ := payload["actions"].([]interface{})
	if len(actions) == 0 {
		a.logger.Warn("block_actions payload carried no actions")
		err := bolterrors.NewNoHandlerFoundError(types.BlockAction.String())
		return types.JSON(bolterrors.HTTPStatus(err), map[string]string{"error": "no handler found"}), nil
	}
	first, _ := actions[0].(map[string]interface{})
	actionID, _ := first["action_id"].(string)
	return a.dispatchPattern(req, types.BlockAction, actionID)
}

func (a *App) dispatchPattern(req *types.Request, kind types.RequestKind, key string) (*types.Response, error) {
	handler, found := a.registry.LookupPattern(kind, key)
	if !found {
		a.logger.Warn("no handler found", "kind", kind.String(), "key", key)
		err := bolterrors.NewNoHandlerFoundError(kind.String() + ":" + key)
		return types.JSON(bolterrors.HTTPStatus(err), map[string]string{"error": "no handler found"}), nil
	}
	return handler(req)
}

func (a *App) dispatchExact(req *types.Request, kind types.RequestKind, key string) (*types.Response, error) {
	handler, found := a.registry.LookupExact(kind, key)
	if !found {
		a.logger.Warn("no handler found", "kind", kind.String(), "key", key)
		err := bolterrors.NewNoHandlerFoundError(kind.String() + ":" + key)
		return types.JSON(bolterrors.HTTPStatus(err), map[string]string{"error": "no handler found"}), nil
	}
	return handler(req)
}
