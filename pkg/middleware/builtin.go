// Package middleware provides the framework's built-in chain.Middleware
// implementations: the legacy SSL-check, MultiTeamsAuthorization/
// SingleTeamAuthorization, and IgnoringSelfEvents.
package middleware

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/brennalabs/slackcore/pkg/chain"
	slackerrors "github.com/brennalabs/slackcore/pkg/errors"
	"github.com/brennalabs/slackcore/pkg/oauth"
	"github.com/brennalabs/slackcore/pkg/types"
)

// GetClientFunc resolves a Slack API client for a bot token. Pulling this
// out as a function lets App supply a pooled, reused *slack.Client instead
// of every authorized request allocating its own.
type GetClientFunc func(token string) *slack.Client

func defaultGetClient(token string) *slack.Client {
	return slack.New(token)
}

// SSLCheck implements the legacy SSL-check middleware: for slash commands
// only, a form body with ssl_check=1 short-circuits with the draft 200 OK
// without ever reaching verification or user middleware.
func SSLCheck() chain.Middleware {
	return func(req *types.Request, draft *types.Response, next chain.NextFunc) (*types.Response, error) {
		if req.Kind == types.SlashCommand {
			if payload := req.PayloadMap(); payload != nil {
				if v, _ := payload["ssl_check"].(string); v == "1" {
					return draft, nil
				}
			}
		}
		return next()
	}
}

// AuthorizationConfig configures MultiTeamsAuthorization.
type AuthorizationConfig struct {
	InstallationStore oauth.InstallationStore
	GetClient         GetClientFunc
	// Limiter, when set, throttles InstallationStore lookups — guarding
	// a remote store the way golang.org/x/time/rate throttles outbound
	// calls elsewhere in the retrieved pack.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// MultiTeamsAuthorization looks up the team's installation and populates
// Context with its bot token/ids/client. OAuth-path requests bypass it
// entirely — they are not yet associated with any installed team.
func MultiTeamsAuthorization(cfg AuthorizationConfig) chain.Middleware {
	getClient := cfg.GetClient
	if getClient == nil {
		getClient = defaultGetClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(req *types.Request, draft *types.Response, next chain.NextFunc) (*types.Response, error) {
		if req.Kind == types.OAuthStart || req.Kind == types.OAuthCallback {
			return next()
		}

		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(context.Background()); err != nil {
				logger.Warn("installation lookup rate limiter wait failed", "error", err)
			}
		}

		teamID, enterpriseID := extractTeamAndEnterprise(req)
		installation, err := cfg.InstallationStore.FindBot(context.Background(), enterpriseID, teamID)
		if err != nil {
			logger.Warn("no installation found for request", "team_id", teamID, "enterprise_id", enterpriseID)
			noInstallation := slackerrors.NewNoInstallationFoundError("no installation found for team_id=" + teamID + " enterprise_id=" + enterpriseID)
			return types.JSON(slackerrors.HTTPStatus(noInstallation), map[string]string{"error": "invalid_request"}), nil
		}

		req.Context.TeamID = &teamID
		req.Context.EnterpriseID = &enterpriseID
		req.Context.BotToken = installation.BotToken
		req.Context.BotID = &installation.BotID
		req.Context.BotUserID = &installation.BotUserID
		req.Context.IsEnterpriseInstall = installation.IsEnterpriseInstall
		req.Context.Client = getClient(installation.BotToken)

		return next()
	}
}

// SingleTeamAuthorization configures Context from a single, statically
// configured bot token instead of an InstallationStore lookup — for apps
// installed into exactly one workspace.
func SingleTeamAuthorization(botToken string, getClient GetClientFunc) chain.Middleware {
	if getClient == nil {
		getClient = defaultGetClient
	}

	return func(req *types.Request, draft *types.Response, next chain.NextFunc) (*types.Response, error) {
		if req.Kind == types.OAuthStart || req.Kind == types.OAuthCallback {
			return next()
		}
		req.Context.BotToken = botToken
		req.Context.Client = getClient(botToken)
		return next()
	}
}

// eventsWhichShouldBeKept never short-circuits even when they appear to
// originate from the bot itself — membership-change events apps commonly
// need to react to regardless of actor.
var eventsWhichShouldBeKept = map[string]bool{
	"member_joined_channel": true,
	"member_left_channel":   true,
}

// IgnoringSelfEvents short-circuits Event kind requests whose user or
// bot_id matches the authorized bot's own ids, returning 200 OK without
// invoking any handler, preventing self-triggered loops.
func IgnoringSelfEvents() chain.Middleware {
	return func(req *types.Request, draft *types.Response, next chain.NextFunc) (*types.Response, error) {
		if req.Kind != types.Event {
			return next()
		}

		payload := req.PayloadMap()
		event, _ := payload["event"].(map[string]interface{})
		eventType, _ := event["type"].(string)
		if eventsWhichShouldBeKept[eventType] {
			return next()
		}

		eventUser, _ := event["user"].(string)
		eventBotID, _ := event["bot_id"].(string)

		if eventUser != "" && req.Context.BotUserID != nil && eventUser == *req.Context.BotUserID {
			return types.OK(), nil
		}
		if eventBotID != "" && req.Context.BotID != nil && eventBotID == *req.Context.BotID {
			return types.OK(), nil
		}

		return next()
	}
}

// extractTeamAndEnterprise reads team_id/team.id and enterprise_id/
// enterprise.id off the parsed payload: events nest team under a top-level
// field, while interactive payloads nest an {id,...} object.
func extractTeamAndEnterprise(req *types.Request) (teamID, enterpriseID string) {
	payload := req.PayloadMap()
	if payload == nil {
		return "", ""
	}

	if v, ok := payload["team_id"].(string); ok {
		teamID = v
	} else if team, ok := payload["team"].(map[string]interface{}); ok {
		if id, ok := team["id"].(string); ok {
			teamID = id
		}
	}

	if v, ok := payload["enterprise_id"].(string); ok {
		enterpriseID = v
	} else if enterprise, ok := payload["enterprise"].(map[string]interface{}); ok {
		if id, ok := enterprise["id"].(string); ok {
			enterpriseID = id
		}
	}

	return teamID, enterpriseID
}
