// Package oauth implements the OAuth install/callback state machine:
// InstallationStore and StateStore interfaces, a Flow that drives
// install-start and callback, and in-memory/encrypted store implementations.
package oauth

import (
	"context"
	"time"

	"github.com/brennalabs/slackcore/pkg/types"
)

// InstallationStore persists and loads per-team bot and user tokens, keyed
// by (enterpriseId?, teamId, userId?).
type InstallationStore interface {
	// Save persists installation, keyed by its team/enterprise/user ids.
	Save(ctx context.Context, installation *Installation) error
	// FindBot looks up the bot-level installation for a team (or
	// enterprise, for org-wide installs).
	FindBot(ctx context.Context, enterpriseID, teamID string) (*Installation, error)
	// FindInstaller looks up the installing user's own token, distinct
	// from the bot token, for a given team+user.
	FindInstaller(ctx context.Context, enterpriseID, teamID, userID string) (*Installation, error)
	// DeleteAll removes every installation recorded for a team/enterprise.
	DeleteAll(ctx context.Context, enterpriseID, teamID string) error
}

// StateStore issues and consumes one-time install-state tokens.
type StateStore interface {
	// Issue mints a new state token for an in-flight install-start
	// request; it may attach a Set-Cookie header to draft or persist
	// server-side.
	Issue(ctx context.Context, req *types.Request, draft *types.Response) (string, error)
	// Consume MUST be atomic and single-use: it reports whether state
	// was a valid, unexpired, not-previously-consumed token, and
	// invalidates it as a side effect regardless of outcome.
	Consume(ctx context.Context, state string) bool
}

// Installation is the persisted record of one app installation, keyed by
// (EnterpriseID?, TeamID, UserID?).
type Installation struct {
	Team                *Team
	Enterprise          *Enterprise
	User                *User
	IsEnterpriseInstall bool
	AppID               string
	AuthVersion         string // "v1" or "v2"
	Bot                 *Bot
	IncomingWebhook     *IncomingWebhook
	AuthedUser          *AuthedUser
	Scope               string
	BotToken            string
	BotID               string
	BotUserID           string
	BotScopes           []string
	UserScopes          []string
	InstalledAt         time.Time
}

// Team represents a Slack team/workspace.
type Team struct {
	ID     string
	Name   string
	Domain string
}

// Enterprise represents a Slack Enterprise Grid organization.
type Enterprise struct {
	ID   string
	Name string
}

// User represents the Slack user who completed the install.
type User struct {
	ID     string
	TeamID string
}

// Bot represents the bot identity created by an installation.
type Bot struct {
	ID          string
	UserID      string
	AccessToken string
	Scope       string
}

// IncomingWebhook represents a legacy incoming-webhook grant.
type IncomingWebhook struct {
	Channel          string
	ChannelID        string
	ConfigurationURL string
	URL              string
}

// AuthedUser represents the installer's own (non-bot) token, granted only
// when user scopes were requested.
type AuthedUser struct {
	ID          string
	Scope       string
	AccessToken string
	TokenType   string
}
