package types

import (
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// StringIndexed is a loosely-typed bag of middleware-contributed values.
type StringIndexed map[string]interface{}

// Context is the per-request mutable bag threaded through the middleware
// chain. It is exclusively owned by the request that created it and is never
// shared across requests; the embedded mutex only guards against concurrent
// middleware accidentally racing on Custom within a single request (e.g. a
// handler spawning a goroutine that reads Context while another mutates it).
type Context struct {
	mu sync.RWMutex

	// Timestamp is the time the request was received, available to
	// middleware and handlers. The signature middleware checks the replay
	// window against its own time.Now(), not against this field.
	Timestamp time.Time

	TeamID       *string
	EnterpriseID *string
	UserID       *string
	BotID        *string
	BotUserID    *string

	BotToken  string
	UserToken string

	IsEnterpriseInstall bool

	// Client is the Slack API client bound to this request's resolved
	// token. It is set before any middleware runs and may be refined once
	// auth middleware resolves a team-specific token.
	Client *slack.Client

	// CancellationURL is the configured OAuth cancellation redirect,
	// available to OAuth-path middleware/handlers.
	CancellationURL string

	Custom StringIndexed
}

// NewContext builds an empty Context with Custom initialized and Timestamp
// set to now.
func NewContext(now time.Time) *Context {
	return &Context{
		Timestamp: now,
		Custom:    make(StringIndexed),
	}
}

// Set stores a value in Custom, safe for concurrent use within one request.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Custom[key] = value
}

// Get reads a value from Custom.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.Custom[key]
	return v, ok
}
