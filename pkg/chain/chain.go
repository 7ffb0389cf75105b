// Package chain implements the middleware pipeline executor: an index into
// the middleware slice plus one shared next closure. Each middleware's call
// to next runs the following stage on the same call stack, so stack depth
// grows with the number of middlewares.
package chain

import "github.com/brennalabs/slackcore/pkg/types"

// NextFunc continues the chain, returning whatever the remaining middlewares
// (and eventually the terminal) produce.
type NextFunc func() (*types.Response, error)

// Middleware may short-circuit by returning without calling next, call next
// and return its result unchanged, call next and then post-process the
// returned Response, or mutate req.Context before calling next.
type Middleware func(req *types.Request, draft *types.Response, next NextFunc) (*types.Response, error)

// Terminal is invoked once every middleware has called next; it is the
// Dispatcher's handler-selection step.
type Terminal func(req *types.Request) (*types.Response, error)

// Run builds the continuation chain and executes it. The draft seeded into
// the first middleware is types.OK(); later middlewares see the same shared
// draft instance, matching "each middleware may ignore it" — it's a
// convenience starting point, not a running accumulator.
func Run(req *types.Request, middlewares []Middleware, terminal Terminal) (*types.Response, error) {
	draft := types.OK()
	idx := 0

	var next NextFunc
	next = func() (*types.Response, error) {
		if idx >= len(middlewares) {
			return terminal(req)
		}
		mw := middlewares[idx]
		idx++
		return mw(req, draft, next)
	}

	return next()
}
