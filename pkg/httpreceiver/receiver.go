// Package httpreceiver is the thin net/http adapter that lets an App serve
// real traffic: turn an *http.Request into the bytes and headers App.Run
// needs, and write its *types.Response back.
package httpreceiver

import (
	"io"
	"net/http"

	"github.com/brennalabs/slackcore/pkg/types"
)

// Runner is the subset of *app.App this package depends on, letting tests
// substitute a fake Dispatcher without importing pkg/app.
type Runner interface {
	Run(method, path string, headers http.Header, body []byte) (*types.Response, error)
}

// Receiver adapts a Runner onto net/http: one handler function, mountable
// at whatever paths the caller's mux chooses. It owns no routing decisions
// beyond that single hop into the Dispatcher.
type Receiver struct {
	app Runner
}

// New builds a Receiver bound to app.
func New(app Runner) *Receiver {
	return &Receiver{app: app}
}

// ServeHTTP implements http.Handler: read the body, call Run, write the
// Response back verbatim. A Run error (as opposed to a Response carrying a
// non-2xx status) means a handler panic-equivalent propagated out of the
// Dispatcher rather than being turned into a Response; this turns that into
// a 500.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	// RequestURI (not URL.Path) carries the query string the
	// RequestParser needs for OAuth callback's code/state parameters.
	resp, err := r.app.Run(req.Method, req.URL.RequestURI(), req.Header, body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *types.Response) {
	header := w.Header()
	for key, values := range resp.Headers {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
