// Package parser implements the RequestParser: normalizing a raw HTTP call
// into a typed Request tagged with a RequestKind, via eight ordered
// classification rules.
package parser

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	slackerrors "github.com/brennalabs/slackcore/pkg/errors"
	"github.com/brennalabs/slackcore/pkg/types"
)

// Config carries the two paths the parser must recognize before falling
// through to body-shape classification.
type Config struct {
	OAuthStartPath    string
	OAuthCallbackPath string
}

// Parse classifies a raw HTTP request per the eight ordered rules below.
// The returned Request has Kind and ParsedPayload set; Context is left nil
// for the Dispatcher to populate.
func Parse(cfg Config, method, rawPath string, headers http.Header, body []byte) (*types.Request, error) {
	path, query := splitPath(rawPath)

	// Rules 1-2: OAuth paths take precedence over body shape.
	if cfg.OAuthStartPath != "" && path == cfg.OAuthStartPath {
		return &types.Request{Kind: types.OAuthStart, RawBody: body, Headers: headers, ParsedPayload: query}, nil
	}
	if cfg.OAuthCallbackPath != "" && path == cfg.OAuthCallbackPath {
		return &types.Request{Kind: types.OAuthCallback, RawBody: body, Headers: headers, ParsedPayload: query}, nil
	}

	contentType := headers.Get("Content-Type")

	// Rules 3-4: JSON bodies.
	if strings.HasPrefix(contentType, "application/json") {
		var decoded map[string]interface{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, slackerrors.NewMalformedBodyError("request declared application/json but body did not decode", err)
		}

		switch decoded["type"] {
		case "url_verification":
			return &types.Request{Kind: types.UrlVerification, RawBody: body, Headers: headers, ParsedPayload: decoded}, nil
		case "event_callback":
			return &types.Request{Kind: types.Event, RawBody: body, Headers: headers, ParsedPayload: decoded}, nil
		}

		return nil, slackerrors.NewUnrecognizedRequestError("application/json body had unrecognized top-level \"type\"")
	}

	// Rules 5-7: form-urlencoded bodies.
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, slackerrors.NewMalformedBodyError("request declared form-urlencoded but body did not parse", err)
		}

		if payloadField := form.Get("payload"); payloadField != "" {
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(payloadField), &decoded); err != nil {
				return nil, slackerrors.NewMalformedBodyError("form \"payload\" field did not decode as JSON", err)
			}

			kind, ok := interactiveKind(decoded["type"])
			if !ok {
				return nil, slackerrors.NewUnrecognizedRequestError("form \"payload\" field had unrecognized \"type\"")
			}
			return &types.Request{Kind: kind, RawBody: body, Headers: headers, ParsedPayload: decoded}, nil
		}

		flat := formToMap(form)
		if form.Has("command") || form.Has("ssl_check") {
			return &types.Request{Kind: types.SlashCommand, RawBody: body, Headers: headers, ParsedPayload: flat}, nil
		}
		if form.Has("trigger_word") {
			return &types.Request{Kind: types.OutgoingWebhook, RawBody: body, Headers: headers, ParsedPayload: flat}, nil
		}

		return nil, slackerrors.NewUnrecognizedRequestError("form-urlencoded body matched none of command/trigger_word/payload")
	}

	return nil, slackerrors.NewUnrecognizedRequestError("request content-type was neither application/json nor form-urlencoded")
}

func interactiveKind(rawType interface{}) (types.RequestKind, bool) {
	t, _ := rawType.(string)
	switch t {
	case "block_actions":
		return types.BlockAction, true
	case "block_suggestion":
		return types.BlockSuggestion, true
	case "message_action":
		return types.MessageAction, true
	case "interactive_message":
		return types.AttachmentAction, true
	case "view_submission":
		return types.ViewSubmission, true
	case "view_closed":
		return types.ViewClosed, true
	case "dialog_submission":
		return types.DialogSubmission, true
	case "dialog_suggestion":
		return types.DialogSuggestion, true
	case "dialog_cancellation":
		return types.DialogCancellation, true
	default:
		return 0, false
	}
}

func splitPath(rawPath string) (string, url.Values) {
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		query, _ := url.ParseQuery(rawPath[idx+1:])
		return rawPath[:idx], query
	}
	return rawPath, url.Values{}
}

func formToMap(values url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for key, vs := range values {
		if len(vs) == 1 {
			out[key] = vs[0]
		} else {
			out[key] = vs
		}
	}
	return out
}

// EventKey builds the "type:subtype" composite key used for Event handler
// registration/lookup; subtype is the literal "null" when absent.
func EventKey(eventPayload map[string]interface{}) string {
	event, _ := eventPayload["event"].(map[string]interface{})
	eventType, _ := event["type"].(string)
	subtype, ok := event["subtype"].(string)
	if !ok || subtype == "" {
		subtype = "null"
	}
	return eventType + ":" + subtype
}
