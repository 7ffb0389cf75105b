package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK_IsTwoHundredTextPlainEmptyArray(t *testing.T) {
	resp := OK()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "[]", string(resp.Body))
}

func TestJSON_SetsContentTypeAndMarshalsBody(t *testing.T) {
	resp := JSON(404, map[string]string{"error": "no handler found"})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"error":"no handler found"}`, string(resp.Body))
}

func TestJSON_MarshalFailureFallsBackTo500(t *testing.T) {
	resp := JSON(200, make(chan int))
	assert.Equal(t, 500, resp.StatusCode)
}

func TestRedirect_SetsLocationHeaderAnd302(t *testing.T) {
	resp := Redirect("https://example.com/cancel")
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "https://example.com/cancel", resp.Headers.Get("Location"))
}

func TestContext_SetAndGetAreConcurrencySafeWithinOneRequest(t *testing.T) {
	ctx := NewContext(time.Now())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			ctx.Set("key", i)
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		ctx.Get("key")
	}
	<-done

	v, ok := ctx.Get("key")
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestRequest_PayloadMap_ReturnsNilForNonMapPayload(t *testing.T) {
	req := &Request{ParsedPayload: "not-a-map"}
	assert.Nil(t, req.PayloadMap())
}

func TestRequest_PayloadMap_ReturnsUnderlyingMap(t *testing.T) {
	req := &Request{ParsedPayload: map[string]interface{}{"command": "/foo"}}
	m := req.PayloadMap()
	require.NotNil(t, m)
	assert.Equal(t, "/foo", m["command"])
}

func TestRequestKind_StringCoversEveryKind(t *testing.T) {
	kinds := []RequestKind{
		UrlVerification, Event, SlashCommand, BlockAction, BlockSuggestion,
		MessageAction, AttachmentAction, ViewSubmission, ViewClosed,
		DialogSubmission, DialogSuggestion, DialogCancellation,
		OutgoingWebhook, OAuthStart, OAuthCallback,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "Unknown", k.String())
	}
	assert.Equal(t, "Unknown", RequestKind(999).String())
}
