package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	r.Handle("ping", func(raw json.RawMessage) Response {
		return Success("pong", nil)
	})

	resp := r.Dispatch(json.RawMessage(`{"action":"ping"}`))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "pong", resp["message"])

	resp = r.Dispatch(json.RawMessage(`{"action":"nope"}`))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Unknown action", resp["message"])

	resp = r.Dispatch(json.RawMessage(`{}`))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Missing action", resp["message"])

	resp = r.Dispatch(json.RawMessage(`[1,2,3]`))
	assert.Equal(t, "error", resp["status"])
}

func TestEnvelopeHelpers(t *testing.T) {
	resp := Success("done", map[string]any{"count": 3})
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, 3, resp["count"])

	resp = Errorf("bad %s", "input")
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "bad input", resp["message"])
}
