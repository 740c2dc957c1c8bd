package api

import (
	"encoding/json"
	"fmt"
)

// Response is the wire envelope for every control reply.
type Response map[string]any

// HandlerFunc processes one decoded request body.
type HandlerFunc func(raw json.RawMessage) Response

// Router maps action names onto handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers a handler for an action name.
func (r *Router) Handle(action string, h HandlerFunc) {
	r.handlers[action] = h
}

// Dispatch decodes the action field and invokes the matching handler.
func (r *Router) Dispatch(raw json.RawMessage) Response {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Error("Invalid request: not a JSON object")
	}
	if envelope.Action == "" {
		return Error("Missing action")
	}
	h, ok := r.handlers[envelope.Action]
	if !ok {
		return Error("Unknown action")
	}
	return h(raw)
}

// Success builds a success envelope with optional payload fields.
func Success(message string, payload map[string]any) Response {
	resp := Response{"status": "success", "message": message}
	for k, v := range payload {
		resp[k] = v
	}
	return resp
}

// Error builds an error envelope.
func Error(message string) Response {
	return Response{"status": "error", "message": message}
}

// Errorf builds a formatted error envelope.
func Errorf(format string, args ...any) Response {
	return Error(fmt.Sprintf(format, args...))
}
