// Package httpenvelope renders the structured error envelope of spec §6/§7:
// {error:{code, message, timestamp, requestId, context?, stack?}}. Component
// handlers and the generic HTTP wrapper share it so every error response —
// whether raised inside a component's endpoint or by the router's own
// not-found handler — has the same shape.
package httpenvelope

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

// production gates whether Error includes a stack trace (§6: "stack only
// when not in production mode"). SetProduction is called once at startup
// from the NODE_ENV-equivalent config key.
var production = false

// SetProduction toggles the production flag read by Error.
func SetProduction(v bool) { production = v }

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"requestId"`
	Context   map[string]any `json:"context,omitempty"`
	Stack     string         `json:"stack,omitempty"`
}

type envelope struct {
	ErrorBody errorBody `json:"error"`
}

// RequestID resolves the x-request-id header, falling back to a generated
// UUID (§4.6).
func RequestID(r *http.Request) string {
	if id := r.Header.Get("x-request-id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// Error writes err as the structured envelope, classifying it per §7's
// Kind -> HTTP status table.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := twinerr.Status(err)
	body := errorBody{
		Code:      string(twinerr.KindOf(err)),
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: RequestID(r),
	}
	if body.Code == "" {
		body.Code = "internal"
	}
	var kinded *twinerr.Error
	if e, ok := err.(*twinerr.Error); ok {
		kinded = e
	}
	if kinded != nil && len(kinded.Context) > 0 {
		body.Context = kinded.Context
	}
	if !production {
		body.Stack = string(debug.Stack())
	}
	WriteJSON(w, status, envelope{ErrorBody: body})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// CallerID extracts the authenticated caller id from ctx for log context
// (§4.6d: "user id from headers").
func CallerID(r *http.Request) string {
	if u, ok := httpctx.UserFromContext(r.Context()); ok {
		return u.ExternalID
	}
	return ""
}
