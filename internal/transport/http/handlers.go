package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relay/internal/dispatch/bus"
	"relay/internal/dispatch/message"
	"relay/internal/platform/middleware"
	"relay/pkg/correlation"
)

// dispatchRequest is the JSON body accepted by both dispatch endpoints.
type dispatchRequest struct {
	// Metadata are the message fields, e.g. {"owner": "alice"}.
	Metadata map[string]string `json:"metadata"`
	// CorrelationID ties this request into an existing chain. Defaults to the
	// request id.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Cacheable opts a query into result caching.
	Cacheable bool `json:"cacheable,omitempty"`
	// TTLSeconds overrides the cache TTL for this query.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

type dispatchResponse struct {
	Result any `json:"result"`
}

type failureResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Violations []string `json:"violations,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	cmd := message.NewCommand(name, h.messageOptions(r, req)...)
	result, err := h.commands.Dispatch(r.Context(), cmd)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Result: result})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	q := message.NewQuery(name, h.messageOptions(r, req)...)
	if req.Cacheable {
		q = q.AsCacheable(time.Duration(req.TTLSeconds) * time.Second)
	}

	result, err := h.queries.Dispatch(r.Context(), q)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Result: result})
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (dispatchRequest, bool) {
	var req dispatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.WarnContext(r.Context(), "invalid dispatch request body",
				"request_id", middleware.GetRequestID(r.Context()),
				"error", err,
			)
			writeJSON(w, http.StatusBadRequest, failureResponse{
				Error:   "bad_request",
				Message: "invalid request body",
			})
			return dispatchRequest{}, false
		}
	}
	return req, true
}

// messageOptions assembles envelope options from the request: metadata,
// correlation id (falling back to the request id) and the authenticated
// principal installed by the auth middleware.
func (h *Handler) messageOptions(r *http.Request, req dispatchRequest) []message.Option {
	corrID := req.CorrelationID
	if corrID == "" {
		corrID = middleware.GetRequestID(r.Context())
	}

	opts := []message.Option{
		message.WithMetadata(req.Metadata),
		message.WithCorrelationID(corrID),
	}
	if initiator := correlation.Initiator(r.Context()); !initiator.IsZero() {
		opts = append(opts, message.WithInitiator(initiator))
	}
	return opts
}

// statusFor maps the failure taxonomy onto HTTP status codes. 499 follows the
// nginx convention for client-abandoned requests.
func statusFor(kind bus.FailureKind) int {
	switch kind {
	case bus.KindHandlerNotFound:
		return http.StatusNotFound
	case bus.KindAuthorizationDenied:
		return http.StatusForbidden
	case bus.KindValidationFailed:
		return http.StatusBadRequest
	case bus.KindHandlerError:
		return http.StatusUnprocessableEntity
	case bus.KindTimeout:
		return http.StatusGatewayTimeout
	case bus.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	f := bus.AsFailure(err)
	if f == nil {
		h.logger.ErrorContext(r.Context(), "dispatch returned untyped error",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, failureResponse{Error: "internal_error"})
		return
	}

	resp := failureResponse{
		Error:      string(f.Kind),
		Message:    f.Message,
		Violations: f.Violations,
		MessageID:  f.MessageID.String(),
	}
	// Internal detail stays in the logs, not on the wire.
	if f.Kind == bus.KindInternalError {
		resp.Message = "internal error"
	}
	writeJSON(w, statusFor(f.Kind), resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		// Connection-level write errors are the caller's problem.
		_ = err
	}
}
