// Package intake implements the subscription endpoint: it validates the
// submitted email, captures request metadata and appends one record per call.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"comingsoon/internal/metrics"
	"comingsoon/internal/model"
)

// Response messages.
const (
	MsgSubscribed   = "Successfully subscribed!"
	MsgInvalidEmail = "Valid email is required"
	MsgFailed       = "Failed to subscribe"
)

const maxBodyBytes = 64 << 10

// ValidationError means the submission itself is wrong and the user can fix it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError means the record could not be stored.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist subscriber: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the write side of the subscriber store.
type Store interface {
	AppendSubscriber(ctx context.Context, rec model.SubscriberRecord) (string, error)
}

// ChangeNotifier is told after a record has been stored.
type ChangeNotifier interface {
	SubscribersChanged(ctx context.Context)
}

// Recorder counts subscription outcomes.
type Recorder interface {
	Subscription(result string)
}

type nopRecorder struct{}

func (nopRecorder) Subscription(string) {}

// Handler serves POST /subscribe.
type Handler struct {
	store     Store
	log       *slog.Logger
	notifiers []ChangeNotifier
	rec       Recorder
	trustPeer bool
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotifier adds a notifier called after every stored record.
func WithNotifier(n ChangeNotifier) Option {
	return func(h *Handler) { h.notifiers = append(h.notifiers, n) }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.rec = r }
}

// WithPeerAddress makes the transport peer address the last resort for the client IP.
func WithPeerAddress(trust bool) Option {
	return func(h *Handler) { h.trustPeer = trust }
}

// NewHandler creates a Handler writing to store.
func NewHandler(store Store, log *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		store: store,
		log:   log,
		rec:   nopRecorder{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ValidateEmail trims email and checks that it is present and contains "@".
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "missing"}
	}
	if !strings.Contains(email, "@") {
		return "", &ValidationError{Field: "email", Reason: "missing @"}
	}
	return email, nil
}

// Subscribe validates email and appends one record with the given metadata.
// The capture time is always taken from the server clock.
func (h *Handler) Subscribe(ctx context.Context, email string, meta Metadata) (string, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return "", err
	}

	rec := model.SubscriberRecord{
		Email:      email,
		CapturedAt: h.now().UTC(),
		Network:    meta.Network,
		Request:    meta.Request,
		EdgeMeta:   meta.EdgeMeta,
		Source:     model.SourceComingSoon,
	}
	id, err := h.store.AppendSubscriber(ctx, rec)
	if err != nil {
		return "", &PersistenceError{Err: err}
	}

	for _, n := range h.notifiers {
		n.SubscribersChanged(ctx)
	}
	return id, nil
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type subscribeResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// ServeHTTP handles one subscription request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.log.Info("reject subscription", "reason", "undecodable body", "error", err)
		h.rec.Subscription(metrics.ResultInvalid)
		writeJSON(w, http.StatusBadRequest, subscribeResponse{Error: MsgInvalidEmail})
		return
	}

	meta := ExtractMetadata(r, h.trustPeer)
	id, err := h.Subscribe(r.Context(), req.Email, meta)

	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case err == nil:
		h.log.Info("subscribed", "email", req.Email, "id", id, "ip", meta.Network.IP, "country", meta.Network.Country)
		h.rec.Subscription(metrics.ResultOK)
		writeJSON(w, http.StatusOK, subscribeResponse{Message: MsgSubscribed, Success: true})
	case errors.As(err, &verr):
		h.log.Info("reject subscription", "email", req.Email, "reason", verr.Reason)
		h.rec.Subscription(metrics.ResultInvalid)
		writeJSON(w, http.StatusBadRequest, subscribeResponse{Error: MsgInvalidEmail})
	case errors.As(err, &perr):
		h.log.Error("store subscriber", "email", req.Email, "error", perr.Err)
		h.rec.Subscription(metrics.ResultError)
		writeJSON(w, http.StatusInternalServerError, subscribeResponse{Error: MsgFailed})
	default:
		h.log.Error("subscribe", "email", req.Email, "error", err)
		h.rec.Subscription(metrics.ResultError)
		writeJSON(w, http.StatusInternalServerError, subscribeResponse{Error: MsgFailed})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
