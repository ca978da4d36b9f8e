// Package control exposes the request service of a long running fleet
// process over HTTP, so requests can be listed and aborted from outside.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 16

// Requests is the part of application.RequestService the server drives.
type Requests interface {
	Submit(ctx context.Context, req application.Request) (*application.Handle, error)
	Abort(ctx context.Context, rawTarget, user string, admin bool) (*domain.Batch, error)
	Requests() []domain.BatchSnapshot
	Cooldown(ctx context.Context, user string) (domain.Cooldown, error)
	ResetCooldown(ctx context.Context, user string) (domain.Cooldown, error)
}

type Server struct {
	requests Requests
	metrics  http.Handler
	admins   map[string]struct{}
	log      zerolog.Logger
}

func NewServer(requests Requests, metrics http.Handler, adminUsers []string, log zerolog.Logger) *Server {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, user := range adminUsers {
		admins[strings.TrimSpace(user)] = struct{}{}
	}

	return &Server{requests: requests, metrics: metrics, admins: admins, log: log}
}

// Handler routes the control API. Batches submitted through it live as long
// as lifetime, not as long as the HTTP request.
func (s *Server) Handler(lifetime context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /v1/requests", func(w http.ResponseWriter, r *http.Request) {
		s.submit(lifetime, w, r)
	})
	mux.HandleFunc("GET /v1/requests", s.list)
	mux.HandleFunc("POST /v1/requests/abort", s.abort)
	mux.HandleFunc("GET /v1/cooldowns/{user}", s.cooldown)
	mux.HandleFunc("DELETE /v1/cooldowns/{user}", s.resetCooldown)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

type submitRequest struct {
	User        string   `json:"user"`
	Interaction string   `json:"interaction"`
	Target      string   `json:"target"`
	Type        string   `json:"type,omitempty"`
	Amount      string   `json:"amount"`
	Texts       []string `json:"texts,omitempty"`
	Direction   string   `json:"direction,omitempty"`
	Remove      bool     `json:"remove,omitempty"`
	Public      *bool    `json:"public,omitempty"`
}

func (r submitRequest) toRequest() (application.Request, error) {
	if strings.TrimSpace(r.User) == "" {
		return application.Request{}, errMissingUser
	}

	family, err := domain.ParseFamily(r.Interaction)
	if err != nil {
		return application.Request{}, err
	}
	interaction, err := domain.NewInteraction(family, domain.InteractionArgs{
		Texts:     r.Texts,
		Direction: domain.VoteDirection(strings.ToLower(r.Direction)),
		Remove:    r.Remove,
	})
	if err != nil {
		return application.Request{}, err
	}

	amount, err := application.ParseAmount(r.Amount)
	if err != nil {
		return application.Request{}, err
	}

	var expected domain.TargetType
	if r.Type != "" {
		if expected, err = domain.ParseTargetType(r.Type); err != nil {
			return application.Request{}, err
		}
	}

	return application.Request{
		User:         r.User,
		RawTarget:    r.Target,
		ExpectedType: expected,
		Interaction:  interaction,
		Amount:       amount,
		Public:       r.Public,
	}, nil
}

type abortRequest struct {
	User   string `json:"user"`
	Target string `json:"target"`
}

var errMissingUser = errors.New("user is required")

func (s *Server) submit(lifetime context.Context, w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	req, err := body.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}

	handle, err := s.requests.Submit(lifetime, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, newRequestView(handle.Batch().Snapshot()))
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.requests.Requests()
	views := make([]requestView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		views = append(views, newRequestView(snapshot))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	var body abortRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(body.User) == "" {
		s.writeError(w, errMissingUser)
		return
	}

	_, admin := s.admins[body.User]
	batch, err := s.requests.Abort(r.Context(), body.Target, body.User, admin)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().Str("batch_id", batch.ID()).Str("target", batch.Target().ID).Str("user", body.User).Msg("request aborted")
	writeJSON(w, http.StatusOK, newRequestView(batch.Snapshot()))
}

func (s *Server) cooldown(w http.ResponseWriter, r *http.Request) {
	cooldown, err := s.requests.Cooldown(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCooldownView(cooldown))
}

func (s *Server) resetCooldown(w http.ResponseWriter, r *http.Request) {
	cooldown, err := s.requests.ResetCooldown(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCooldownView(cooldown))
}

type requestView struct {
	ID               string    `json:"id"`
	Target           string    `json:"target"`
	TargetType       string    `json:"target_type"`
	Kind             string    `json:"kind"`
	User             string    `json:"user"`
	Status           string    `json:"status"`
	Requested        int       `json:"requested"`
	Amount           int       `json:"amount"`
	CurrentIteration int       `json:"current_iteration"`
	RetryAttempt     int       `json:"retry_attempt"`
	Failures         int       `json:"failures"`
	Until            time.Time `json:"until"`
}

func newRequestView(snapshot domain.BatchSnapshot) requestView {
	return requestView{
		ID:               snapshot.ID,
		Target:           snapshot.Target.ID,
		TargetType:       string(snapshot.Target.Type),
		Kind:             snapshot.Kind.String(),
		User:             snapshot.RequestedBy,
		Status:           string(snapshot.Status),
		Requested:        snapshot.Requested,
		Amount:           snapshot.Amount,
		CurrentIteration: snapshot.CurrentIteration,
		RetryAttempt:     snapshot.RetryAttempt,
		Failures:         len(snapshot.Failures),
		Until:            snapshot.Until,
	}
}

type cooldownView struct {
	User      string    `json:"user"`
	Until     time.Time `json:"until"`
	Remaining string    `json:"remaining"`
	Active    bool      `json:"active"`
}

func newCooldownView(cooldown domain.Cooldown) cooldownView {
	return cooldownView{
		User:      cooldown.UserID,
		Until:     cooldown.Until,
		Remaining: cooldown.Remaining.String(),
		Active:    cooldown.Active(),
	}
}

type errorView struct {
	Error     string     `json:"error"`
	WaitUntil *time.Time `json:"wait_until,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingUser),
		errors.Is(err, errBadBody),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTarget),
		errors.Is(err, domain.ErrInvalidInteraction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotRequestOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTargetBusy), errors.Is(err, domain.ErrAccountsBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUserOnCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNoEligibleAccounts),
		errors.Is(err, domain.ErrInsufficientAccounts),
		errors.Is(err, domain.ErrPrerequisiteMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("control request failed")
	}

	view := errorView{Error: err.Error()}
	var selectionErr *application.SelectionError
	if errors.As(err, &selectionErr) && !selectionErr.Selection.WaitUntil.IsZero() {
		waitUntil := selectionErr.Selection.WaitUntil
		view.WaitUntil = &waitUntil
	}
	writeJSON(w, status, view)
}

var errBadBody = errors.New("malformed request body")

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
