package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeRequests struct {
	submitted  []application.Request
	submitErr  error
	batches    []*domain.Batch
	abortedBy  string
	abortAdmin bool
	cooldowns  map[string]domain.Cooldown
}

func (f *fakeRequests) Submit(_ context.Context, req application.Request) (*application.Handle, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return nil, fmt.Errorf("submit not scripted")
}

func (f *fakeRequests) Abort(_ context.Context, rawTarget, user string, admin bool) (*domain.Batch, error) {
	f.abortedBy = user
	f.abortAdmin = admin
	for _, batch := range f.batches {
		if batch.Target().ID != rawTarget {
			continue
		}
		if batch.RequestedBy() != user && !admin {
			return nil, fmt.Errorf("abort request for %s: %w", rawTarget, domain.ErrNotRequestOwner)
		}
		batch.Abort()
		return batch, nil
	}
	return nil, fmt.Errorf("abort request for %s: %w", rawTarget, domain.ErrBatchNotFound)
}

func (f *fakeRequests) Requests() []domain.BatchSnapshot {
	snapshots := make([]domain.BatchSnapshot, 0, len(f.batches))
	for _, batch := range f.batches {
		snapshots = append(snapshots, batch.Snapshot())
	}
	return snapshots
}

func (f *fakeRequests) Cooldown(_ context.Context, user string) (domain.Cooldown, error) {
	return f.cooldowns[user], nil
}

func (f *fakeRequests) ResetCooldown(_ context.Context, user string) (domain.Cooldown, error) {
	cooldown := domain.Cooldown{UserID: user, Until: testNow.Add(-time.Minute)}
	f.cooldowns[user] = cooldown
	return cooldown, nil
}

func newTestBatch(target, user string) *domain.Batch {
	return domain.NewBatch(domain.BatchParams{
		ID:          "batch-" + target,
		Target:      domain.Target{ID: target, Type: domain.TargetSharedfile, Public: true},
		Interaction: domain.Favorite{},
		Amount:      3,
		Accounts:    []domain.AccountID{"bot-0", "bot-1", "bot-2"},
		RequestedBy: user,
		Until:       testNow.Add(15 * time.Second),
		CreatedAt:   testNow,
	})
}

func newTestServer(requests *fakeRequests, admins ...string) http.Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fleet_units_total 1\n"))
	})
	return NewServer(requests, metrics, admins, zerolog.Nop()).Handler(context.Background())
}

func serve(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitMapsBodyToRequest(t *testing.T) {
	t.Parallel()

	requests := &fakeRequests{submitErr: domain.ErrUserOnCooldown}
	handler := newTestServer(requests)

	rec := serve(t, handler, http.MethodPost, "/v1/requests",
		`{"user":"alice","interaction":"vote","target":"sharedfile:42","amount":"all","direction":"DOWN","public":false}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Len(t, requests.submitted, 1)

	req := requests.submitted[0]
	assert.Equal(t, "alice", req.User)
	assert.Equal(t, "sharedfile:42", req.RawTarget)
	assert.True(t, req.Amount.All)
	assert.Equal(t, domain.Vote{Direction: domain.VoteDown}, req.Interaction)
	require.NotNil(t, req.Public)
	assert.False(t, *req.Public)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"user":`},
		{name: "unknown field", body: `{"user":"alice","color":"red"}`},
		{name: "missing user", body: `{"interaction":"favorite","target":"1","amount":"1"}`},
		{name: "unknown interaction", body: `{"user":"alice","interaction":"share","target":"1","amount":"1"}`},
		{name: "empty comment", body: `{"user":"alice","interaction":"comment","target":"1","amount":"1"}`},
		{name: "bad amount", body: `{"user":"alice","interaction":"favorite","target":"1","amount":"0"}`},
		{name: "bad type", body: `{"user":"alice","interaction":"favorite","target":"1","amount":"1","type":"planet"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			requests := &fakeRequests{}
			rec := serve(t, newTestServer(requests), http.MethodPost, "/v1/requests", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, requests.submitted)
		})
	}
}

func TestSubmitReportsWaitEstimate(t *testing.T) {
	t.Parallel()

	waitUntil := testNow.Add(2 * time.Minute)
	requests := &fakeRequests{submitErr: &application.SelectionError{
		Selection: application.Selection{MinAccounts: 3, WaitUntil: waitUntil},
		Err:       domain.ErrAccountsBusy,
	}}

	rec := serve(t, newTestServer(requests), http.MethodPost, "/v1/requests",
		`{"user":"alice","interaction":"favorite","target":"sharedfile:1","amount":"3"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var view errorView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.WaitUntil)
	assert.True(t, waitUntil.Equal(*view.WaitUntil))
	assert.Contains(t, view.Error, domain.ErrAccountsBusy.Error())
}

func TestListRequests(t *testing.T) {
	t.Parallel()

	requests := &fakeRequests{batches: []*domain.Batch{newTestBatch("file-1", "alice")}}
	rec := serve(t, newTestServer(requests), http.MethodGet, "/v1/requests", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var views []requestView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "file-1", views[0].Target)
	assert.Equal(t, "favorite/sharedfile", views[0].Kind)
	assert.Equal(t, "active", views[0].Status)
	assert.Equal(t, 3, views[0].Amount)
	assert.Equal(t, -1, views[0].CurrentIteration)
}

func TestAbortChecksOwnership(t *testing.T) {
	t.Parallel()

	requests := &fakeRequests{batches: []*domain.Batch{newTestBatch("file-1", "alice")}}
	handler := newTestServer(requests, "root")

	rec := serve(t, handler, http.MethodPost, "/v1/requests/abort", `{"user":"bob","target":"file-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, requests.abortAdmin)

	rec = serve(t, handler, http.MethodPost, "/v1/requests/abort", `{"user":"root","target":"file-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, requests.abortAdmin)

	var view requestView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "aborted", view.Status)

	rec = serve(t, handler, http.MethodPost, "/v1/requests/abort", `{"user":"alice","target":"file-9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCooldownEndpoints(t *testing.T) {
	t.Parallel()

	requests := &fakeRequests{cooldowns: map[string]domain.Cooldown{
		"alice": {UserID: "alice", Until: testNow.Add(time.Minute), Remaining: time.Minute},
	}}
	handler := newTestServer(requests)

	rec := serve(t, handler, http.MethodGet, "/v1/cooldowns/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view cooldownView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Active)
	assert.Equal(t, "1m0s", view.Remaining)

	rec = serve(t, handler, http.MethodDelete, "/v1/cooldowns/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Active)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	handler := newTestServer(&fakeRequests{})

	rec := serve(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fleet_units_total")
}
