package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, key string) (string, error) {
	value, ok := s[key]
	if !ok {
		return "", domain.ErrSecretNotFound
	}
	return value, nil
}

func (s staticSecrets) Put(context.Context, string, string) error { return nil }
func (s staticSecrets) Delete(context.Context, string) error      { return nil }

var (
	testAccount = domain.Account{
		ID:         "bot-1",
		ProxyIndex: 2,
		Auth:       domain.Auth{Method: domain.AuthMethodToken, SecretRef: "botfleet://bot-1/token"},
	}
	testTarget = domain.Target{ID: "123", Type: domain.TargetSharedfile, Public: true}
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &Client{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		UserAgent:  "botfleet-test",
		Secrets:    staticSecrets{"botfleet://bot-1/token": "secret-token\n"},
	}
}

func TestInteractionsSendAccountCredentials(t *testing.T) {
	t.Parallel()

	var got interactionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/interactions", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.Header.Get("X-Proxy-Index"))
		assert.Equal(t, "botfleet-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Favorite(context.Background(), testAccount, testTarget, true))
	assert.Equal(t, interactionRequest{
		Account:    "bot-1",
		Family:     "favorite",
		TargetID:   "123",
		TargetType: "sharedfile",
		Remove:     true,
	}, got)
}

func TestCommentAndVoteBodies(t *testing.T) {
	t.Parallel()

	var bodies []interactionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body interactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.Comment(context.Background(), testAccount, testTarget, "nice work"))
	require.NoError(t, client.Vote(context.Background(), testAccount, testTarget, domain.VoteUp))

	require.Len(t, bodies, 2)
	assert.Equal(t, "nice work", bodies[0].Text)
	assert.Equal(t, "comment", bodies[0].Family)
	assert.Equal(t, string(domain.VoteUp), bodies[1].Direction)
}

func TestAPIErrorsCarryStatusAndMessage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
	})

	err := client.Follow(context.Background(), testAccount, domain.Target{ID: "9", Type: domain.TargetCurator}, false)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode())
	assert.Equal(t, "platform: status 429: rate_limited: too many requests", apiErr.Error())
}

func TestAPIErrorWithoutJSONBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	err := client.Favorite(context.Background(), testAccount, testTarget, false)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "platform: status 502", apiErr.Error())
}

func TestMissingCredentialsFailBeforeRequest(t *testing.T) {
	t.Parallel()

	called := false
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })

	account := testAccount
	account.Auth.SecretRef = ""

	err := client.Favorite(context.Background(), account, testTarget, false)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.False(t, called)
}

func TestRequestTimesOutWithoutCallerDeadline(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})
	client.RequestTimeout = 10 * time.Millisecond

	err := client.Favorite(context.Background(), testAccount, testTarget, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelated(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/bot-1/relationships/group/grp-7", r.URL.Path)
		_, _ = w.Write([]byte(`{"related":true}`))
	})

	related, err := client.Related(context.Background(), testAccount, domain.Target{ID: "grp-7", Type: domain.TargetGroup})
	require.NoError(t, err)
	assert.True(t, related)
}

func TestBuildAPIURLRejectsBadBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "ftp://example.com", "http://"} {
		_, err := buildAPIURL(base, "/v1/resolve")
		assert.Error(t, err, base)
	}
}
