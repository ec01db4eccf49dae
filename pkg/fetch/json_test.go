package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "buildsite/pkg/errors"
	"buildsite/pkg/logger"
)

type sample struct {
	A int `json:"a"`
}

func TestFetchJSONDecodesBody(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{status: 200, body: `{"a":1}`}}}
	client, _, _ := newTestClient(t, doer)

	got, err := FetchJSON[sample](context.Background(), client, client.NewRequest(http.MethodGet, "/sample"))
	require.NoError(t, err)
	assert.Equal(t, sample{A: 1}, got)
	assert.Equal(t, "application/json", doer.requests[0].Header.Get("Accept"))
}

func TestFetchJSONInvalidBodyIsParseFailure(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{status: 200, body: `{"a":`}}}
	client, _, log := newTestClient(t, doer)

	got, err := FetchJSON[sample](context.Background(), client, client.NewRequest(http.MethodGet, "/sample"))
	require.Error(t, err)
	assert.Equal(t, sample{}, got)

	classified, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindParseFailure, classified.Kind)
	assert.Equal(t, http.StatusOK, classified.Status)
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestFetchJSONErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error string", 500, `{"error":"boom"}`, "boom"},
		{"message field", 400, `{"message":"bad slug"}`, "bad slug"},
		{"message wins over error", 409, `{"message":"first","error":"second"}`, "first"},
		{"nested error object", 422, `{"error":{"message":"email taken"}}`, "email taken"},
		{"not json", 502, `<html>bad gateway</html>`, "Bad Gateway"},
		{"empty body", 404, ``, "Not Found"},
		{"unrelated json", 403, `{"detail":"nope"}`, "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &scriptedDoer{steps: []step{{status: tt.status, body: tt.body}}}
			client, _, _ := newTestClient(t, doer)

			spec := client.NewRequest(http.MethodGet, "/sample")
			spec.MaxRetries = NoRetries

			_, err := FetchJSON[sample](context.Background(), client, spec)
			require.Error(t, err)

			classified, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, errs.KindHTTPStatus, classified.Kind)
			assert.Equal(t, tt.status, classified.Status)
			assert.Equal(t, tt.message, classified.Message)
		})
	}
}

func TestFetchJSONEmptyBodies(t *testing.T) {
	for _, s := range []step{{status: 204}, {status: 200, body: "  \n"}} {
		doer := &scriptedDoer{steps: []step{s}}
		client, _, _ := newTestClient(t, doer)

		got, err := FetchJSON[*sample](context.Background(), client, client.NewRequest(http.MethodDelete, "/sample"))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestFetchJSONPropagatesClassifiedTimeout(t *testing.T) {
	client, _, _ := newTestClient(t, &hangingDoer{})

	spec := client.NewRequest(http.MethodGet, "/sample")
	spec.Timeout = 10 * time.Millisecond
	spec.MaxRetries = NoRetries

	_, err := FetchJSON[sample](context.Background(), client, spec)
	assert.True(t, errs.IsKind(err, errs.KindTimeout))
}

func TestDoJSONSetsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"a":7}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL}, logger.NewNopLogger())

	body, err := JSONBody(sample{A: 7})
	require.NoError(t, err)

	spec := client.NewRequest(http.MethodPost, "/sample")
	spec.Body = body
	spec.MaxRetries = NoRetries

	var got sample
	require.NoError(t, client.DoJSON(context.Background(), spec, &got))
	assert.Equal(t, 7, got.A)
}

func TestJSONBodyError(t *testing.T) {
	_, err := JSONBody(make(chan int))
	assert.Error(t, err)
}

func TestPreviewTruncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, preview(long), maxPreviewLength+3)
	assert.Equal(t, "short", preview([]byte("short")))
}
