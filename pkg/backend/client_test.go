package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "buildsite/pkg/errors"
	"buildsite/pkg/fetch"
	"buildsite/pkg/logger"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fc := fetch.NewClient(fetch.Options{
		BaseURL:    server.URL + "/api",
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
	}, logger.NewNopLogger())
	return NewClient(fc, logger.NewNopLogger())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListProducts(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, 200, map[string]any{"data": []Product{
			{ID: "1", Slug: "cement", Name: "Cement"},
			{ID: "2", Slug: "rebar", Name: "Rebar"},
		}})
	})

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "rebar", products[1].Slug)
}

func TestReadsAreRetried(t *testing.T) {
	var hits atomic.Int32
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, 200, map[string]any{"data": ContactInfo{Phone: "+62 21 555", Email: "sales@example.com"}})
	})

	info, err := client.GetContactInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+62 21 555", info.Phone)
	assert.Equal(t, int32(3), hits.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
	})

	_, err := client.UpdateContactInfo(context.Background(), "tok", &ContactInfo{Phone: "1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	classified, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, classified.Status)
	assert.Equal(t, "maintenance", classified.Message)
}

func TestLogin(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "correct" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, 200, map[string]any{"data": Session{Token: "abc", User: User{Username: creds["username"]}}})
	})

	session, err := client.Login(context.Background(), "admin", "correct")
	require.NoError(t, err)
	assert.Equal(t, "abc", session.Token)
	assert.Equal(t, "admin", session.User.Username)

	_, err = client.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, errs.IsKind(err, errs.KindHTTPStatus))
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestAdminCallsSendBearerToken(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/other-pages/about-us", r.URL.Path)

		var page OtherPage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&page))
		page.Slug = "about-us"
		writeJSON(w, 200, map[string]any{"data": page})
	})

	updated, err := client.UpdateOtherPage(context.Background(), "secret", "about-us", &OtherPage{Title: "About", Content: "Since 1998"})
	require.NoError(t, err)
	assert.Equal(t, "about-us", updated.Slug)
	assert.Equal(t, "About", updated.Title)
}

func TestChangePassword(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"current_password":"old","new_password":"newer"}`, string(body))
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.ChangePassword(context.Background(), "tok", "old", "newer"))

	err := client.ChangePassword(context.Background(), "other", "old", "newer")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetPostNotFound(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/missing%20post", r.URL.EscapedPath())
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
	})

	post, err := client.GetPost(context.Background(), "missing post")
	assert.Nil(t, post)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, errs.StatusOf(err))
}

func TestEnvelopeErrorOnSuccessStatus(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"error": "database offline"})
	})

	_, err := client.GetInfrastructure(context.Background())
	require.Error(t, err)
	classified, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, classified.Status)
	assert.Equal(t, "database offline", classified.Message)
}

func TestMalformedBodyIsParseFailure(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	})

	_, err := client.ListPosts(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindParseFailure))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOtherPagesRoundTrip(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/other-pages":
			writeJSON(w, 200, map[string]any{"data": []OtherPage{{Slug: "faq", Title: "FAQ"}}})
		case "/api/other-pages/faq":
			writeJSON(w, 200, map[string]any{"data": OtherPage{Slug: "faq", Title: "FAQ", Content: "..."}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	pages, err := client.ListOtherPages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)

	page, err := client.GetOtherPage(context.Background(), "faq")
	require.NoError(t, err)
	assert.Equal(t, "...", page.Content)
}
