package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/models"
)

const issueJSON = `{
	"id": 9001,
	"number": 42,
	"state": "closed",
	"created_at": "2023-01-02T03:04:05Z",
	"closed_at": "2023-01-05T00:00:00Z"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("owner", "repo", Options{
		BaseURL:     srv.URL,
		MaxRetries:  maxRetries,
		ResetBuffer: 2 * time.Second,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestFetchFreshIssue(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues/42", r.URL.Path)
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, issueJSON)
	}, 3)

	issue, err := c.Fetch(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), issue.ID)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "closed", issue.State)
	assert.Equal(t, `"abc"`, issue.ETag)
	require.NotNil(t, issue.CreatedAt)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), *issue.CreatedAt)
	require.NotNil(t, issue.ClosedAt)
	assert.False(t, issue.Deleted())
}

func TestFetchNotModifiedKeepsCachedData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"abc"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}, 3)
	fetchedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fetchedAt }

	created := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	cached := &models.CachedIssue{
		ID:        9001,
		Number:    42,
		State:     "open",
		CreatedAt: &created,
		ETag:      `"abc"`,
		FetchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	issue, err := c.Fetch(context.Background(), 42, cached)
	require.NoError(t, err)
	assert.Equal(t, "open", issue.State)
	assert.Equal(t, `"abc"`, issue.ETag)
	assert.Equal(t, &created, issue.CreatedAt)
	assert.Equal(t, fetchedAt, issue.FetchedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cached.FetchedAt, "cached value untouched")
}

func TestFetchGoneBecomesTombstone(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				fmt.Fprint(w, `{"message":"Not Found"}`)
			}, 3)

			cached := &models.CachedIssue{ID: 7, Number: 5, State: "open", ETag: `"x"`}
			issue, err := c.Fetch(context.Background(), 5, cached)
			require.NoError(t, err)
			assert.True(t, issue.Deleted())
			assert.Equal(t, int64(7), issue.ID, "tombstone keeps the record")
			assert.Equal(t, 5, issue.Number)

			issue, err = c.Fetch(context.Background(), 6, nil)
			require.NoError(t, err)
			assert.Equal(t, models.IssueStateDeleted, issue.State)
			assert.Equal(t, 6, issue.Number)
		})
	}
}

func TestFetchRateLimitRetryBound(t *testing.T) {
	var hits int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	}, 3)

	_, err := c.Fetch(context.Background(), 1, nil)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.Status)
	assert.Len(t, *sleeps, 3)
	for _, d := range *sleeps {
		assert.GreaterOrEqual(t, d, 2*time.Second)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(1))
}

func TestFetchRecoversAfterReset(t *testing.T) {
	var hits int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message":"slow down"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, issueJSON)
	}, 3)

	issue, err := c.Fetch(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, "closed", issue.State)
	assert.Len(t, *sleeps, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchServerErrorIsNotRetried(t *testing.T) {
	var hits int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	}, 3)

	_, err := c.Fetch(context.Background(), 1, nil)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Equal(t, "boom", fe.Message)
	assert.NotEqual(t, apperrors.ErrorTypeNetwork, apperrors.GetType(err))
	assert.Empty(t, *sleeps)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient("owner", "repo", Options{BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), 1, nil)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, fe.Status)
	assert.Equal(t, apperrors.ErrorTypeNetwork, apperrors.GetType(err))
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("o", "r", Options{BaseURL: "://nope"})
	assert.Error(t, err)
}
