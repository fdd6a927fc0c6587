package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/models"
	"github.com/rohankatakam/commitguru/internal/observability"
)

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
	lowQuotaThreshold   = 100
)

// FetchError is a failed issue lookup. Status is 0 for transport failures.
type FetchError struct {
	Number  int
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fetch issue #%d: %s", e.Number, e.Message)
	}
	return fmt.Sprintf("fetch issue #%d: status %d: %s", e.Number, e.Status, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetch looks up one issue. When cached carries an ETag the request is
// conditional; a not-modified answer returns the cached data with a fresh
// FetchedAt. Issues the API reports as missing or gone come back as a
// tombstone with State "deleted". An exhausted quota is waited out and
// retried at most MaxRetries times. The cached value is never mutated.
func (c *Client) Fetch(ctx context.Context, number int, cached *models.CachedIssue) (*models.CachedIssue, error) {
	path := fmt.Sprintf("repos/%s/%s/issues/%d", url.PathEscape(c.owner), url.PathEscape(c.repo), number)
	log := c.logger.WithField("issue", number)

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Number: number, Message: "rate limiter: " + err.Error(), Err: err}
		}

		req, err := c.gh.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, &FetchError{Number: number, Message: err.Error(), Err: err}
		}
		if cached != nil && cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}

		issue := new(github.Issue)
		resp, err := c.gh.Do(ctx, req, issue)
		status := 0
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}
		c.logRateLimit(resp)

		switch {
		case status == http.StatusNotModified && cached != nil:
			observability.IssueFetches.WithLabelValues("not_modified").Inc()
			refreshed := *cached
			refreshed.FetchedAt = c.now()
			return &refreshed, nil

		case err == nil:
			observability.IssueFetches.WithLabelValues("ok").Inc()
			return c.fromAPI(number, issue, resp), nil

		case status == http.StatusNotFound || status == http.StatusGone:
			observability.IssueFetches.WithLabelValues("gone").Inc()
			log.WithField("status", status).Debug("issue gone, recording tombstone")
			return c.tombstone(number, cached), nil
		}

		reset, limited := rateLimitReset(err, resp, c.now())
		if !limited {
			observability.IssueFetches.WithLabelValues("error").Inc()
			cause := err
			if status == 0 {
				cause = apperrors.NetworkErrorf(err, "GET %s", path)
			}
			return nil, &FetchError{Number: number, Status: status, Message: errorMessage(err), Err: cause}
		}

		observability.IssueFetches.WithLabelValues("rate_limited").Inc()
		if attempt >= c.maxRetries {
			return nil, &FetchError{
				Number:  number,
				Status:  status,
				Message: fmt.Sprintf("rate limit still exhausted after %d retries", c.maxRetries),
				Err:     err,
			}
		}

		wait := reset.Sub(c.now()) + c.resetBuffer
		if wait < c.resetBuffer {
			wait = c.resetBuffer
		}
		log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("rate limit exhausted, sleeping until reset")
		observability.RateLimitSleep.Add(wait.Seconds())
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &FetchError{Number: number, Status: status, Message: "interrupted while waiting for rate limit reset", Err: err}
		}
	}
}

func (c *Client) fromAPI(number int, issue *github.Issue, resp *github.Response) *models.CachedIssue {
	fetched := &models.CachedIssue{
		ID:        issue.GetID(),
		Number:    issue.GetNumber(),
		State:     issue.GetState(),
		CreatedAt: timePtr(issue.CreatedAt),
		ClosedAt:  timePtr(issue.ClosedAt),
		FetchedAt: c.now(),
	}
	if fetched.Number == 0 {
		fetched.Number = number
	}
	if resp != nil {
		fetched.ETag = resp.Header.Get("ETag")
	}
	return fetched
}

func (c *Client) tombstone(number int, cached *models.CachedIssue) *models.CachedIssue {
	gone := &models.CachedIssue{Number: number}
	if cached != nil {
		*gone = *cached
	}
	gone.State = models.IssueStateDeleted
	gone.ETag = ""
	gone.FetchedAt = c.now()
	return gone
}

// rateLimitReset reports whether the failure was an exhausted quota and when
// the provider says it resets
func rateLimitReset(err error, resp *github.Response, now time.Time) (time.Time, bool) {
	var rle *github.RateLimitError
	if stderrors.As(err, &rle) {
		return rle.Rate.Reset.Time, true
	}
	var abuse *github.AbuseRateLimitError
	if stderrors.As(err, &abuse) {
		if abuse.RetryAfter != nil {
			return now.Add(*abuse.RetryAfter), true
		}
		return now, true
	}

	if resp == nil || resp.Response == nil {
		return time.Time{}, false
	}
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return time.Time{}, false
	}
	if resp.Header.Get(headerRateRemaining) == "0" {
		if secs, perr := strconv.ParseInt(resp.Header.Get(headerRateReset), 10, 64); perr == nil {
			return time.Unix(secs, 0), true
		}
		return now, true
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, perr := strconv.Atoi(resp.Header.Get(headerRetryAfter)); perr == nil {
			return now.Add(time.Duration(secs) * time.Second), true
		}
		return now, true
	}
	return time.Time{}, false
}

// logRateLimit warns when the remaining quota runs low
func (c *Client) logRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < lowQuotaThreshold {
		c.logger.WithFields(logrus.Fields{
			"remaining": resp.Rate.Remaining,
			"limit":     resp.Rate.Limit,
		}).Warn("GitHub rate limit low")
	}
}

func timePtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func errorMessage(err error) string {
	var ghErr *github.ErrorResponse
	if stderrors.As(err, &ghErr) && ghErr.Message != "" {
		return ghErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return "unexpected response"
}
