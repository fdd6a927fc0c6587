package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/commitguru/internal/logging"
)

// Options configures a Client
type Options struct {
	Token string
	// BaseURL overrides the API root, e.g. for GitHub Enterprise
	BaseURL string
	// RateLimit is the proactive request rate in requests per second; <= 0
	// disables pacing
	RateLimit float64
	// MaxRetries bounds the sleep-and-retry cycles on an exhausted quota
	MaxRetries int
	// ResetBuffer is added to the provider's reset time before retrying
	ResetBuffer time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      logrus.FieldLogger
}

// Client fetches issues of one repository with conditional requests and
// rate-limit backoff. Calls block, including the backoff sleep.
type Client struct {
	gh          *github.Client
	limiter     *rate.Limiter
	owner       string
	repo        string
	maxRetries  int
	resetBuffer time.Duration
	logger      logrus.FieldLogger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewClient creates an issue client for owner/repo
func NewClient(owner, repo string, opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	gh := github.NewClient(httpClient)
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", opts.BaseURL, err)
		}
		gh.BaseURL = u
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		gh:          gh,
		limiter:     rate.NewLimiter(limit, 1),
		owner:       owner,
		repo:        repo,
		maxRetries:  opts.MaxRetries,
		resetBuffer: opts.ResetBuffer,
		logger:      logger.WithFields(logrus.Fields{"component": "github", "repo": owner + "/" + repo}),
		sleep:       sleepContext,
		now:         time.Now,
	}, nil
}

// Repository returns the owner/name pair this client serves
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
