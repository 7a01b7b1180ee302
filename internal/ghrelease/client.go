package ghrelease

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/fetchbin/fetchbin/internal/ferrors"
)

// TokenSource returns an auth token for the archive-host API, or "" if
// none is configured. A typical source shells out to a credential helper
// and reads its stdout; see cmd/fetchbin for the default environment-
// variable-backed implementation.
type TokenSource func() string

// Client answers fast existence checks against the GitHub Releases API,
// falling back to the caller's raw-HEAD path once it has latched off.
type Client struct {
	hc     *http.Client
	tokens TokenSource

	disabled atomic.Bool // process-wide "stop calling the API" latch
	warnRateLimitOnce,
	warnUnauthorizedOnce sync.Once

	mu      sync.Mutex
	breaker *circuit.Breaker

	cacheMu sync.Mutex
	cache   map[AssetRef]assetResult
}

type assetResult struct {
	exists bool
	err    error
}

// NewClient constructs a Client. hc is the caller's shared HTTP client
// transport (e.g. built via internal/httpclient); tokens supplies bearer
// auth.
func NewClient(hc *http.Client, tokens TokenSource) *Client {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0

	return &Client{
		hc:     hc,
		tokens: tokens,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(5),
		}),
		cache: make(map[AssetRef]assetResult),
	}
}

// Disabled reports whether the client has latched off and every call
// should instead go through a raw HTTP HEAD.
func (c *Client) Disabled() bool {
	return c.disabled.Load()
}

// releaseAssets is the subset of the GitHub "get release by tag" response
// this client needs.
type releaseAssets struct {
	Assets []struct {
		Name string `json:"name"`
	} `json:"assets"`
}

// Exists answers whether ref's asset exists, using the cached result for
// (owner, repo, tag) if this invocation has already asked. It does not
// check Disabled() itself; callers check that first and fall back
// themselves.
func (c *Client) Exists(ctx context.Context, ref AssetRef) (bool, error) {
	c.cacheMu.Lock()
	if cached, ok := c.cache[ref]; ok {
		c.cacheMu.Unlock()
		return cached.exists, cached.err
	}
	c.cacheMu.Unlock()

	exists, err := c.fetchAndCheck(ctx, ref)

	c.cacheMu.Lock()
	c.cache[ref] = assetResult{exists: exists, err: err}
	c.cacheMu.Unlock()

	return exists, err
}

func (c *Client) fetchAndCheck(ctx context.Context, ref AssetRef) (bool, error) {
	if !c.breaker.Ready() {
		return false, ferrors.Wrap(ferrors.CategoryNetwork, ferrors.CodeHTTP,
			"archive-host API circuit open", fmt.Errorf("%s/%s", ref.Owner, ref.Repo))
	}

	var result releaseAssets
	var rateLimited, unauthorized bool

	err := c.breaker.Call(func() error {
		url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/tags/%s", ref.Owner, ref.Repo, ref.Tag)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if tok := c.tokens(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil // release missing: not a circuit failure, just "no assets"
		case resp.StatusCode == http.StatusForbidden && resp.Header.Get("x-ratelimit-remaining") == "0":
			rateLimited = true
			return fmt.Errorf("rate limited, resets at %s", resp.Header.Get("x-ratelimit-reset"))
		case resp.StatusCode == http.StatusUnauthorized:
			unauthorized = true
			return fmt.Errorf("unauthorized")
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&result)
	}, 0)

	if rateLimited {
		c.latchOff()
		c.warnRateLimitOnce.Do(func() {
			slog.Warn("archive-host API rate limited, falling back to raw HTTP HEAD for the rest of this process")
		})
		return false, err
	}
	if unauthorized {
		c.latchOff()
		c.warnUnauthorizedOnce.Do(func() {
			slog.Warn("archive-host API rejected credentials, falling back to raw HTTP HEAD for the rest of this process")
		})
		return false, err
	}
	if err != nil {
		return false, ferrors.Wrap(ferrors.CategoryNetwork, ferrors.CodeHTTP, "archive-host API request failed", err)
	}

	for _, a := range result.Assets {
		if a.Name == ref.Name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) latchOff() {
	c.disabled.Store(true)
}

var _ = strconv.Itoa // keep strconv import available for future status-code formatting without churn
