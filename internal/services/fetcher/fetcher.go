package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"urlwarden/internal/domain"
)

const userAgent = "urlwarden/1.0"

// Config bounds a single fetch.
type Config struct {
	Timeout      time.Duration // total time budget per fetch
	MaxRedirects int
	MaxBodyBytes int64
}

// Fetcher retrieves target URLs over a shared pooled transport, following
// redirects manually so the full chain is available to the classifier.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 512 * 1024
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// redirects are followed manually in Fetch
			return http.ErrUseLastResponse
		},
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch retrieves rawURL. Malformed input fails fast with ErrMalformedURL
// before any network call. On timeout, redirect overflow, or a network
// failure the partial result is returned alongside the error with
// Failed/Error set, so the classifier can still produce an errored result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.FetchResult, error) {
	res := domain.FetchResult{URL: rawURL}

	start, err := url.Parse(rawURL)
	if err != nil || !start.IsAbs() || start.Host == "" || (start.Scheme != "http" && start.Scheme != "https") {
		return res, domain.ErrMalformedURL
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	began := time.Now()
	current := start
	seen := make(map[string]struct{})

	for hop := 0; hop <= f.cfg.MaxRedirects; hop++ {
		if _, looped := seen[current.String()]; looped {
			return f.fail(res, began, domain.ErrTooManyRedirects)
		}
		seen[current.String()] = struct{}{}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return f.fail(res, began, &domain.FetchError{URL: current.String(), Cause: err})
		}
		req.Header.Set("User-Agent", userAgent)

		hopStart := time.Now()
		resp, err := f.client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return f.fail(res, began, domain.ErrFetchTimeout)
			}
			return f.fail(res, began, &domain.FetchError{URL: current.String(), Cause: err})
		}

		res.Chain = append(res.Chain, domain.RedirectHop{
			Index:  hop,
			URL:    current.String(),
			Status: resp.StatusCode,
			TimeMs: time.Since(hopStart).Milliseconds(),
		})

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			if loc == "" {
				// a 3xx without Location terminates the chain
				res.FinalURL = current.String()
				res.Status = resp.StatusCode
				res.Header = resp.Header
				res.Elapsed = time.Since(began)
				return res, nil
			}
			next, err := url.Parse(loc)
			if err != nil {
				return f.fail(res, began, &domain.FetchError{URL: current.String(), Cause: err})
			}
			current = current.ResolveReference(next)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return f.fail(res, began, domain.ErrFetchTimeout)
			}
			return f.fail(res, began, &domain.FetchError{URL: current.String(), Cause: err})
		}
		res.FinalURL = current.String()
		res.Status = resp.StatusCode
		res.Header = resp.Header
		res.Body = body
		res.Elapsed = time.Since(began)
		return res, nil
	}

	return f.fail(res, began, domain.ErrTooManyRedirects)
}

func (f *Fetcher) fail(res domain.FetchResult, began time.Time, err error) (domain.FetchResult, error) {
	res.Failed = true
	res.Error = err.Error()
	res.Elapsed = time.Since(began)
	return res, err
}
