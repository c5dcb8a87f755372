// Package fetch is the client for the external content-fetch service, which
// renders a search URL and returns the page as HTML and markdown.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/model"
)

// ReaderFetcher calls the fetch service's reader endpoint:
// GET {service_url}?url=<target>. The service answers with a JSON body of
// {"html": ..., "markdown": ...}.
type ReaderFetcher struct {
	client     *resty.Client
	serviceURL string
	logger     *slog.Logger
}

// NewReaderFetcher builds a fetcher against cfg.ServiceURL.
func NewReaderFetcher(cfg config.FetchConfig, logger *slog.Logger) *ReaderFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gleaner/1.0")
	return &ReaderFetcher{
		client:     client,
		serviceURL: cfg.ServiceURL,
		logger:     logger,
	}
}

// Fetch retrieves rendered content for url. Non-2xx responses come back as
// *model.HTTPError carrying the status and any Retry-After so the retry
// layer can decide what to do. An empty body is not an error; it means the
// search produced nothing.
func (f *ReaderFetcher) Fetch(ctx context.Context, url string) (model.FetchResult, error) {
	var result model.FetchResult

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("url", url).
		SetResult(&result).
		Get(f.serviceURL)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}

	if resp.IsError() {
		return model.FetchResult{}, &model.HTTPError{
			StatusCode: resp.StatusCode(),
			URL:        url,
			RetryAfter: retryAfter(resp.Header().Get("Retry-After")),
		}
	}

	f.logger.Debug("fetched page",
		"url", url,
		"status", resp.StatusCode(),
		"html_bytes", len(result.HTML),
		"markdown_bytes", len(result.Markdown),
	)
	return result, nil
}

// retryAfter parses a Retry-After header given in seconds. HTTP-date form is
// rare from the fetch service and is ignored.
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
