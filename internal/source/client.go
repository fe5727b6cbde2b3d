package source

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// bundle is the slice of a FHIR search Bundle this client reads.
type bundle struct {
	ResourceType string        `json:"resourceType"`
	Total        int           `json:"total"`
	Entry        []bundleEntry `json:"entry"`
}

type bundleEntry struct {
	Resource fhir.Resource `json:"resource"`
}

// RestClient reads records from a FHIR REST endpoint using offset paging
// (_count and _getpagesoffset search parameters).
type RestClient struct {
	http    *resty.Client
	baseURL string
	log     zerolog.Logger
}

// NewRestClient builds a client for the given FHIR base URL.
func NewRestClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *RestClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/fhir+json")

	return &RestClient{
		http:    httpClient,
		baseURL: baseURL,
		log:     logger.With().Str("component", "source_client").Logger(),
	}
}

// FetchPage runs a paged type search and decodes the returned Bundle.
func (c *RestClient) FetchPage(ctx context.Context, resourceType string, offset, count int) (*Page, error) {
	var b bundle
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"_count":          fmt.Sprintf("%d", count),
			"_getpagesoffset": fmt.Sprintf("%d", offset),
		}).
		SetResult(&b).
		Get("/" + resourceType)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page at offset %d: %w", resourceType, offset, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s page at offset %d: source returned %s", resourceType, offset, resp.Status())
	}

	page := &Page{Total: b.Total, Resources: make([]fhir.Resource, 0, len(b.Entry))}
	for _, entry := range b.Entry {
		if entry.Resource != nil {
			page.Resources = append(page.Resources, entry.Resource)
		}
	}

	c.log.Debug().
		Str("resource_type", resourceType).
		Int("offset", offset).
		Int("fetched", len(page.Resources)).
		Msg("fetched source page")
	return page, nil
}

// Count asks the server for the total via a _summary=count search.
func (c *RestClient) Count(ctx context.Context, resourceType string) (int, error) {
	var b bundle
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("_summary", "count").
		SetResult(&b).
		Get("/" + resourceType)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", resourceType, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("count %s: source returned %s", resourceType, resp.Status())
	}
	return b.Total, nil
}
