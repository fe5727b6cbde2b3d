// Package source talks to the remote FHIR server that holds the records
// under validation. The orchestrator only needs paged reads and per-type
// counts; writes never happen here.
package source

import (
	"context"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// Page is one chunk of a paged type search.
type Page struct {
	// Resources holds the decoded entries of this page.
	Resources []fhir.Resource
	// Total is the server-reported total for the whole search, when known.
	// Zero-valued totals on later pages are normal; callers should trust
	// the count obtained at type start.
	Total int
}

// Client fetches records from the source server.
type Client interface {
	// FetchPage returns up to count resources of the given type starting
	// at offset.
	FetchPage(ctx context.Context, resourceType string, offset, count int) (*Page, error)
	// Count returns the number of resources the server holds for a type.
	Count(ctx context.Context, resourceType string) (int, error)
}
