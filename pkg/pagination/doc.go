// Package pagination walks the Animals API listing endpoint and collects every
// animal ID.
//
// Pages are numbered from 1. The first response that decodes declares
// total_pages; the walk continues while the current page is within it. A page
// that still fails after the client's own retries is skipped and the walk moves
// on, so one bad page never aborts extraction.
//
// Example usage:
//
//	p := pagination.NewPaginator(apiClient, pagination.DefaultConfig(), logger)
//	ids, err := p.CollectIDs(ctx)
//
// Only failure to learn the listing at all is fatal and reported as an
// ExtractionError: a malformed first response, too many consecutive failures
// before total_pages is known, or a cancelled context.
package pagination
