package cache

import (
	"strconv"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "animal-etl"

// ResourceDetail is the resource kind of a detail record.
const ResourceDetail = "detail"

// CacheKey identifies one cached API response.
type CacheKey struct {
	// Resource is the resource kind (e.g., "detail")
	Resource string

	// ID is the resource identifier
	ID int64
}

// DetailKey returns the key for one animal's detail record.
func DetailKey(id int64) CacheKey {
	return CacheKey{Resource: ResourceDetail, ID: id}
}

// String generates a deterministic cache key string.
// Format: animal-etl:resource:id
//
// Example:
//
//	animal-etl:detail:42
func (k CacheKey) String() string {
	return strings.Join([]string{
		KeyPrefix,
		strings.Trim(k.Resource, ":"),
		strconv.FormatInt(k.ID, 10),
	}, ":")
}
