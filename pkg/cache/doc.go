// Package cache provides a Redis-backed cache for Animals API responses.
//
// The ETL engine uses it to avoid re-fetching detail records that were already
// retrieved by a previous run within the configured TTL. The cache is optional:
// when no Redis address is configured the client goes straight to the API.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	cfg := client.DefaultConfig("http://localhost:3123")
//	cfg.Cache = manager
//
// Open builds the redis client from a URL and owns it until Close:
//
//	manager, err := cache.Open(ctx, "redis://localhost:6379/0", 5*time.Minute)
//
// # Keys
//
// Keys are deterministic and namespaced:
//
//	animal-etl:detail:42
//
// # Staleness
//
// With a cache configured the client is no longer stateless across runs: a
// run started within the TTL of an earlier one posts the cached detail records,
// even if the API has changed them since. Leave REDIS_URL empty, or use a TTL
// shorter than the interval between runs, when every run must see live data.
//
// # Failure Semantics
//
// A cache miss is reported as ErrCacheMiss. Any other error (Redis down,
// corrupted entry) is returned to the caller, which logs it and falls back to
// the API. Cache failures never fail a fetch.
//
// # Metrics
//
//   - animal_etl_cache_hits_total{layer="redis"}
//   - animal_etl_cache_misses_total
//   - animal_etl_cache_size_bytes{layer="redis"}
//   - animal_etl_cache_errors_total{operation}
package cache
