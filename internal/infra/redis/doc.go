// Package redis provides the Redis integration for the service.
//
// # Overview
//
// This package provides three components:
//   - Client: Connection management with TLS, pooling, and retry logic
//   - ConfigCache: Shared cache for configuration distribution across replicas
//   - RemediationPublisher: Pub/sub fan-out of remediation events
//
// Redis is optional. With REDIS_ENABLED=false the service runs without the
// shared config cache (each replica falls back to its in-memory copy and the
// database) and without remediation publication.
//
// # Quick Start
//
// Initialize the Redis client:
//
//	client, err := redis.New(&cfg.Redis, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Configuration Cache
//
// ConfigCache implements vulnconfig.CacheStore. A miss returns (nil, nil);
// the provider falls through to the database and repopulates:
//
//	cache, err := redis.NewConfigCache(client)
//	provider := vulnconfig.NewCachedProvider(repo, cache, ttl, logger)
//
// # Remediation Events
//
// When an import commits and CVEs disappeared from an asset's set, one event
// per asset is published on the vulntrack:remediations channel:
//
//	{"hostname": "web01.example.com", "cves": ["CVE-2024-0001"], "remediated_at": 1719830400}
//
// Publication is best-effort; the import has already committed when events
// go out, and consumers must tolerate missed events (the stored state is
// authoritative).
//
// # Production Configuration
//
// Required settings for production:
//
//	REDIS_HOST=redis.internal
//	REDIS_PORT=6379
//	REDIS_PASSWORD=<strong-password>
//	REDIS_TLS_ENABLED=true
//	REDIS_TLS_SKIP_VERIFY=false
//
// # Health Checks
//
// Use the Ping method for readiness probes:
//
//	if err := client.Ping(ctx); err != nil {
//		// report redis unavailable
//	}
//
// # Thread Safety
//
// All components are safe for concurrent use. The underlying go-redis client
// manages connection pooling automatically.
package redis
