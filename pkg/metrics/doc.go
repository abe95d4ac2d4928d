/*
Package metrics exposes Prometheus collectors for the VerseForge service.

Collectors are package-level variables registered in init, following the
convention of one counter/histogram family per concern: API requests,
generation outcomes, model latency, cache hit rates, rate-limit decisions,
and cleanup activity. Handler returns the promhttp handler mounted at
/metrics by the API server.
*/
package metrics
