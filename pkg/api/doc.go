/*
Package api implements the VerseForge HTTP surface.

The router is chi with CORS, request-ID, recovery and observation
middleware. Handlers admit requests (validation, blocklist, rate limit,
idempotency), drive the generation pipeline, and serve the read paths
with conditional-GET support. Errors leave through a single envelope:

	{"error": {"code", "message", "requestId", "details?", "retryAfter?"}}

Admin routes sit behind a bearer token; /internal routes are only mounted
in development.
*/
package api
