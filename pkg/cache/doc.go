/*
Package cache provides the namespaced TTL cache backing VerseForge reads.

Values are JSON-encoded into Redis under four namespaces:

	metadata:<imageId>      image metadata          TTL 1h
	verse:<normalised ref>  resolved verse          TTL 1h
	daily-verse:current     today's image ID        TTL 24h
	config:<key>            operational config      TTL 1w

The cache is strictly a derived view. GetMetadata is cache-through: misses
fall back to the metadata store and hydrate the cache; the store remains
authoritative. Cache failures are never user-visible: every operation
carries a one-second deadline and degrades to the authoritative path with a
warning log.

Verse keys are normalised (trim + lowercase) so that casing and padding in
client-supplied references are transparent.
*/
package cache
