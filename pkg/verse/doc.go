/*
Package verse resolves verse references and drives the daily rotation.

Lookup order is the compiled-in verse set, then the cache, then the
metadata store. The daily pick advances least-recently-used rotation
counters and falls back to a random embedded verse when the store is
unreachable.
*/
package verse
