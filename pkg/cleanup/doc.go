/*
Package cleanup implements the weekly retention cycle.

A cycle identifies expired images (protected tags excluded), writes a
versioned backup manifest of every candidate row, and only then deletes
blob bytes and metadata rows. A failed backup aborts the cycle; per-image
delete failures are accumulated, not fatal. Old backups beyond their own
retention window are pruned at the end of the cycle.
*/
package cleanup
