/*
Package imagestore owns the durable image write and read paths.

SaveImage writes blob bytes first, then the metadata row, then hydrates
the cache best-effort, so a row never exists without its blob. Reads go
through the cache when one is attached. ImageURL renders the public URL
for a stored image, HMAC-signed when a signing secret is configured.
*/
package imagestore
