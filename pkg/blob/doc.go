/*
Package blob stores opaque byte objects keyed by path.

Store is the capability interface the rest of the service depends on; the
S3 implementation targets any S3-compatible endpoint (AWS S3, Cloudflare
R2, MinIO) and the Memory implementation backs development mode and tests.

Key layout:

	images/YYYY/MM/{imageId}.{format}   generated images
	backups/d1-{backupId}.json          pre-cleanup metadata snapshots
*/
package blob
