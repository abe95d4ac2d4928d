/*
Package metastore is the authoritative relational store for VerseForge
metadata: the images, verses, moderation_queue and usage_metrics tables.

The store wraps sqlx over the pgx stdlib driver. Schema lives in embedded
goose migrations applied by Migrate (the `verseforge migrate` command).
Every call carries a five-second deadline nested under the request-scoped
context; row absence maps to resource_not_found and every other database
failure to database_query_failed.

Image tags are persisted as a JSON text column and converted at the row
boundary, keeping pkg/types free of database concerns.
*/
package metastore
