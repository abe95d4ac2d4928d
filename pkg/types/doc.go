/*
Package types defines the core data structures and the error taxonomy shared
by all VerseForge components.

The package is dependency-free by design: every other package imports types,
so types imports nothing outside the standard library.

# Entities

  - Verse: immutable reference material plus daily-rotation bookkeeping
  - Image: a generated artefact and its metadata row
  - ModerationQueueEntry: a flag awaiting human review
  - RateBucket / RateDecision: per-identity rate limiting state
  - DailyMetric: per-date usage aggregate
  - BackupManifest: the pre-deletion snapshot written by cleanup

# Errors

Error is a single tagged variant carrying a Code from the fixed taxonomy
(invalid_request_format ... internal_server_error). Codes survive wrapping
with %w and are recovered with CodeOf; HTTPStatus maps a code to the status
the API layer responds with.

	if err := store.InsertImage(ctx, img); err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "insert image %s", img.ID)
	}
*/
package types
