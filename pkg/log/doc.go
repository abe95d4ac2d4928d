/*
Package log provides structured logging for VerseForge using zerolog.

The package wraps zerolog behind a global logger initialised once at
bootstrap via Init. Components obtain child loggers carrying stable context
fields:

	apiLog := log.WithComponent("api")
	apiLog.Info().Str("request_id", reqID).Dur("duration", d).Msg("generate completed")

Every request-scoped record carries request_id so client logs can be joined
to server logs. The configured level (debug/info/warn/error) suppresses
records below the threshold; JSON output is used in production and the
console writer in development.
*/
package log
