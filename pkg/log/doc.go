/*
Package log provides structured logging for garage built on zerolog.

Call Init once at startup, then derive component loggers:

	logger := log.WithComponent("ingest")
	logger.Info().Str("key", key).Msg("Object stored")

Console output is the default; pass JSONOutput for machine-readable logs.
*/
package log
