/*
Package log provides structured logging for Burrow using zerolog.

A single global Logger is configured once by Init from the server command.
Components derive child loggers with WithComponent, WithNodeID or WithPodID so
every line carries the fields needed to follow a node or pod through its
lifecycle:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Str("pod_id", id).Msg("Pod scheduled")

Until Init runs the global logger discards output, which keeps package tests
quiet. Child loggers capture the global logger at creation time, so components
must be constructed after Init.
*/
package log
