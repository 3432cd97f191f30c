// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a plain *zap.Logger tagged with their name via
// Component, and default to a no-op logger when none is given. Script console
// output is logged at info with the isolate id attached.
//
// Example Usage:
//
//	logger, err := logging.New(logging.FromLevel("debug", true))
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
//	logger.Component("sandbox").Info("Sandbox connected")
package logging
