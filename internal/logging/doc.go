// Package logging provides centralized zerolog-based structured logging for syncwave.
//
// It implements a single global logger using zerolog: zero-allocation
// structured JSON logging for production and human-readable console output
// for development.
//
// # Quick Start
//
//	import "github.com/syncwave/syncwave/internal/logging"
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("lobby_id", id).Msg("lobby created")
//
// # Configuration
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//
// Caller file:line annotation is set only through Config.Caller; no
// environment variable controls it.
//
// # Context-aware logging
//
//	logging.Ctx(ctx).Info().Msg("processing queue:add")
//
// Always terminate a chain with .Msg() or .Send(); a chain left dangling
// never emits.
package logging
