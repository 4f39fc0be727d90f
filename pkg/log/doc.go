/*
Package log provides structured logging for blockmesh using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

blockmesh's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("transactor")               │          │
	│  │  - WithPeerID("peer-abc123")                 │          │
	│  │  - WithBlockID("block-xyz")                  │          │
	│  │  - WithTrxID("trx-def456")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "repo",                     │          │
	│  │    "time": "2026-01-13T10:30:00Z",         │          │
	│  │    "message": "block committed"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF block committed component=repo │      │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all blockmesh packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithPeerID: Add coordinating peer ID context
  - WithBlockID: Add block ID context
  - WithTrxID: Add transaction ID context

# Usage

Initializing the Logger:

	import "github.com/cuemby/blockmesh/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("repo started")
	log.Debug("checking peer liveness")
	log.Warn("recovery sweep needed after tail commit")
	log.Error("failed to reach coordinator")
	log.Fatal("cannot open fsrepo store") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("trx_id", "trx-123").
		Int("blocks", 3).
		Msg("commit accepted")

	log.Logger.Error().
		Err(err).
		Str("peer_id", "peer-abc").
		Msg("pend rejected by coordinator")

Component Loggers:

	repoLog := log.WithComponent("repo")
	repoLog.Info().Msg("starting repo")
	repoLog.Debug().Str("trx_id", "trx-123").Msg("pending transform staged")

	// Multiple context fields
	txLog := log.WithComponent("transactor").
		With().Str("peer_id", "peer-abc").
		Str("trx_id", "trx-123").Logger()
	txLog.Info().Msg("commit dispatched")
	txLog.Error().Err(err).Msg("commit failed")

Context Logger Helpers:

	peerLog := log.WithPeerID("peer-abc123")
	peerLog.Info().Msg("peer registered in directory")

	blockLog := log.WithBlockID("block-xyz789")
	blockLog.Info().Msg("block materialized")

	trxLog := log.WithTrxID("trx-def456")
	trxLog.Info().Msg("transaction committed")

# Integration Points

This package integrates with:

  - pkg/repo: Logs failed commit persistence
  - pkg/transactor: Logs failed cancels and commits needing a recovery sweep
  - pkg/rpc: Logs RPC server lifecycle
  - cmd/blockmeshd: Passes the global Logger to repo, rpc and keynet

pkg/keynet accepts a Logger in its Config but does not log through it;
pkg/fsrepo does not log.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, API keys
  - Review logs before sharing externally

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
