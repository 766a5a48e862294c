// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer GraphLogger with contextual
// helpers (component, invocation) and domain specific logging helpers for
// tool and model calls.
package logging
