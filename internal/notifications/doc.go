// Package notifications pushes sync pass outcomes to ntfy.
//
// The topic comes from config.toml; without one the service is a no-op.
// Callers log delivery failures and carry on, a notification never decides
// the outcome of a pass.
package notifications
