// Package notifications delivers job lifecycle events to an ntfy topic,
// falling back to a noop implementation when none is configured.
package notifications
