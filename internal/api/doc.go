// Package api defines the transport DTOs shared by the daemon's HTTP
// surface, the unix-socket IPC layer, and the CLI client, plus the
// converters that map queue records into them.
package api
