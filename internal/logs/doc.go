// Package logs provides log viewing helpers shared by the CLI and daemon.
//
// Tail reads the daemon log file with bounded memory, supporting negative
// offsets for "last N lines" and a follow mode that waits briefly for new
// output. StreamClient fetches structured events from the daemon's /api/logs
// endpoint when the HTTP API is reachable, which gives the CLI richer
// filtering than raw file tailing.
package logs
