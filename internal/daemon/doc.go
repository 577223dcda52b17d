// Package daemon hosts the long-running filmstrip process: it enforces
// single-instance execution with a lock file, runs the workflow manager,
// serves the browser app and HTTP API, fans out progress over the
// WebSocket hub, and optionally ingests files dropped into an inbox
// directory.
package daemon
