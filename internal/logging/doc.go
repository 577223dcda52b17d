// Package logging wires log/slog with the handlers the daemon needs: a
// console handler for interactive output, a JSON handler for machine
// consumption, and a stream handler that mirrors every record into an
// in-memory hub so API clients can tail logs without touching files.
package logging
