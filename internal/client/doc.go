// Package client implements the daemon-facing side of the progress
// protocol: a reconnecting WebSocket connection with handshake
// confirmation, liveness pings, capped exponential backoff, and an
// attempt limit, plus the multipart upload coordinator the CLI uses to
// submit images and follow their renders.
package client
