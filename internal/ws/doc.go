// Package ws pushes live render progress to browsers over WebSocket.
//
// The Hub accepts upgraded connections, performs the connection handshake
// (an immediate confirmation message the client waits for), and fans item
// updates out to subscribed sessions. Inbound messages are routed on their
// type field: process releases an uploaded item into the pipeline, subscribe
// registers interest in a token, and ping asks for a liveness reply on top
// of the protocol-level ping/pong frames the pumps already exchange.
package ws
