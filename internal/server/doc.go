// Package server implements the HTTP and WebSocket front end of GoNotify.
//
// The implementation is split into files for routing, middleware, handlers,
// the notification socket and its per-connection Client, and server
// lifecycle. Connection bookkeeping itself lives in package notify; this
// package only adapts gorilla/websocket connections to notify.Channel.
package server
