// Package client talks to a feedsync server over the network.
//
// Client wraps the REST routes. CommentGateway and NotificationGateway
// adapt it to feedsync.Gateway, and Source adapts the realtime websocket
// to feedsync.EventSource, so sessions can run against a remote platform
// exactly as they do in process.
package client
