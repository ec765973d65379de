// Package platform is a self-contained stand-in for the managed backend
// the synchronizer talks to: SQLite tables for profiles, reviews,
// comments and notifications, and a Broker that publishes every committed
// write as a change record.
//
// Source, CommentGateway and NotificationGateway adapt the store to the
// feedsync collaborator interfaces for in-process use. The server package
// exposes the same store over HTTP and websockets.
//
// Change records carry only the table's own columns. A comment insert
// therefore arrives without its author's profile, and subscribers must
// fetch the joined row to display it.
package platform
