// Package wire defines the JSON shapes exchanged between the platform,
// the HTTP/websocket server and remote clients, and converts them to feed
// types.
//
// Rows returned by the REST endpoints carry joined profile fields. Change
// records on the realtime stream carry only the table's own columns, so a
// comment insert seen on the stream lacks its author's name and avatar.
package wire
