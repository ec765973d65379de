// Package server exposes the platform over HTTP.
//
// REST routes serve snapshots, details and writes for both feeds. The
// /realtime route upgrades to a websocket and streams the change records of
// one topic as JSON text frames until either side goes away. Prometheus
// metrics are served from /metrics on a private registry.
package server
