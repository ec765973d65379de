// Package config loads feedsync settings from a CUE file.
//
// The file is unified with an embedded schema that supplies every default,
// so an empty or missing file yields a complete configuration. Durations
// are written as Go duration strings ("30s", "1m").
package config
