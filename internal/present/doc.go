// Package present maps reconciled feed items to view models.
//
// Views are plain values ready to print or serialize. Timestamps are
// rendered relative to a caller-supplied instant so output is stable under
// a fake clock.
package present
