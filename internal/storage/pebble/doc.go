// Package pebblestore wraps Pebble with the durability policy used by Strom.
//
// The wrapper pins down one decision for the whole process: when the WAL is
// fsynced. FsyncModeAlways trades latency for per-append durability and is
// the default for stream persisters; FsyncModeInterval enables group-commit
// for throughput-oriented deployments.
package pebblestore
