// Package persistence defines the Persister contract backing Strom streams
// and its three implementations: Memory (growable vector), File (append-only
// JSON-lines journal, fsynced per append, replayed and invariant-checked on
// open), and Pebble (shared Pebble database, one stream per key prefix).
//
// A persister owns one stream's ordered entry sequence and head timestamp.
// Indexes are 0-based and dense; timestamps are strictly increasing; the
// head never regresses and never trails the last entry. All three
// implementations expose the same two-entry-point locking contract: plain
// methods acquire the publish mutex, Locked methods require it held.
package persistence
