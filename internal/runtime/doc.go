// Package runtime wires configuration, logging, storage, and the
// named-stream registry for a single Strom server process.
package runtime
