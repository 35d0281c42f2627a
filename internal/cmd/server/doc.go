// Package serverrun hosts the strom server run loop used by the CLI.
package serverrun
