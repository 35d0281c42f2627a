// Package clientcmd hosts the client-side CLI commands that talk to a
// running strom server over its HTTP API.
package clientcmd
