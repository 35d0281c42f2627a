// Package httpserver serves Strom streams over HTTP: the per-stream pub/sub
// protocol, a raw publish endpoint, health, and Prometheus metrics.
package httpserver
