// Package log implements structured, leveled logging for Strom.
//
// Components receive a Logger by injection and attach context with fields:
//
//	logger := log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormatter(&log.JSONFormatter{}))
//	logger = logger.WithComponent("stream")
//	logger.Info("entry published", log.Uint64("index", idx), log.Int64("us", int64(ts)))
//
// Standard-library log output (e.g. from Pebble) can be routed through a
// Logger with RedirectStdLog.
package log
