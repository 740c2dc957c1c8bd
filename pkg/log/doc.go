// Package log wraps zerolog behind a small global facade. The daemon logs
// JSON to stdout and, when configured, tees the same stream into a rotating
// file. Components obtain child loggers via WithComponent.
package log
