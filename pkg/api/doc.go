/*
Package api implements the local control protocol.

The daemon listens on a unix socket with 0666 permissions. Each connection
carries exactly one request: a single JSON object with an "action" field and
action-specific parameters. The response is a single JSON object with a
"status" of "success" or "error", a human-readable "message", and any
payload fields. Connections are served by a fixed worker pool with a 30
second per-connection deadline; a one second accept poll lets the server
shut down cleanly.
*/
package api
