// Package client talks to the daemon's control socket on behalf of the CLI.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrDaemonNotRunning is returned when the control socket cannot be reached.
var ErrDaemonNotRunning = errors.New("daemon is not running")

const dialTimeout = 5 * time.Second

// Client issues one-shot requests against the control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// New creates a client for the given socket path.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// Call sends one action with its parameters and returns the decoded
// response envelope. An error-status response is returned as a Go error
// carrying the daemon's message.
func (c *Client) Call(action string, params map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w (socket %s)", ErrDaemonNotRunning, c.socketPath)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	request := make(map[string]any, len(params)+1)
	for k, v := range params {
		request[k] = v
	}
	request["action"] = action

	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp map[string]any
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if status, _ := resp["status"].(string); status != "success" {
		message, _ := resp["message"].(string)
		if message == "" {
			message = "unknown error"
		}
		return resp, errors.New(message)
	}
	return resp, nil
}
