package control

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConnectionFailed is returned when the peer socket cannot be
	// reached, typically because the peer is not running.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrCommandFailed wraps a peer-reported failure.
	ErrCommandFailed = errors.New("command failed")
)

// Client issues control requests over a Unix socket, one connection per
// call.
type Client struct {
	socketPath string
	timeout    time.Duration
	dial       func(ctx context.Context, path string) (net.Conn, error)
}

// NewClient creates a Client for the given socket with a per-call
// timeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
		dial: func(ctx context.Context, path string) (net.Conn, error) {
			var d net.Dialer

			return d.DialContext(ctx, "unix", path)
		},
	}
}

// Call sends req and decodes the peer's response. A peer failure is
// surfaced as ErrCommandFailed carrying the peer's message.
func (c *Client) Call(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, c.socketPath)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "dialing %s", c.socketPath)
		}

		return nil, errors.Wrapf(ErrConnectionFailed, "dialing %s: %v", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, c.wireErr(err, "failed to send request")
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, c.wireErr(err, "failed to read response")
	}

	if !resp.Success {
		return &resp, errors.Wrapf(ErrCommandFailed, "%s: %s", req.Command, resp.Error)
	}

	return &resp, nil
}

// CallData issues a request and unmarshals the data document into out.
// A nil out discards the data.
func (c *Client) CallData(ctx context.Context, req *Request, out any) error {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Data, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s data", req.Command)
	}

	return nil
}

// Ping reports whether the peer answers on its socket.
func (c *Client) Ping(ctx context.Context) bool {
	conn, err := c.dial(ctx, c.socketPath)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

func (c *Client) wireErr(err error, msg string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(ErrTimeout, "%s", msg)
	}

	return errors.Wrap(err, msg)
}
