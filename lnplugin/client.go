package lnplugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client calls methods on the host's unix socket RPC interface. A fresh
// connection is used for every call, so a Client is safe for concurrent use.
type Client struct {
	path   string
	prefix string
	dialer net.Dialer
}

// NewClient returns a client for the RPC socket at path. The prefix is
// added to every request id so the host log attributes calls to their
// origin.
func NewClient(path, prefix string) *Client {
	return &Client{
		path:   path,
		prefix: prefix,
	}
}

// Path returns the socket path the client dials.
func (c *Client) Path() string {
	return c.path
}

// Call invokes method with params and decodes the result into result, which
// may be nil. Errors reported by the host are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params,
	result interface{}) error {

	if params == nil {
		params = struct{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("unable to encode %s params: %w", method, err)
	}
	rawID, err := json.Marshal(fmt.Sprintf("%s:%s#%s", c.prefix, method,
		uuid.New()))
	if err != nil {
		return err
	}

	conn, err := c.dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", c.path, err)
	}
	defer conn.Close()

	// Unblock reads and writes once the context is done.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	req := &Request{
		JSONRPC: jsonRPCVersion,
		ID:      rawID,
		Method:  method,
		Params:  rawParams,
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("unable to send %s request: %w", method, err)
	}

	log.Tracef("Sent %s request %s", method, rawID)

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("unable to read %s response: %w", method, err)
	}
	if !bytes.Equal(resp.ID, rawID) {
		return fmt.Errorf("response id %s does not match request id %s",
			resp.ID, rawID)
	}
	if resp.Error != nil {
		return resp.Error
	}

	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("unable to decode %s result: %w", method, err)
	}
	return nil
}
