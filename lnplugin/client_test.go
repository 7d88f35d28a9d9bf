package lnplugin

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeHost answers every request on a unix socket with the result of reply.
func fakeHost(t *testing.T, reply func(*Request) *Response) (string, func()) {
	t.Helper()

	dir, err := ioutil.TempDir("", "lnplugin")
	if err != nil {
		t.Fatalf("unable to create temp dir: %v", err)
	}
	path := filepath.Join(dir, "rpc")
	l, err := net.Listen("unix", path)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("unable to listen: %v", err)
	}

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()

				var req Request
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				resp := reply(&req)
				if resp == nil {
					// Hang until the client gives up.
					time.Sleep(testTimeout)
					return
				}
				resp.JSONRPC = jsonRPCVersion
				resp.ID = req.ID
				json.NewEncoder(conn).Encode(resp)
			}(conn)
		}
	}()

	return path, func() {
		l.Close()
		os.RemoveAll(dir)
	}
}

func TestClientCall(t *testing.T) {
	path, cleanup := fakeHost(t, func(req *Request) *Response {
		switch req.Method {
		case "getinfo":
			return &Response{Result: json.RawMessage(`{"blockheight":451}`)}

		case "datastore":
			return &Response{Error: &RPCError{
				Code:    1202,
				Message: "Key already exists",
			}}

		default:
			return nil
		}
	})
	defer cleanup()

	client := NewClient(path, "test")

	var info struct {
		BlockHeight uint32 `json:"blockheight"`
	}
	if err := client.Call(context.Background(), "getinfo", nil, &info); err != nil {
		t.Fatalf("unable to call getinfo: %v", err)
	}
	if info.BlockHeight != 451 {
		t.Fatalf("unexpected height %d", info.BlockHeight)
	}

	err := client.Call(context.Background(), "datastore", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != 1202 {
		t.Fatalf("expected rpc error 1202, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		50*time.Millisecond)
	defer cancel()
	err = client.Call(ctx, "hang", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientNoSocket(t *testing.T) {
	client := NewClient("/nonexistent/lightning-rpc", "test")
	err := client.Call(context.Background(), "getinfo", nil, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
