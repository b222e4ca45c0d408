package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	waitForSocketReady(t, socketPath)
	return server, socketPath
}

func waitForSocketReady(t *testing.T, socketPath string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("socket never became ready")
}

func dialTest(t *testing.T, socketPath string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readResponse(t *testing.T, reader *bufio.Reader) response {
	t.Helper()
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("parse response %q: %v", line, err)
	}
	return resp
}

func TestServerStartStop(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		t.Fatal("socket file was not created")
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permissions = %o, want 0600", perm)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatal("socket file was not removed on stop")
	}
}

func TestServerRequestResponse(t *testing.T) {
	server, socketPath := startTestServer(t)

	server.RegisterHandler("echo", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		var in map[string]string
		_ = json.Unmarshal(params, &in)
		return map[string]string{"echo": in["msg"]}, nil
	})

	conn, reader := dialTest(t, socketPath)
	fmt.Fprintf(conn, `{"id":"42","method":"echo","params":{"msg":"hi"}}`+"\n")

	resp := readResponse(t, reader)
	if resp.ID != "42" {
		t.Errorf("response ID = %q, want 42", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result map[string]string
	_ = json.Unmarshal(resp.Result, &result)
	if result["echo"] != "hi" {
		t.Errorf("result = %v", result)
	}
}

func TestServerFramingAcrossChunks(t *testing.T) {
	// One message split across writes, then two messages in a single write.
	// The server must parse exactly three requests.
	server, socketPath := startTestServer(t)
	server.RegisterHandler("ping", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return map[string]bool{"ok": true}, nil
	})

	conn, reader := dialTest(t, socketPath)

	part1 := `{"id":"a","method":"pi`
	part2 := `ng","params":{}}` + "\n"
	if _, err := conn.Write([]byte(part1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // force separate reads on the server side
	if _, err := conn.Write([]byte(part2)); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := readResponse(t, reader)
	if resp.ID != "a" || resp.Error != nil {
		t.Fatalf("split-message response: %+v", resp)
	}

	double := `{"id":"b","method":"ping","params":{}}` + "\n" + `{"id":"c","method":"ping","params":{}}` + "\n"
	if _, err := conn.Write([]byte(double)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		resp := readResponse(t, reader)
		got[resp.ID] = resp.Error == nil
	}
	if !got["b"] || !got["c"] {
		t.Errorf("coalesced-write responses: %v", got)
	}
}

func TestServerParseError(t *testing.T) {
	_, socketPath := startTestServer(t)
	conn, reader := dialTest(t, socketPath)

	fmt.Fprintf(conn, "this is not json\n")

	resp := readResponse(t, reader)
	if resp.ID != "unknown" {
		t.Errorf("parse-error response ID = %q, want unknown", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("error = %+v, want code PARSE_ERROR", resp.Error)
	}
}

func TestServerMethodNotFound(t *testing.T) {
	_, socketPath := startTestServer(t)
	conn, reader := dialTest(t, socketPath)

	fmt.Fprintf(conn, `{"id":"7","method":"no.such.method","params":{}}`+"\n")

	resp := readResponse(t, reader)
	if resp.ID != "7" {
		t.Errorf("response ID = %q, want 7 (original id preserved)", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v, want code METHOD_NOT_FOUND", resp.Error)
	}
}

func TestServerHandlerError(t *testing.T) {
	server, socketPath := startTestServer(t)
	server.RegisterHandler("boom", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return nil, fmt.Errorf("something broke")
	})
	server.RegisterHandler("coded", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return nil, NewError(CodeTimeout, "no answer in time")
	})

	conn, reader := dialTest(t, socketPath)

	fmt.Fprintf(conn, `{"id":"e1","method":"boom"}`+"\n")
	resp := readResponse(t, reader)
	if resp.Error == nil || resp.Error.Code != CodeHandlerError || resp.Error.Message != "something broke" {
		t.Errorf("handler error = %+v", resp.Error)
	}

	fmt.Fprintf(conn, `{"id":"e2","method":"coded"}`+"\n")
	resp = readResponse(t, reader)
	if resp.Error == nil || resp.Error.Code != CodeTimeout {
		t.Errorf("coded error = %+v", resp.Error)
	}
}

func TestServerSlowHandlerDoesNotBlockConnection(t *testing.T) {
	server, socketPath := startTestServer(t)

	release := make(chan struct{})
	server.RegisterHandler("slow", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		<-release
		return map[string]string{"done": "slow"}, nil
	})
	server.RegisterHandler("fast", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return map[string]string{"done": "fast"}, nil
	})

	conn, reader := dialTest(t, socketPath)

	fmt.Fprintf(conn, `{"id":"s","method":"slow"}`+"\n")
	fmt.Fprintf(conn, `{"id":"f","method":"fast"}`+"\n")

	// The fast response arrives while slow is still blocked
	resp := readResponse(t, reader)
	if resp.ID != "f" {
		t.Fatalf("first response ID = %q, want f", resp.ID)
	}

	close(release)
	resp = readResponse(t, reader)
	if resp.ID != "s" {
		t.Errorf("second response ID = %q, want s", resp.ID)
	}
}

func TestServerCorrelationAcrossClients(t *testing.T) {
	server, socketPath := startTestServer(t)
	server.RegisterHandler("whoami", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return map[string]string{"client": clientID}, nil
	})

	connA, readerA := dialTest(t, socketPath)
	connB, readerB := dialTest(t, socketPath)

	fmt.Fprintf(connA, `{"id":"a-req","method":"whoami"}`+"\n")
	fmt.Fprintf(connB, `{"id":"b-req","method":"whoami"}`+"\n")

	respA := readResponse(t, readerA)
	respB := readResponse(t, readerB)

	if respA.ID != "a-req" || respB.ID != "b-req" {
		t.Errorf("correlation IDs: %q, %q", respA.ID, respB.ID)
	}

	var a, b map[string]string
	_ = json.Unmarshal(respA.Result, &a)
	_ = json.Unmarshal(respB.Result, &b)
	if a["client"] == b["client"] {
		t.Error("distinct connections received the same client ID")
	}
}

func TestServerDisconnectHook(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath)

	disconnected := make(chan string, 1)
	server.SetDisconnectHook(func(clientID string) {
		disconnected <- clientID
	})
	server.RegisterHandler("whoami", func(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
		return map[string]string{"client": clientID}, nil
	})

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = server.Stop() }()
	waitForSocketReady(t, socketPath)

	conn, reader := dialTest(t, socketPath)
	fmt.Fprintf(conn, `{"id":"1","method":"whoami"}`+"\n")
	resp := readResponse(t, reader)
	var result map[string]string
	_ = json.Unmarshal(resp.Result, &result)

	_ = conn.Close()

	select {
	case id := <-disconnected:
		if id != result["client"] {
			t.Errorf("disconnect hook got %q, want %q", id, result["client"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect hook never fired")
	}
}

func TestServerStaleSocketRemoval(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	// Simulate a crashed daemon's leftover socket file
	if err := os.WriteFile(socketPath, []byte{}, 0600); err != nil {
		t.Fatalf("create stale socket: %v", err)
	}

	server := NewServer(socketPath)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start over stale socket: %v", err)
	}
	_ = server.Stop()
}

func TestServerRefusesActiveSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	first := NewServer(socketPath)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer func() { _ = first.Stop() }()
	waitForSocketReady(t, socketPath)

	second := NewServer(socketPath)
	if err := second.Start(context.Background()); err == nil {
		_ = second.Stop()
		t.Fatal("second server bound a socket that is actively in use")
	}
}
