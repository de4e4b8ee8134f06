package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jlode "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/aggregator"
	"github.com/pithecene-io/teeline/cli/reader"
	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/lode"
	"github.com/pithecene-io/teeline/policy"
	"github.com/pithecene-io/teeline/types"
)

// runApp runs the CLI in-process and returns stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp("test")
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"teeline"}, args...))
	return out.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestVersion_JSON(t *testing.T) {
	out, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if resp.Version != types.Version || resp.Commit != "test" {
		t.Errorf("unexpected version: %+v", resp)
	}
}

func TestVersion_TUIRejected(t *testing.T) {
	_, err := runApp(t, "version", "--tui")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func writeSegment(t *testing.T, payloads ...string) (string, []byte) {
	t.Helper()
	frames := make([][]byte, len(payloads))
	for i, p := range payloads {
		frames[i] = ipc.EncodeFrame([]byte(p))
	}
	body := ipc.Concat(frames)
	path := filepath.Join(t.TempDir(), "batch.ssef")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	return path, body
}

func TestDump_LocalFile(t *testing.T) {
	path, body := writeSegment(t, "data: a\n\n", "data: b\n\n")

	out, err := runApp(t, "dump", "--format", "json", path)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	var views []reader.SegmentView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(views) != 1 || views[0].Bytes != len(body) || len(views[0].Frames) != 2 {
		t.Fatalf("unexpected views: %+v", views)
	}
	if views[0].Frames[1].Preview != "data: b\n\n" {
		t.Errorf("preview = %q", views[0].Frames[1].Preview)
	}
}

func TestDump_Raw(t *testing.T) {
	path, _ := writeSegment(t, "he", "llo")

	out, err := runApp(t, "dump", "--raw", path)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if out != "hello" {
		t.Errorf("raw output = %q, want %q", out, "hello")
	}
}

func TestDump_Table(t *testing.T) {
	path, _ := writeSegment(t, "x")

	out, err := runApp(t, "dump", "--format", "table", path)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "1 frames") || !strings.Contains(out, "preview") {
		t.Errorf("unexpected table output:\n%s", out)
	}
}

func TestDump_FromStore(t *testing.T) {
	dir := t.TempDir()
	store := lode.NewSegmentStore(jlode.NewFSFactory(dir), "")
	for _, p := range []string{"first", "second", "third"} {
		if _, err := store.Append(t.Context(), ipc.EncodeFrame([]byte(p))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	out, err := runApp(t, "dump", "--format", "json", "--storage-path", dir, "--last", "2")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	var views []reader.SegmentView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(views))
	}
	if views[0].Frames[0].Preview != "second" || views[1].Frames[0].Preview != "third" {
		t.Errorf("unexpected order: %+v", views)
	}
}

func TestDump_MissingFile(t *testing.T) {
	_, err := runApp(t, "dump", filepath.Join(t.TempDir(), "nope.ssef"))
	if exitCode(err) != exitFailure {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitFailure)
	}
}

func startDebug(t *testing.T) (*aggregator.Coordinator, *httptest.Server) {
	t.Helper()
	c := aggregator.New(policy.NewStubSink(), aggregator.Config{
		Batch: policy.BatchConfig{FlushDelay: time.Hour},
	})
	srv := aggregator.NewDebugServer(c, nil)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		_ = srv.Close()
	})
	return c, hs
}

func TestInspectRing(t *testing.T) {
	c, hs := startDebug(t)
	c.HandleMessage("2", &types.Message{Type: types.ChunkData, Data: []byte("data: hi\n\n")})

	out, err := runApp(t, "inspect", "ring", "--format", "json", "--debug-url", hs.URL+"/rpc", "2")
	if err != nil {
		t.Fatalf("inspect ring: %v", err)
	}
	var v reader.RingView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if v.Source != "2" || len(v.Entries) != 1 || v.Entries[0].Len != 10 {
		t.Errorf("unexpected ring: %+v", v)
	}
}

func TestInspectRing_SourceRequired(t *testing.T) {
	_, err := runApp(t, "inspect", "ring")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func TestInspectRings_DebugAddrFromConfig(t *testing.T) {
	c, hs := startDebug(t)
	c.HandleMessage("a", &types.Message{Type: types.ChunkData, Data: []byte("1")})
	c.HandleMessage("b", &types.Message{Type: types.ChunkData, Data: []byte("22")})

	cfgPath := filepath.Join(t.TempDir(), "teeline.yaml")
	listen := strings.TrimPrefix(hs.URL, "http://")
	if err := os.WriteFile(cfgPath, []byte("debug:\n  listen: "+listen+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runApp(t, "--config", cfgPath, "inspect", "rings", "--format", "yaml")
	if err != nil {
		t.Fatalf("inspect rings: %v", err)
	}
	if !strings.Contains(out, "source: a") || !strings.Contains(out, "source: b") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestInspectStats_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = runApp(t, "inspect", "stats", "--debug-url", "http://"+addr+"/rpc")
	if exitCode(err) != exitFailure {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitFailure)
	}
}

func TestCapture_RelaysToAggregator(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, ev := range []string{"data: one\n\n", "data: two\n\n"} {
			_, _ = io.WriteString(w, ev)
			f.Flush()
		}
	}))
	t.Cleanup(upstream.Close)

	coord := aggregator.New(policy.NewStubSink(), aggregator.Config{
		Batch: policy.BatchConfig{FlushDelay: time.Hour},
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = coord.Serve(t.Context(), ln) }()
	t.Cleanup(func() { _ = coord.Close(context.Background()) })

	out, err := runApp(t, "capture",
		"--origin", upstream.URL,
		"--path", "/backend-api/f/conversation",
		"--aggregator", ln.Addr().String(),
		"--source", "5",
		upstream.URL+"/backend-api/f/conversation",
	)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if out != "data: one\n\ndata: two\n\n" {
		t.Errorf("stdout = %q", out)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var got []byte
		for _, e := range coord.Ring("5") {
			got = append(got, e.Bytes...)
		}
		if string(got) == out {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("ring 5 = %q, want %q", got, out)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCapture_NoAggregatorStillStreams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: x\n\n")
	}))
	t.Cleanup(upstream.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	out, err := runApp(t, "capture", "--origin", "", "--path", "", "--aggregator", addr, upstream.URL+"/any")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if out != "data: x\n\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestCapture_BadHeader(t *testing.T) {
	_, err := runApp(t, "capture", "-H", "no-colon", "http://127.0.0.1:1/")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func TestAggregate_InvalidConfig(t *testing.T) {
	_, err := runApp(t, "aggregate", "--adapter", "kafka")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
	_, err = runApp(t, "aggregate", "--max-bytes", "lots")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func TestIngest_InvalidStorage(t *testing.T) {
	_, err := runApp(t, "ingest", "--storage-backend", "tape")
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}
