package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeServer struct {
	mu       sync.Mutex
	bodies   []map[string]any
	failNext int
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "chatterbox", "object": "model", "created": 0, "owned_by": "chattervc"},
				{"id": "chatterbox_rvc", "object": "model", "created": 0, "owned_by": "chattervc"},
			},
		})
	})
	voices := map[string]any{"voices": []map[string]string{
		{"id": "random", "name": "Random"},
		{"id": "voices/alice", "name": "alice"},
	}}
	mux.HandleFunc("GET /v1/audio/voices", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, voices)
	})
	mux.HandleFunc("POST /v1/audio/voices/refresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, voices)
	})
	mux.HandleFunc("POST /v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		fail := f.failNext > 0
		if fail {
			f.failNext--
		}
		f.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("X-Model", "chatterbox_rvc")
		w.Header().Set("X-Voice", "alice")
		w.Header().Set("X-RVC-Applied", "1")
		w.Header().Set("X-Chatterbox-SR", "24000")
		_, _ = w.Write([]byte("RIFFdata"))
	})
	return mux
}

func execute(t *testing.T, fake *fakeServer, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListingCommands(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{}

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"health"}, []string{": ok"}},
		{[]string{"models"}, []string{"chatterbox\n", "chatterbox_rvc\n"}},
		{[]string{"voices"}, []string{"ID", "random", "voices/alice", "alice"}},
		{[]string{"voices", "--refresh"}, []string{"voices/alice"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, fake, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestSay_WritesFile(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{}
	path := filepath.Join(t.TempDir(), "hello.wav")

	out, err := execute(t, fake, "say", "--voice", "alice", "--rvc-pitch", "4", "-o", path, "Hello", "there")
	if err != nil {
		t.Fatalf("say: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Errorf("file = %q", data)
	}
	if !strings.Contains(out, "conversion=yes") || !strings.Contains(out, "synthesis_rate=24000") {
		t.Errorf("summary = %q", out)
	}

	body := fake.bodies[0]
	if body["input"] != "Hello there" || body["voice"] != "alice" || body["model"] != "chatterbox_rvc" {
		t.Errorf("body = %v", body)
	}
	if body["rvc_pitch"] != float64(4) {
		t.Errorf("rvc_pitch = %v, want 4", body["rvc_pitch"])
	}
	for _, unset := range []string{"rvc_index_rate", "cfg_weight", "exaggeration"} {
		if _, ok := body[unset]; ok {
			t.Errorf("%s sent although the flag was not set", unset)
		}
	}
}

func TestSay_NeedsText(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, &fakeServer{}, "say"); err == nil {
		t.Fatal("say without text: want error")
	}
}

func TestBenchmark(t *testing.T) {
	t.Parallel()
	fake := &fakeServer{failNext: 2} // warm-up and first run fail

	out, err := execute(t, fake, "benchmark", "-n", "3", "--model", "chatterbox")
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	if len(fake.bodies) != 4 {
		t.Fatalf("requests = %d, want 1 warm-up + 3", len(fake.bodies))
	}
	if fake.bodies[0]["input"] != benchmarkWarmUp || fake.bodies[1]["input"] != benchmarkText {
		t.Errorf("inputs = %v / %v", fake.bodies[0]["input"], fake.bodies[1]["input"])
	}
	for _, w := range []string{"warm-up failed", "run 1 failed", "completed  2/3", "average", "max"} {
		if !strings.Contains(out, w) {
			t.Errorf("output %q missing %q", out, w)
		}
	}
}

func TestBenchmark_AllFail(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, &fakeServer{failNext: 10}, "benchmark", "-n", "2"); err == nil {
		t.Fatal("benchmark with only failures: want error")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	s := summarize([]time.Duration{ms(300), ms(100), ms(200), ms(400)}, 1)
	want := benchStats{
		Completed: 4, Failed: 1,
		Total: ms(1000), Average: ms(250), Median: ms(250),
		Min: ms(100), Max: ms(400),
	}
	if s != want {
		t.Errorf("summarize = %+v, want %+v", s, want)
	}

	if s := summarize(nil, 3); s != (benchStats{Failed: 3}) {
		t.Errorf("summarize(nil) = %+v", s)
	}
	if s := summarize([]time.Duration{ms(5), ms(1), ms(9)}, 0); s.Median != ms(5) {
		t.Errorf("odd median = %v, want 5ms", s.Median)
	}
}
