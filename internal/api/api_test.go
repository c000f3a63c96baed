package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/chattervc/internal/api"
	"github.com/MrWong99/chattervc/internal/gateway"
	"github.com/MrWong99/chattervc/internal/observe"
	"github.com/MrWong99/chattervc/internal/pipeline"
	"github.com/MrWong99/chattervc/internal/voice"
	"github.com/MrWong99/chattervc/pkg/provider/convert"
	convertmock "github.com/MrWong99/chattervc/pkg/provider/convert/mock"
	"github.com/MrWong99/chattervc/pkg/provider/synth"
	synthmock "github.com/MrWong99/chattervc/pkg/provider/synth/mock"
)

type fixture struct {
	srv     *httptest.Server
	synth   *synthmock.Engine
	conv    *convertmock.Engine
	root    string
	catalog *voice.Catalog
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	catalog := voice.NewCatalog(root, voice.WithMetrics(metrics))
	if err := catalog.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	f := &fixture{
		synth: &synthmock.Engine{GenerateResult: synth.Output{
			Channels:   [][]float32{make([]float32, 2400)},
			SampleRate: 24000,
		}},
		conv:    &convertmock.Engine{},
		root:    root,
		catalog: catalog,
	}
	synthGW := gateway.NewSynthesis(
		gateway.NewLazy("chatterbox", func(context.Context) (synth.Engine, error) { return f.synth, nil }, metrics),
		synth.FlavorMultilingual, 24000,
	)
	convGW := gateway.NewConversion(
		gateway.NewLazy("rvc", func(context.Context) (convert.Engine, error) { return f.conv, nil }, metrics),
	)
	pipe := pipeline.New(catalog, synthGW,
		pipeline.WithConverter(convGW),
		pipeline.WithCacheDir(t.TempDir()),
		pipeline.WithMetrics(metrics),
	)

	s := api.New(pipe, catalog, api.Config{
		Device:            "cpu",
		DefaultSampleRate: 24000,
		CORSOrigins:       []string{"*"},
		RequestTimeout:    time.Minute,
	})
	mux := http.NewServeMux()
	s.Register(mux)
	f.srv = httptest.NewServer(s.Wrap(mux))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func detail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decode(t, resp, &body)
	return body.Detail
}

// A voice without a conversion model served with chatterbox_rvc falls back to
// base synthesis and says so in the headers.
func TestSpeech_VoiceWithoutModel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	resp := f.post(t, "/v1/audio/speech", `{"model":"chatterbox_rvc","input":"Hi","voice":"alice","format":"wav"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, detail = %q", resp.StatusCode, detail(t, resp))
	}
	wantHeaders := map[string]string{
		"Content-Type":    "audio/wav",
		"Cache-Control":   "no-store",
		"X-Model":         "chatterbox_rvc",
		"X-Voice":         "alice",
		"X-RVC-Applied":   "0",
		"X-Chatterbox-SR": "24000",
	}
	for k, want := range wantHeaders {
		if got := resp.Header.Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
	payload := new(bytes.Buffer)
	if _, err := payload.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(payload.Bytes(), []byte("RIFF")) {
		t.Errorf("payload does not start with RIFF")
	}
	if f.conv.CallCount() != 0 {
		t.Errorf("conversion calls = %d, want 0", f.conv.CallCount())
	}
}

// "random" against an empty catalog is a 404 and never reaches the engine.
func TestSpeech_RandomOnEmptyCatalog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.post(t, "/v1/audio/speech", `{"model":"chatterbox","input":"Hi","voice":"random"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if d := detail(t, resp); d == "" {
		t.Error("empty detail")
	}
	if f.synth.CallCount() != 0 {
		t.Errorf("synthesis calls = %d, want 0", f.synth.CallCount())
	}
}

// An unsupported format is rejected before any synthesis work.
func TestSpeech_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	resp := f.post(t, "/v1/audio/speech", `{"model":"chatterbox","input":"Hi","voice":"alice","format":"xml"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if d := detail(t, resp); !strings.Contains(d, "wav|flac|ogg") {
		t.Errorf("detail = %q, want it to list supported formats", d)
	}
	if f.synth.CallCount() != 0 {
		t.Errorf("synthesis calls = %d, want 0", f.synth.CallCount())
	}
}

func TestSpeech_BadRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"model":`},
		{"wrong type", `{"model":"chatterbox","input":"Hi","voice":"alice","sample_rate":"fast"}`},
		{"missing model", `{"input":"Hi","voice":"alice"}`},
		{"missing input", `{"model":"chatterbox","voice":"alice"}`},
		{"missing voice", `{"model":"chatterbox","input":"Hi"}`},
		{"empty input", `{"model":"chatterbox","input":"  ","voice":"alice"}`},
		{"cfg out of range", `{"model":"chatterbox","input":"Hi","voice":"alice","cfg_weight":1.2}`},
		{"protect out of range", `{"model":"chatterbox_rvc","input":"Hi","voice":"alice","rvc_protect":0.9}`},
		{"zero sample rate", `{"model":"chatterbox","input":"Hi","voice":"alice","sample_rate":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/v1/audio/speech", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if d := detail(t, resp); d == "" {
				t.Error("empty detail")
			}
		})
	}
	if f.synth.CallCount() != 0 {
		t.Errorf("synthesis calls = %d, want 0", f.synth.CallCount())
	}
}

func TestSpeech_BodyTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	body := `{"model":"chatterbox","voice":"alice","input":"` + strings.Repeat("a", 1<<20+1024) + `"}`
	resp := f.post(t, "/v1/audio/speech", body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestSpeech_SynthesisFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")
	f.synth.GenerateErr = errors.New("CUDA error: device-side assert")

	resp := f.post(t, "/v1/audio/speech", `{"model":"chatterbox","input":"Hi","voice":"alice"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if d := detail(t, resp); !strings.Contains(d, "device-side assert") {
		t.Errorf("detail = %q, want the engine cause", d)
	}
}

func TestSpeech_OptionsForwarded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "Bob/ref.wav")

	resp := f.post(t, "/v1/audio/speech", `{
		"model": "chatterbox",
		"input": "Hallo",
		"voice": "voices/bob",
		"response_format": "flac",
		"sample_rate": 16000,
		"language_id": "de",
		"exaggeration": 0.9
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, detail = %q", resp.StatusCode, detail(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/flac" {
		t.Errorf("Content-Type = %q, want audio/flac", ct)
	}
	if v := resp.Header.Get("X-Voice"); v != "Bob" {
		t.Errorf("X-Voice = %q, want Bob", v)
	}

	req := f.synth.GenerateCalls[0].Request
	want := map[synth.Control]any{
		synth.ControlLanguageID:   "de",
		synth.ControlCFGWeight:    0.5,
		synth.ControlExaggeration: 0.9,
	}
	for k, v := range want {
		if req.Controls[k] != v {
			t.Errorf("Controls[%s] = %v, want %v", k, req.Controls[k], v)
		}
	}
}

// Ogg at a rate Opus cannot take is encoded at 48 kHz and the header says so.
func TestSpeech_PayloadSampleRate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	tests := []struct {
		format, rate, want string
	}{
		{"wav", "44100", "44100"},
		{"ogg", "24000", "24000"},
		{"ogg", "44100", "48000"},
	}
	for _, tt := range tests {
		resp := f.post(t, "/v1/audio/speech",
			`{"model":"chatterbox","input":"Hi","voice":"alice","format":"`+tt.format+`","sample_rate":`+tt.rate+`}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s@%s: status = %d, detail = %q", tt.format, tt.rate, resp.StatusCode, detail(t, resp))
		}
		if got := resp.Header.Get("X-Sample-Rate"); got != tt.want {
			t.Errorf("%s@%s: X-Sample-Rate = %q, want %q", tt.format, tt.rate, got, tt.want)
		}
	}
}

func TestListings(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav", "bob/b.mp3")

	var models struct {
		Models []struct{ ID string } `json:"models"`
	}
	decode(t, f.get(t, "/v1/audio/models"), &models)
	if len(models.Models) != 2 || models.Models[0].ID != "chatterbox" || models.Models[1].ID != "chatterbox_rvc" {
		t.Errorf("models = %+v", models)
	}

	var list struct {
		Object string `json:"object"`
		Data   []struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"data"`
	}
	decode(t, f.get(t, "/v1/models"), &list)
	if list.Object != "list" || len(list.Data) != 2 || list.Data[1].ID != "chatterbox_rvc" || list.Data[0].Object != "model" {
		t.Errorf("openai models = %+v", list)
	}

	var voices struct {
		Voices []voice.Entry `json:"voices"`
	}
	decode(t, f.get(t, "/v1/audio/voices"), &voices)
	want := []voice.Entry{{ID: "random", Name: "Random"}, {ID: "voices/alice", Name: "alice"}, {ID: "voices/bob", Name: "bob"}}
	if len(voices.Voices) != len(want) {
		t.Fatalf("voices = %+v", voices.Voices)
	}
	for i := range want {
		if voices.Voices[i] != want[i] {
			t.Errorf("voices[%d] = %+v, want %+v", i, voices.Voices[i], want[i])
		}
	}

	var health map[string]bool
	decode(t, f.get(t, "/health"), &health)
	if !health["ok"] {
		t.Errorf("health = %v", health)
	}

	var info struct {
		Service    string   `json:"service"`
		VoicesRoot string   `json:"voices_root"`
		Device     string   `json:"device"`
		Models     []string `json:"models"`
	}
	decode(t, f.get(t, "/"), &info)
	if info.Device != "cpu" || info.VoicesRoot != f.catalog.Root() || len(info.Models) != 2 {
		t.Errorf("info = %+v", info)
	}

	if resp := f.get(t, "/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestRefreshVoices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "alice/ref.wav")

	if err := os.MkdirAll(filepath.Join(f.root, "carol"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "carol", "c.ogg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := f.post(t, "/v1/audio/voices/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var voices struct {
		Voices []voice.Entry `json:"voices"`
	}
	decode(t, resp, &voices)
	if len(voices.Voices) != 3 || voices.Voices[2].ID != "voices/carol" {
		t.Errorf("voices after refresh = %+v", voices.Voices)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/v1/audio/speech", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-RVC-Applied") {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
}
