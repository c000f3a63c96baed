package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/chattervc/internal/config"
)

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		{"negative timeout", func(c *config.Config) { c.Server.RequestTimeout = -1 }, "server.request_timeout"},
		{"half tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "a.pem"} }, "server.tls"},
		{"voices root", func(c *config.Config) { c.Voices.Root = "" }, "voices.root"},
		{"cache dir", func(c *config.Config) { c.Cache.Dir = "" }, "cache.dir"},
		{"zero rate", func(c *config.Config) { c.Audio.DefaultSampleRate = 0 }, "audio.default_sample_rate"},
		{"huge rate", func(c *config.Config) { c.Audio.DefaultSampleRate = 384000 }, "audio.default_sample_rate"},
		{"flavor", func(c *config.Config) { c.Chatterbox.Flavor = "turbo" }, "chatterbox.flavor"},
		{"chatterbox url", func(c *config.Config) { c.Chatterbox.URL = "gpu-box:8010" }, "chatterbox.url"},
		{"device", func(c *config.Config) { c.Chatterbox.Device = "" }, "chatterbox.device"},
		{"rvc backend", func(c *config.Config) { c.RVC.Backend = "onnx" }, "rvc.backend"},
		{"rvc url", func(c *config.Config) { c.RVC.URL = "" }, "rvc.url"},
		{"applio dir", func(c *config.Config) { c.RVC.Backend = config.RVCBackendApplio }, "rvc.applio_dir"},
		{"breaker", func(c *config.Config) { c.RVC.Breaker.MaxFailures = -1 }, "rvc.breaker.max_failures"},
		{"sample ratio", func(c *config.Config) { c.Telemetry.TraceSampleRatio = 2 }, "telemetry.trace_sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_NoneBackendNeedsNothing(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.RVC.Backend = config.RVCBackendNone
	cfg.RVC.URL = ""
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
voices:
  root: ""
audio:
  default_sample_rate: -1
chatterbox:
  flavor: klingon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"voices.root", "audio.default_sample_rate", "chatterbox.flavor"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}
