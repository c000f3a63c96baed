package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chattervc/pkg/provider/synth"
)

// maxSampleRate is the highest output rate accepted anywhere in chattervc.
const maxSampleRate = 192000

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Fields absent from the file keep their [Default] values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the process environment. lookup is usually
// [os.LookupEnv]. Recognised variables:
//
//	VOICES_ROOT            voices.root
//	CHATTERVC_CACHE        cache.dir
//	CHATTERBOX_DEVICE      chatterbox.device
//	CHATTERVC_SAMPLE_RATE  audio.default_sample_rate
//	CHATTERBOX_MODEL       chatterbox.flavor
//	CHATTERBOX_URL         chatterbox.url
//	RVC_BACKEND            rvc.backend
//	RVC_URL                rvc.url
//	CHATTERVC_LISTEN_ADDR  server.listen_addr
//	HOST, PORT             server.listen_addr, when CHATTERVC_LISTEN_ADDR is unset
//	CHATTERVC_LOG_LEVEL    server.log_level
//
// Only malformed numbers are errors; everything else is checked by [Validate].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("VOICES_ROOT", &cfg.Voices.Root)
	set("CHATTERVC_CACHE", &cfg.Cache.Dir)
	set("CHATTERBOX_DEVICE", &cfg.Chatterbox.Device)
	set("CHATTERBOX_MODEL", &cfg.Chatterbox.Flavor)
	set("CHATTERBOX_URL", &cfg.Chatterbox.URL)
	set("RVC_URL", &cfg.RVC.URL)

	var backend, level string
	set("RVC_BACKEND", &backend)
	if backend != "" {
		cfg.RVC.Backend = RVCBackend(strings.ToLower(backend))
	}
	set("CHATTERVC_LOG_LEVEL", &level)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(level))
	}

	var rate string
	set("CHATTERVC_SAMPLE_RATE", &rate)
	if rate != "" {
		n, err := strconv.Atoi(rate)
		if err != nil {
			return fmt.Errorf("config: CHATTERVC_SAMPLE_RATE %q: %w", rate, err)
		}
		cfg.Audio.DefaultSampleRate = n
	}

	if v, ok := lookup("CHATTERVC_LISTEN_ADDR"); ok && v != "" {
		cfg.Server.ListenAddr = v
		return nil
	}
	host, _ := lookup("HOST")
	port, hasPort := lookup("PORT")
	if hasPort && port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("config: PORT %q: %w", port, err)
		}
		cfg.Server.ListenAddr = net.JoinHostPort(host, port)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %v must not be negative", cfg.Server.RequestTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Storage
	if cfg.Voices.Root == "" {
		errs = append(errs, errors.New("voices.root is required"))
	}
	if cfg.Voices.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("voices.watch_debounce %v must not be negative", cfg.Voices.WatchDebounce))
	}
	if cfg.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}

	// Audio
	if sr := cfg.Audio.DefaultSampleRate; sr <= 0 || sr > maxSampleRate {
		errs = append(errs, fmt.Errorf("audio.default_sample_rate %d is out of range (0, %d]", sr, maxSampleRate))
	}

	// Chatterbox
	if _, err := synth.ParseFlavor(cfg.Chatterbox.Flavor); err != nil {
		errs = append(errs, fmt.Errorf("chatterbox.flavor %q is invalid; valid values: english, multilingual", cfg.Chatterbox.Flavor))
	}
	if err := validateURL(cfg.Chatterbox.URL); err != nil {
		errs = append(errs, fmt.Errorf("chatterbox.url: %w", err))
	}
	if cfg.Chatterbox.Device == "" {
		errs = append(errs, errors.New("chatterbox.device is required"))
	}

	// RVC
	switch cfg.RVC.Backend {
	case RVCBackendHTTP:
		if err := validateURL(cfg.RVC.URL); err != nil {
			errs = append(errs, fmt.Errorf("rvc.url: %w", err))
		}
	case RVCBackendApplio:
		if cfg.RVC.ApplioDir == "" {
			errs = append(errs, errors.New("rvc.applio_dir is required when backend is applio"))
		}
	case RVCBackendNone:
	default:
		errs = append(errs, fmt.Errorf("rvc.backend %q is invalid; valid values: http, applio, none", cfg.RVC.Backend))
	}
	if cfg.RVC.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("rvc.breaker.max_failures %d must not be negative", cfg.RVC.Breaker.MaxFailures))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
