// Package config provides the configuration schema, loader, environment
// overrides, and validation for the chattervc speech server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RVCBackend selects how timbre conversion is reached.
type RVCBackend string

const (
	// RVCBackendHTTP talks to an RVC inference sidecar.
	RVCBackendHTTP RVCBackend = "http"

	// RVCBackendApplio runs the Applio CLI once per conversion.
	RVCBackendApplio RVCBackend = "applio"

	// RVCBackendNone disables conversion; chatterbox_rvc behaves like chatterbox.
	RVCBackendNone RVCBackend = "none"
)

// IsValid reports whether b is a recognised backend.
func (b RVCBackend) IsValid() bool {
	switch b {
	case RVCBackendHTTP, RVCBackendApplio, RVCBackendNone:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// then adjusted with [ApplyEnv].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Voices     VoicesConfig     `yaml:"voices"`
	Cache      CacheConfig      `yaml:"cache"`
	Audio      AudioConfig      `yaml:"audio"`
	Chatterbox ChatterboxConfig `yaml:"chatterbox"`
	RVC        RVCConfig        `yaml:"rvc"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":7779").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// RequestTimeout bounds a single HTTP request, including both inference
	// stages. A cold engine load counts against it.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CORSOrigins lists allowed browser origins. "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// VoicesConfig locates the voice catalog.
type VoicesConfig struct {
	// Root is the directory holding one sub-folder per voice.
	Root string `yaml:"root"`

	// Watch rescans the catalog automatically when Root changes.
	Watch bool `yaml:"watch"`

	// WatchDebounce coalesces bursts of filesystem events into one rescan.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// CacheConfig locates the scratch directory for conversion temp files.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// AudioConfig holds output defaults.
type AudioConfig struct {
	// DefaultSampleRate is used when a request omits sample_rate and when the
	// synthesis engine does not report its native rate.
	DefaultSampleRate int `yaml:"default_sample_rate"`
}

// ChatterboxConfig configures the base synthesis sidecar.
type ChatterboxConfig struct {
	// URL is the sidecar base URL.
	URL string `yaml:"url"`

	// Flavor is "english" or "multilingual".
	Flavor string `yaml:"flavor"`

	// Device is passed to the sidecar when loading (e.g., "cuda", "cpu", "mps").
	Device string `yaml:"device"`

	// Timeout bounds one sidecar HTTP call.
	Timeout time.Duration `yaml:"timeout"`
}

// RVCConfig configures timbre conversion.
type RVCConfig struct {
	Backend RVCBackend `yaml:"backend"`

	// URL is the sidecar base URL for the http backend.
	URL string `yaml:"url"`

	// Timeout bounds one sidecar HTTP call for the http backend.
	Timeout time.Duration `yaml:"timeout"`

	// ApplioDir is the Applio checkout containing core.py, for the applio backend.
	ApplioDir string `yaml:"applio_dir"`

	// Python is the interpreter used for the applio backend.
	Python string `yaml:"python"`

	// Breaker tunes the per-model circuit breakers around the conversion stage.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// TelemetryConfig tunes tracing.
type TelemetryConfig struct {
	// TraceSampleRatio is the fraction of new traces sampled, in [0, 1].
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default returns a Config populated with the built-in defaults. YAML and
// environment values are layered on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":7779",
			LogLevel:       LogInfo,
			RequestTimeout: 10 * time.Minute,
			CORSOrigins:    []string{"*"},
		},
		Voices: VoicesConfig{
			Root:          "voices",
			WatchDebounce: 500 * time.Millisecond,
		},
		Cache: CacheConfig{Dir: ".chattervc_cache"},
		Audio: AudioConfig{DefaultSampleRate: 24000},
		Chatterbox: ChatterboxConfig{
			URL:     "http://127.0.0.1:8010",
			Flavor:  "english",
			Device:  "cuda",
			Timeout: 10 * time.Minute,
		},
		RVC: RVCConfig{
			Backend: RVCBackendHTTP,
			URL:     "http://127.0.0.1:8011",
			Timeout: 10 * time.Minute,
			Python:  "python3",
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: time.Minute,
			},
		},
		Telemetry: TelemetryConfig{TraceSampleRatio: 1},
	}
}
