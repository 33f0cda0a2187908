package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Paperless  PaperlessConfig
	LlamaCpp   LlamaCppConfig
	Processing ProcessingConfig
	Storage    StorageConfig
	Status     StatusConfig
	Log        LogConfig
}

type PaperlessConfig struct {
	URL       string
	Token     string
	RateLimit int
}

type LlamaCppConfig struct {
	URL string
}

type ProcessingConfig struct {
	Tag         string
	AmountField string
	Currency    string
	Concurrency int
	PDFFallback bool
}

type StorageConfig struct {
	DataDir string
}

type StatusConfig struct {
	Addr  string
	Token string // optional bearer token for the status server
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Paperless: PaperlessConfig{
			URL:       "http://localhost:8000",
			RateLimit: 10,
		},
		LlamaCpp: LlamaCppConfig{
			URL: "http://localhost:8080",
		},
		Processing: ProcessingConfig{
			Tag:         "llm-process",
			AmountField: "Amount",
			Currency:    "CHF",
			Concurrency: 10,
			PDFFallback: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.paperllm.app) and the
// paperless token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/paperllm/config.json
// and the token falls back to $XDG_DATA_HOME/paperllm/secrets.json.
//
// Environment variables (PAPERLLM_*) override backend values on all platforms.
// A missing token is not an error here: commands that talk to paperless
// call RequireToken once flags have been applied.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Paperless.Token == "" {
		if tok, err := kc.Get("paperllm", "paperless_token"); err == nil && tok != "" {
			cfg.Paperless.Token = tok
		}
	}

	return cfg, nil
}

// RequireToken reports a descriptive error when no paperless API token is set.
func (c Config) RequireToken() error {
	if c.Paperless.Token != "" {
		return nil
	}
	msg := "missing required config: paperless API token. " +
		"Set it via --paperless-token or environment variable PAPERLLM_PAPERLESS_TOKEN" +
		tokenHint()
	return fmt.Errorf("%s", msg)
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
