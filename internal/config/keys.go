package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "paperless.url", typ: kString, env: "PAPERLLM_PAPERLESS_URL",
		apply:   func(cfg *Config, v any) { cfg.Paperless.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Paperless.URL },
	},
	{
		key: "paperless.token", typ: kString, env: "PAPERLLM_PAPERLESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Paperless.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Paperless.Token },
	},
	{
		key: "paperless.rate_limit", typ: kInt, env: "PAPERLLM_PAPERLESS_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Paperless.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Paperless.RateLimit },
	},
	{
		key: "llamacpp.url", typ: kString, env: "PAPERLLM_LLAMACPP_URL",
		apply:   func(cfg *Config, v any) { cfg.LlamaCpp.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.LlamaCpp.URL },
	},
	{
		key: "processing.tag", typ: kString, env: "PAPERLLM_PROCESSING_TAG",
		apply:   func(cfg *Config, v any) { cfg.Processing.Tag = v.(string) },
		extract: func(cfg Config) any { return cfg.Processing.Tag },
	},
	{
		key: "processing.amount_field", typ: kString, env: "PAPERLLM_PROCESSING_AMOUNT_FIELD",
		apply:   func(cfg *Config, v any) { cfg.Processing.AmountField = v.(string) },
		extract: func(cfg Config) any { return cfg.Processing.AmountField },
	},
	{
		key: "processing.currency", typ: kString, env: "PAPERLLM_PROCESSING_CURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Processing.Currency = v.(string) },
		extract: func(cfg Config) any { return cfg.Processing.Currency },
	},
	{
		key: "processing.concurrency", typ: kInt, env: "PAPERLLM_PROCESSING_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Processing.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Processing.Concurrency },
	},
	{
		key: "processing.pdf_fallback", typ: kBool, env: "PAPERLLM_PROCESSING_PDF_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Processing.PDFFallback = v.(bool) },
		extract: func(cfg Config) any { return cfg.Processing.PDFFallback },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PAPERLLM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "status.addr", typ: kString, env: "PAPERLLM_STATUS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Status.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Status.Addr },
	},
	{
		key: "status.token", typ: kString, env: "PAPERLLM_STATUS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Status.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Status.Token },
	},
	{
		key: "log.level", typ: kString, env: "PAPERLLM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
