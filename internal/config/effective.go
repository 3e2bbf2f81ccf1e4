package config

import "fmt"

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies the merged raw config on top of the defaults.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.Namespace != nil {
		cfg.Namespace = *raw.Namespace
	}
	if raw.Socket != nil {
		cfg.Socket = *raw.Socket
	}
	if raw.CallTimeout != nil {
		cfg.CallTimeout = *raw.CallTimeout
	}
	if l := raw.Logging; l != nil {
		if l.Level != nil {
			cfg.Logging.Level = *l.Level
		}
		if l.Format != nil {
			cfg.Logging.Format = *l.Format
		}
	}
	if h := raw.Host; h != nil {
		if h.Backend != nil {
			cfg.Host.Backend = *h.Backend
		}
		if h.ReconcileInterval != nil {
			cfg.Host.ReconcileInterval = *h.ReconcileInterval
		}
		if h.DefaultWidth != nil {
			cfg.Host.DefaultWidth = *h.DefaultWidth
		}
		if h.DefaultHeight != nil {
			cfg.Host.DefaultHeight = *h.DefaultHeight
		}
	}
	return cfg
}
