package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

// RawConfig mirrors Config with optional fields so merged files only
// override what they set.
type RawConfig struct {
	Include     IncludeList    `yaml:"include"`
	Namespace   *string        `yaml:"namespace"`
	Socket      *string        `yaml:"socket"`
	CallTimeout *time.Duration `yaml:"call_timeout"`
	Logging     *RawLogging    `yaml:"logging"`
	Host        *RawHost       `yaml:"host"`
}

type RawLogging struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type RawHost struct {
	Backend           *string        `yaml:"backend"`
	ReconcileInterval *time.Duration `yaml:"reconcile_interval"`
	DefaultWidth      *int           `yaml:"default_width"`
	DefaultHeight     *int           `yaml:"default_height"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c
	out.Include = nil
	if overlay.Namespace != nil {
		out.Namespace = overlay.Namespace
	}
	if overlay.Socket != nil {
		out.Socket = overlay.Socket
	}
	if overlay.CallTimeout != nil {
		out.CallTimeout = overlay.CallTimeout
	}
	if overlay.Logging != nil {
		merged := RawLogging{}
		if out.Logging != nil {
			merged = *out.Logging
		}
		if overlay.Logging.Level != nil {
			merged.Level = overlay.Logging.Level
		}
		if overlay.Logging.Format != nil {
			merged.Format = overlay.Logging.Format
		}
		out.Logging = &merged
	}
	if overlay.Host != nil {
		merged := RawHost{}
		if out.Host != nil {
			merged = *out.Host
		}
		if overlay.Host.Backend != nil {
			merged.Backend = overlay.Host.Backend
		}
		if overlay.Host.ReconcileInterval != nil {
			merged.ReconcileInterval = overlay.Host.ReconcileInterval
		}
		if overlay.Host.DefaultWidth != nil {
			merged.DefaultWidth = overlay.Host.DefaultWidth
		}
		if overlay.Host.DefaultHeight != nil {
			merged.DefaultHeight = overlay.Host.DefaultHeight
		}
		out.Host = &merged
	}
	return out
}
