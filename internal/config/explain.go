package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at a dotted YAML path and where it
// came from.
//
//	namespace
//	socket
//	call_timeout
//	logging.level
//	host.backend
//	host.default_width
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch strings.TrimSpace(path) {
	case "":
		return nil, fmt.Errorf("path is empty")
	case "namespace":
		return cfg.Namespace, nil
	case "socket":
		return cfg.Socket, nil
	case "call_timeout":
		return cfg.CallTimeout, nil
	case "logging":
		return cfg.Logging, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "host":
		return cfg.Host, nil
	case "host.backend":
		return cfg.Host.Backend, nil
	case "host.reconcile_interval":
		return cfg.Host.ReconcileInterval, nil
	case "host.default_width":
		return cfg.Host.DefaultWidth, nil
	case "host.default_height":
		return cfg.Host.DefaultHeight, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
