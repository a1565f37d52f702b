package backend

import (
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Configuration maps arrive from YAML (ints) or JSON (float64); the
// cfg* helpers normalize both into the typed per-backend config structs
// so validation happens once, eagerly, before any build or query work.

func cfgInt(cfg map[string]any, key string, def int) (int, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, qerrors.ConfigError("%s must be an integer, got %v", key, v)
		}
		return int(n), nil
	default:
		return 0, qerrors.ConfigError("%s must be an integer, got %T", key, v)
	}
}

func cfgFloat(cfg map[string]any, key string, def float64) (float64, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, qerrors.ConfigError("%s must be a number, got %T", key, v)
	}
}

func cfgString(cfg map[string]any, key, def string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", qerrors.ConfigError("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func cfgBool(cfg map[string]any, key string, def bool) (bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, qerrors.ConfigError("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

func cfgStringSlice(cfg map[string]any, key string) ([]string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, qerrors.ConfigError("%s must be a list of strings, got element %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, qerrors.ConfigError("%s must be a list of strings, got %T", key, v)
	}
}

func cfgMap(cfg map[string]any, key string) (map[string]any, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, qerrors.ConfigError("%s must be a mapping, got %T", key, v)
	}
	return m, nil
}
