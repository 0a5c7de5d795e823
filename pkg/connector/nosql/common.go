package nosql

import "github.com/ajitpratap0/warehouse-etl/pkg/errors"

func requireString(cfg map[string]interface{}, key string) (string, error) {
	v, _ := cfg[key].(string)
	if v == "" {
		return "", errors.New(errors.ErrorTypeConfig, "missing required key: "+key)
	}
	return v, nil
}

func optionalString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalInt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func stringSlice(cfg map[string]interface{}, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
