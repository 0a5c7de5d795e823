package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load merges five layers of connection configuration, low to high
// precedence: defaults, file, environment, config, overrides. Files are
// parsed as JSON for a .json extension and YAML for .yaml/.yml; any other
// extension is rejected. Env vars are matched by envPrefix + "_" + the
// upper-cased key and mapped back to the lower-cased key; values are not
// type-coerced. After merging, every key in required must be present or
// Load fails.
func Load(
	config map[string]interface{},
	filePath string,
	envPrefix string,
	required []string,
	defaults map[string]interface{},
	overrides map[string]interface{},
) (map[string]interface{}, error) {
	merged := make(map[string]interface{})

	for k, v := range defaults {
		merged[k] = v
	}

	if filePath != "" {
		fileValues, err := loadFile(filePath)
		if err != nil {
			return nil, err
		}
		for k, v := range fileValues {
			merged[k] = v
		}
	}

	if envPrefix != "" {
		for k, v := range envValues(envPrefix) {
			merged[k] = v
		}
	}

	for k, v := range config {
		merged[k] = v
	}

	for k, v := range overrides {
		merged[k] = v
	}

	var missing []string
	for _, key := range required {
		if _, ok := merged[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.New(errors.ErrorTypeConfig, "missing required keys: "+strings.Join(missing, ", "))
	}

	return merged, nil
}

func loadFile(filePath string) (map[string]interface{}, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: caller-controlled config path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	values := make(map[string]interface{})

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".json":
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse JSON config")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML config")
		}
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported format: "+ext)
	}

	return values, nil
}

// envValues collects OS environment variables prefixed with
// <envPrefix>_ into a config map keyed by the lower-cased remainder.
func envValues(envPrefix string) map[string]interface{} {
	prefix := strings.ToUpper(envPrefix) + "_"
	values := make(map[string]interface{})

	for _, entry := range os.Environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		values[key] = value
	}

	return values
}
