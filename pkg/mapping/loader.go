package mapping

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/config"
)

// LoadFile reads and validates the mapping file at path. ${VAR:default}
// references are expanded from the environment.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	return Load(os.LookupEnv, f)
}

// Load merges the given YAML sources in order, expands variables with lookup
// and validates the result.
func Load(lookup func(string) (string, bool), sources ...io.Reader) (Config, error) {
	var result Config

	options := make([]config.YAMLOption, 0, len(sources)+1)
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(lookup))

	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml mapping %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml mapping %w", key, cause)
	}

	key := "baseId"
	if yaml.Get(key).HasValue() {
		if err := yaml.Get(key).Populate(&result.BaseID); err != nil {
			return result, readError(key, err)
		}
	}
	key = "objects"
	if yaml.Get(key).HasValue() {
		if err := yaml.Get(key).Populate(&result.Objects); err != nil {
			return result, readError(key, err)
		}
	}

	if err := result.Validate(); err != nil {
		return result, err
	}
	return result, nil
}
