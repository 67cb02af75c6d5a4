package core

import (
	"fmt"
	"path/filepath"

	"github.com/gvallee/go_util/pkg/util"
	"github.com/gvallee/kv/pkg/kv"
)

// LoadSecrets reads KEY=VALUE pairs from secrets.env next to the config
// file (default $XDG_CONFIG_HOME/pilotrun/secrets.env) so tokens stay out
// of the YAML. A missing file is not an error.
func LoadSecrets(path string) (map[string]string, error) {
	if path == "" {
		path = filepath.Join(ConfigDir(), "secrets.env")
	}
	if !util.FileExists(path) {
		return map[string]string{}, nil
	}

	pairs, err := kv.LoadKeyValueConfig(path)
	if err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.Value
	}
	return out, nil
}
