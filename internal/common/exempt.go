package common

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type exemptFile struct {
	// Members lists user ids the reaper must never re-verify or revoke.
	Members []int64 `yaml:"members"`
}

// LoadExemptMembers reads the reaper allow-list. An empty path means no
// exemptions.
func LoadExemptMembers(path string) ([]int64, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read exempt members file %s: %w", path, err)
	}

	var parsed exemptFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse exempt members file %s: %w", path, err)
	}

	zap.L().Info("Exempt members loaded",
		zap.String("file", path),
		zap.Int("count", len(parsed.Members)))
	return parsed.Members, nil
}
