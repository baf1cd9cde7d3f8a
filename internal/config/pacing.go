package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

// PacingSettings is the versioned pacing tuning file. Keys the file omits
// keep their engine defaults.
type PacingSettings struct {
	Version int                 `yaml:"version"`
	Pacing  conversation.Pacing `yaml:"pacing"`
}

// LoadPacing reads typewriter pacing from a YAML file. An empty path means
// no overrides: the engine defaults are returned as-is.
func LoadPacing(path string) (conversation.Pacing, error) {
	if path == "" {
		return conversation.DefaultPacing(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return conversation.Pacing{}, err
	}

	settings := PacingSettings{Pacing: conversation.DefaultPacing()}
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return conversation.Pacing{}, err
	}

	if settings.Version != 1 {
		return conversation.Pacing{}, fmt.Errorf("unsupported pacing file version: %d", settings.Version)
	}

	return settings.Pacing, nil
}
