package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenRigCore/internal/types"
	"gopkg.in/yaml.v3"
)

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load reads a profile by path or by name from the search paths. A bare
// name is tried with .yaml and .yml extensions.
func (l *ProfileLoader) Load(profilePath string) (*types.IOProfile, error) {
	if cached, ok := l.cache.Load(profilePath); ok {
		return cached.(*types.IOProfile), nil
	}

	data, foundPath, err := l.find(profilePath)
	if err != nil {
		return nil, err
	}

	profile, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", foundPath, err)
	}

	l.cache.Store(profilePath, profile)
	return profile, nil
}

// Parse validates and decodes a YAML profile.
func (l *ProfileLoader) Parse(data []byte) (*types.IOProfile, error) {
	if err := l.validator.ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var profile types.IOProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	if err := CheckReferences(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (l *ProfileLoader) find(profilePath string) ([]byte, string, error) {
	candidates := []string{profilePath}
	if filepath.Ext(profilePath) == "" {
		candidates = []string{profilePath + ".yaml", profilePath + ".yml"}
	}

	if filepath.IsAbs(profilePath) {
		for _, c := range candidates {
			if data, err := os.ReadFile(c); err == nil {
				return data, c, nil
			}
		}
	}

	for _, searchPath := range append([]string{"."}, l.searchPaths...) {
		for _, c := range candidates {
			fullPath := filepath.Join(searchPath, c)
			if data, err := os.ReadFile(fullPath); err == nil {
				return data, fullPath, nil
			}
		}
	}

	return nil, "", fmt.Errorf("profile not found: %s (searched in: %v)", profilePath, l.searchPaths)
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
