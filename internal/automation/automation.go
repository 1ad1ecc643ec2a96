// Package automation loads the dashboard's automation catalogue: the named,
// pre-registered scripts the dashboard can launch.
//
// The catalogue is read from a YAML base file, optionally merged with a
// local override file next to it (same name with a .local.yaml suffix).
// Local entries, matched by name, can override fields of a base entry,
// disable it with 'enabled: false', or add entirely new automations. The
// base file is meant to be checked in; the local file is per-host and
// gitignored.
package automation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Automation is one entry in the catalogue. Immutable for the lifetime of
// the server process.
type Automation struct {
	// Name is the unique key used in URLs and state management.
	Name string `yaml:"name" json:"name"`

	// DisplayName is the name shown to users.
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Command is the path of the executable to launch.
	Command string `yaml:"command" json:"command"`

	// ButtonText is the label for the action button in the UI.
	ButtonText string `yaml:"button_text" json:"button_text"`

	// AcceptsArgs reports whether the automation takes free-form arguments.
	AcceptsArgs bool `yaml:"accepts_args" json:"accepts_args"`
}

type catalogueFile struct {
	Automations []map[string]any `yaml:"automations"`
}

// Load reads the catalogue at path and applies the local override file if
// one exists. A missing base file is an error; a missing local file is not.
func Load(path string) ([]Automation, error) {
	base, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load automation config: %w", err)
	}

	local, err := loadFile(localPath(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load local automation config: %w", err)
		}

		local = nil
	}

	return merge(base, local)
}

// localPath derives the override file path: automations.yaml becomes
// automations.local.yaml.
func localPath(path string) string {
	if ext := ".yaml"; strings.HasSuffix(path, ext) {
		return strings.TrimSuffix(path, ext) + ".local" + ext
	}

	if ext := ".yml"; strings.HasSuffix(path, ext) {
		return strings.TrimSuffix(path, ext) + ".local" + ext
	}

	return path + ".local"
}

func loadFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return f.Automations, nil
}

// merge overlays local entries onto base entries by name, drops disabled
// entries, and decodes the result into typed Automations. Base order is
// preserved; additions from the local file come last in its order.
func merge(base, local []map[string]any) ([]Automation, error) {
	merged := make(map[string]map[string]any, len(base))
	order := make([]string, 0, len(base))

	add := func(item map[string]any) {
		name, ok := item["name"].(string)
		if !ok || name == "" {
			return
		}

		entry, exists := merged[name]
		if !exists {
			entry = make(map[string]any, len(item))
			merged[name] = entry
			order = append(order, name)
		}

		for k, v := range item {
			entry[k] = v
		}
	}

	for _, item := range base {
		add(item)
	}

	for _, item := range local {
		add(item)
	}

	automations := make([]Automation, 0, len(order))

	for _, name := range order {
		entry := merged[name]

		if enabled, ok := entry["enabled"].(bool); ok && !enabled {
			continue
		}

		a, err := decode(entry)
		if err != nil {
			return nil, fmt.Errorf("automation %q: %w", name, err)
		}

		if a.Command == "" {
			return nil, fmt.Errorf("automation %q: command is required", name)
		}

		automations = append(automations, a)
	}

	return automations, nil
}

func decode(entry map[string]any) (Automation, error) {
	// Round-trip through YAML so override entries get the same field
	// handling as the base file.
	data, err := yaml.Marshal(entry)
	if err != nil {
		return Automation{}, err
	}

	var a Automation
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Automation{}, err
	}

	return a, nil
}
