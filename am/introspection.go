package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/bkingest/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/bkingest/bkingest.toml
	SourceUser        ConfigSource = "user"        // ~/.bkingest/bkingest.toml
	SourceProject     ConfigSource = "project"     // bkingest.toml found from cwd upwards
	SourceEnvironment ConfigSource = "environment" // BKINGEST_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo is one effective setting with its origin
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// Introspect returns every effective setting, sorted by key, annotated with its source
func Introspect() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	v := GetViper()
	mu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	mu.Unlock()

	return settingsWithSources(v.AllSettings(), sources, os.Getenv), nil
}

// settingsWithSources flattens nested settings and resolves the source of each key.
// An environment override beats any file.
func settingsWithSources(all map[string]interface{}, sources map[string]SourceInfo, getenv func(string) string) []SettingInfo {
	flat := make(map[string]interface{})
	flatten(all, "", flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}

		envKey := EnvKey(key)
		if getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      flat[key],
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings
}

func flatten(settings map[string]interface{}, prefix string, out map[string]interface{}) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flatten(nested, fullKey, out)
			continue
		}
		out[fullKey] = value
	}
}

// EnvKey returns the environment variable that overrides a dotted config key
func EnvKey(key string) string {
	return "BKINGEST_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
