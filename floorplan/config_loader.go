package floorplan

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Defaults for the service configuration
const (
	DefaultHTTPPort      = 4040
	DefaultUpdateTopic   = "planbind/update"
	DefaultPublishPrefix = "planbind"
)

// DefaultConfig returns a configuration with every default filled in
func DefaultConfig() *Config {
	cfg := &Config{Settings: DefaultSettings()}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Config{Settings: DefaultSettings()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.HTTP.Port < 0 || config.HTTP.Port > 65535 {
		return nil, fmt.Errorf("http.port out of range: %d", config.HTTP.Port)
	}

	ApplyDefaults(&config)
	return &config, nil
}

// ApplyDefaults fills blank fields that have a sensible default
func ApplyDefaults(config *Config) {
	if config.HTTP.Port == 0 {
		config.HTTP.Port = DefaultHTTPPort
	}
	if config.MQTT.UpdateTopic == "" {
		config.MQTT.UpdateTopic = DefaultUpdateTopic
	}
	if config.MQTT.PublishPrefix == "" {
		config.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if config.Settings.FloorPlan.LabelAttribute == "" {
		config.Settings.FloorPlan.LabelAttribute = DefaultLabelAttribute
	}
	if config.Settings.FloorPlan.DefaultColor == "" {
		config.Settings.FloorPlan.DefaultColor = DefaultFillColor
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// SettingsPersister stores settings properties on behalf of the visual
type SettingsPersister interface {
	PersistProperties(group string, props map[string]interface{}) error
}

// FileSettingsStore persists settings into the YAML config file
type FileSettingsStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSettingsStore creates a store backed by the config file at path
func NewFileSettingsStore(path string) *FileSettingsStore {
	return &FileSettingsStore{path: path}
}

// PersistProperties writes the given properties of one settings group. The
// file is edited as a YAML node tree so comments and unrelated keys stay as
// they are. A missing config file is created.
func (f *FileSettingsStore) PersistProperties(group string, props map[string]interface{}) error {
	var probe Settings
	if err := applyProperties(&probe, group, props); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var doc yaml.Node
	data, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("persist %s: parsing config YAML: %w", group, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("persist %s: reading config file: %w", group, err)
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("persist %s: config root is not a mapping", group)
	}

	section := mappingChild(mappingChild(root, "settings"), group)
	for name, value := range props {
		setScalar(section, name, value.(string))
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(f.path, out, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// mappingChild returns the mapping stored under key, creating or replacing
// it when absent or not a mapping
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			child := m.Content[i+1]
			if child.Kind != yaml.MappingNode {
				*child = yaml.Node{Kind: yaml.MappingNode}
			}
			return child
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
	return child
}

func setScalar(m *yaml.Node, key, value string) {
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	if strings.Contains(value, "\n") {
		val.Style = yaml.LiteralStyle
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = val
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
}

// applyProperties sets the named properties on one settings group
func applyProperties(s *Settings, group string, props map[string]interface{}) error {
	if group != "floorPlan" {
		return fmt.Errorf("persist: unknown settings group %q", group)
	}
	for name, value := range props {
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("persist %s.%s: expected string, got %T", group, name, value)
		}
		switch name {
		case "svgText":
			s.FloorPlan.SVGText = text
		case "labelAttribute":
			s.FloorPlan.LabelAttribute = text
		case "defaultColor":
			s.FloorPlan.DefaultColor = text
		default:
			return fmt.Errorf("persist: unknown property %s.%s", group, name)
		}
	}
	return nil
}
