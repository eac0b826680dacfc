// Manages the optional healthsys.yaml configuration file.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default name of the configuration file in the data
// directory.
const ConfigFileName = "healthsys.yaml"

// Config stores the settings of a session.
// Loaded from healthsys.yaml, defaults apply when the file is missing.
type Config struct {
	// CSVPath is the patient table. Relative paths are resolved against the
	// data directory.
	CSVPath string `json:"csv_path" yaml:"csv_path" jsonschema:"description=Patient CSV file; relative to the data directory"`

	// History commits the CSV file to a git repository in its directory on
	// every save.
	History bool `json:"history" yaml:"history" jsonschema:"description=Commit every save to a git repository"`

	// AuthorName and AuthorEmail sign history commits.
	AuthorName  string `json:"author_name" yaml:"author_name" jsonschema:"description=Commit author name"`
	AuthorEmail string `json:"author_email" yaml:"author_email" jsonschema:"description=Commit author email"`

	// Journal keeps every change on disk until the next save so that changes
	// lost by a session ending without saving are reported.
	Journal bool `json:"journal" yaml:"journal" jsonschema:"description=Journal changes until they are saved"`

	// Watch warns when another program writes the CSV file during a session.
	Watch bool `json:"watch" yaml:"watch" jsonschema:"description=Warn about external changes to the CSV file"`

	// FormatInput punctuates digit-only CPF and date input.
	FormatInput bool `json:"format_input" yaml:"format_input" jsonschema:"description=Format digit-only CPF and date input"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		CSVPath:     "bd_paciente.csv",
		History:     true,
		AuthorName:  "healthsys",
		AuthorEmail: "healthsys@localhost",
		Journal:     true,
		Watch:       true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CSVPath) == "" {
		return errors.New("csv_path is required")
	}
	if strings.HasSuffix(c.CSVPath, string(filepath.Separator)) {
		return fmt.Errorf("csv_path %q must name a file", c.CSVPath)
	}
	if c.History {
		if c.AuthorName == "" {
			return errors.New("author_name is required when history is enabled")
		}
		if _, err := mail.ParseAddress(c.AuthorEmail); err != nil {
			return fmt.Errorf("author_email: %w", err)
		}
	}
	return nil
}

// CSVFile returns the patient table path resolved against dataDir.
func (c *Config) CSVFile(dataDir string) string {
	if filepath.IsAbs(c.CSVPath) {
		return c.CSVPath
	}
	return filepath.Join(dataDir, c.CSVPath)
}

// LoadConfig loads the configuration at path. A missing file yields
// DefaultConfig. Keys absent from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator.
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ConfigSchema returns the JSON Schema of the configuration file, usable by
// editors for YAML completion.
func ConfigSchema() ([]byte, error) {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.Reflect(&Config{})
	schema.Title = "healthsys configuration"
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
