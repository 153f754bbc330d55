package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nytimes/s3yum/internal/createrepo"
)

// DefaultRepoPath is the repo root within the bucket when none is given.
const DefaultRepoPath = "dev"

// Action is one s3yum operation.
type Action string

const (
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionGet    Action = "get"
	ActionDelete Action = "delete"
)

// Actions lists every operation with its description, in help order.
var Actions = []struct {
	Action Action
	Help   string
}{
	{ActionList, "list repo contents"},
	{ActionCreate, "create a new yum repo"},
	{ActionUpdate, "update a yum repo by adding or deleting rpm's"},
	{ActionGet, "copy the entirety of a given repo to a local directory"},
	{ActionDelete, "remove an entire repo (DANGEROUS!)"},
}

// ParseAction validates an action name, ignoring case.
func ParseAction(name string) (Action, error) {
	if name == "" {
		return "", &UsageError{Msg: "Please specify an action"}
	}
	names := make([]string, 0, len(Actions)+1)
	names = append(names, "help")
	for _, a := range Actions {
		if strings.EqualFold(name, string(a.Action)) {
			return a.Action, nil
		}
		names = append(names, string(a.Action))
	}
	return "", &UsageError{Msg: fmt.Sprintf("Bad action: '%s'. Action must be one of: %s", name, strings.Join(names, "|"))}
}

// UsageError is an invocation mistake. Nothing has been changed when one
// is returned and the caller should show usage.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Config represents the complete s3yum configuration
type Config struct {
	Bucket     string           `yaml:"bucket"`
	Path       string           `yaml:"path"`
	Region     string           `yaml:"region"`
	Endpoint   string           `yaml:"endpoint"`
	PathStyle  bool             `yaml:"path_style"`
	MaxRetries int              `yaml:"max_retries"`
	Transfers  int              `yaml:"transfers"`
	Createrepo string           `yaml:"createrepo"`
	AssumeRole AssumeRoleConfig `yaml:"assume_role"`
}

// AssumeRoleConfig configures STS role assumption for the store connection
type AssumeRoleConfig struct {
	RoleARN     string `yaml:"role_arn"`
	SessionName string `yaml:"session_name"`
	ExternalID  string `yaml:"external_id"`
}

// Overrides are command-line values; empty fields leave the file's value.
type Overrides struct {
	Bucket          string
	Path            string
	Region          string
	Endpoint        string
	RoleARN         string
	RoleSessionName string
	RoleExternalID  string
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.validateFile(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Bucket = os.ExpandEnv(c.Bucket)
	c.Path = os.ExpandEnv(c.Path)
	c.Region = os.ExpandEnv(c.Region)
	c.Endpoint = os.ExpandEnv(c.Endpoint)
	c.Createrepo = os.ExpandEnv(c.Createrepo)
	c.AssumeRole.RoleARN = os.ExpandEnv(c.AssumeRole.RoleARN)
	c.AssumeRole.SessionName = os.ExpandEnv(c.AssumeRole.SessionName)
	c.AssumeRole.ExternalID = os.ExpandEnv(c.AssumeRole.ExternalID)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = DefaultRepoPath
	}
	c.Path = NormalizePath(c.Path)
	if c.Transfers == 0 {
		c.Transfers = 1
	}
	if c.Createrepo == "" {
		c.Createrepo = os.Getenv(createrepo.EnvExecutable)
	}
	if c.Createrepo == "" {
		c.Createrepo = createrepo.DefaultExecutable
	}
}

// validateFile checks values that are wrong regardless of the action.
func (c *Config) validateFile() error {
	if c.Transfers < 1 {
		return fmt.Errorf("transfers must be at least 1, got %d", c.Transfers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an http or https URL: %s", c.Endpoint)
		}
	}
	if c.AssumeRole.RoleARN == "" && (c.AssumeRole.SessionName != "" || c.AssumeRole.ExternalID != "") {
		return fmt.Errorf("assume_role.session_name and assume_role.external_id require assume_role.role_arn")
	}
	return nil
}

// WithOverrides returns a copy of c with every non-empty override applied.
func (c *Config) WithOverrides(o Overrides) *Config {
	out := *c
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Bucket, o.Bucket)
	set(&out.Path, o.Path)
	set(&out.Region, o.Region)
	set(&out.Endpoint, o.Endpoint)
	set(&out.AssumeRole.RoleARN, o.RoleARN)
	set(&out.AssumeRole.SessionName, o.RoleSessionName)
	set(&out.AssumeRole.ExternalID, o.RoleExternalID)
	out.Path = NormalizePath(out.Path)
	return &out
}

// Validate checks the configuration for errors. Every failure is a
// *UsageError.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &UsageError{Msg: "Please specify a bucket."}
	}
	if err := c.validateFile(); err != nil {
		return &UsageError{Msg: err.Error()}
	}
	return nil
}

// NormalizePath strips leading slashes from a repo path.
func NormalizePath(p string) string {
	return strings.TrimLeft(p, "/")
}

// Target returns bucket/path for messages.
func (c *Config) Target() string {
	return c.Bucket + "/" + c.Path
}
