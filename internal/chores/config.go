// Package chores runs configured polling tasks on a priority queue and
// generates chore configuration from the package catalog.
package chores

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aosc-dev/puis/internal/detect"
)

// Spec is one chore in chores.yaml. Empty fields are dropped on
// serialization.
type Spec struct {
	Chore    string `yaml:"chore"`
	URL      string `yaml:"url,omitempty"`
	Repo     string `yaml:"repo,omitempty"`
	Branch   string `yaml:"branch,omitempty"`
	Category string `yaml:"category,omitempty"`
	Selector string `yaml:"selector,omitempty"`
	Regex    string `yaml:"regex,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Project  string `yaml:"project,omitempty"`
	Path     string `yaml:"path,omitempty"`

	// IMAP chores are recognized in configuration but not implemented.
	Host         string `yaml:"host,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	Folder       string `yaml:"folder,omitempty"`
	SubjectRegex string `yaml:"subject_regex,omitempty"`
	FromRegex    string `yaml:"from_regex,omitempty"`
	BodyRegex    string `yaml:"body_regex,omitempty"`
}

// Config maps chore names to their specs.
type Config map[string]Spec

// Load reads a chores.yaml file. A missing file is not an error and yields
// an empty config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chores config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chores config: %w", err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

// Save writes the config, with a trailing document of detection failures
// when any are recorded.
func Save(path string, cfg Config, failed []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chores config: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to serialize chores config: %w", err)
	}
	if len(failed) > 0 {
		if err := enc.Encode(failed); err != nil {
			return fmt.Errorf("failed to serialize failure list: %w", err)
		}
	}
	return enc.Close()
}

// Descriptor converts a chore spec to a probe descriptor.
func (s Spec) Descriptor() (*detect.Descriptor, error) {
	d := &detect.Descriptor{
		URL:      s.URL,
		Repo:     s.Repo,
		Branch:   s.Branch,
		Selector: s.Selector,
		Regex:    s.Regex,
		Prefix:   s.Prefix,
		Name:     s.Name,
		Project:  s.Project,
		Path:     s.Path,
		Kind:     s.Category,
	}
	switch s.Chore {
	case "github":
		d.Type = detect.TypeGitHub
	case "gitlab":
		d.Type = detect.TypeGitLab
	case "bitbucket":
		d.Type = detect.TypeBitbucket
		if s.Category != "" {
			d.Kind = s.Category
		}
	case "pypi":
		d.Type = detect.TypePyPI
	case "rubygems":
		d.Type = detect.TypeRubyGems
	case "npm":
		d.Type = detect.TypeNPM
	case "launchpad":
		d.Type = detect.TypeLaunchpad
	case "feed", "sourceforge":
		d.Type = detect.TypeFeed
	case "cgit":
		d.Type = detect.TypeCgit
	case "dirlist":
		d.Type = detect.TypeDirListing
	case "ftp":
		d.Type = detect.TypeFTP
	case "html":
		d.Type = detect.TypeHTML
	case "imap":
		return nil, fmt.Errorf("imap chores are not implemented")
	default:
		return nil, fmt.Errorf("unknown chore type %q", s.Chore)
	}
	return d, nil
}

// SpecFromDescriptor converts a probe descriptor back into its config
// form, for `generate`.
func SpecFromDescriptor(d *detect.Descriptor) Spec {
	return Spec{
		Chore:    string(d.Type),
		URL:      d.URL,
		Repo:     d.Repo,
		Branch:   d.Branch,
		Category: d.Kind,
		Selector: d.Selector,
		Regex:    d.Regex,
		Prefix:   d.Prefix,
		Name:     d.Name,
		Project:  d.Project,
		Path:     d.Path,
	}
}

// SortedNames returns the chore names in stable order.
func (c Config) SortedNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
