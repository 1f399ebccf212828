package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds the configured document types and per-user overrides.
type Catalog struct {
	DocumentTypes []domain.DocumentType
	Defaults      Profile
	Users         map[string]Profile
}

// Profile overrides user settings. Nil and empty fields leave the inherited value alone.
type Profile struct {
	OCREnabled   *bool
	OCRLanguages []string
	Pricing      *domain.Pricing
	LLM          *domain.LLMSettings
	Integrations []domain.IntegrationSettings
}

type catalogFile struct {
	DocumentTypes []documentTypeFile     `yaml:"document_types"`
	Defaults      profileFile            `yaml:"defaults"`
	Users         map[string]profileFile `yaml:"users"`
}

type documentTypeFile struct {
	Name          string            `yaml:"name"`
	TargetDoctype string            `yaml:"target_doctype"`
	Enabled       *bool             `yaml:"enabled"`
	Keywords      keywordList       `yaml:"keywords"`
	ExtractPrompt string            `yaml:"extract_prompt"`
	Patterns      map[string]string `yaml:"patterns"`
}

type profileFile struct {
	OCREnabled   *bool                        `yaml:"ocr_enabled"`
	OCRLanguages []string                     `yaml:"ocr_languages"`
	Pricing      *domain.Pricing              `yaml:"pricing"`
	LLM          *domain.LLMSettings          `yaml:"llm"`
	Integrations []domain.IntegrationSettings `yaml:"integrations"`
}

// keywordList accepts either a YAML sequence or a comma separated string.
type keywordList []string

func (k *keywordList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = domain.SplitKeywords(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*k = items
		return nil
	default:
		return fmt.Errorf("line %d: keywords must be a string or a list", node.Line)
	}
}

// LoadCatalog reads a YAML catalog. An empty path yields the built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog decodes and validates a catalog. Extraction patterns are compiled here so that a
// bad expression fails configuration loading instead of a processing run.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", err)
	}

	cat := &Catalog{Users: make(map[string]Profile, len(file.Users))}
	seen := make(map[string]struct{}, len(file.DocumentTypes))
	for i, ft := range file.DocumentTypes {
		name := strings.TrimSpace(ft.Name)
		if name == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("document type #%d has no name", i+1))
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("document type %q is defined twice", name))
		}
		seen[key] = struct{}{}
		if ft.Enabled != nil && !*ft.Enabled {
			continue
		}

		dt := domain.DocumentType{
			Name:          name,
			TargetDoctype: strings.TrimSpace(ft.TargetDoctype),
			Keywords:      []string(ft.Keywords),
			ExtractPrompt: strings.TrimSpace(ft.ExtractPrompt),
		}
		fields := make([]string, 0, len(ft.Patterns))
		for field := range ft.Patterns {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			p, err := domain.NewExtractionPattern(field, ft.Patterns[field])
			if err != nil {
				return nil, fmt.Errorf("document type %q: %w", name, err)
			}
			dt.Patterns = append(dt.Patterns, p)
		}
		cat.DocumentTypes = append(cat.DocumentTypes, dt)
	}

	var err error
	if cat.Defaults, err = file.Defaults.profile("defaults"); err != nil {
		return nil, err
	}
	for user, pf := range file.Users {
		if cat.Users[user], err = pf.profile("user " + user); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func (p profileFile) profile(scope string) (Profile, error) {
	names := make(map[string]struct{}, len(p.Integrations))
	for _, in := range p.Integrations {
		if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Connector) == "" {
			return Profile{}, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("%s: integrations need a name and a connector", scope))
		}
		if _, dup := names[in.Name]; dup {
			return Profile{}, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("%s: integration %q is defined twice", scope, in.Name))
		}
		names[in.Name] = struct{}{}
	}
	if p.Pricing != nil && (p.Pricing.InputPerMillion < 0 || p.Pricing.OutputPerMillion < 0) {
		return Profile{}, domain.WrapError(domain.ErrInvalidInput, "parse catalog", errors.New(scope+": pricing must not be negative"))
	}
	if p.LLM != nil && strings.TrimSpace(p.LLM.BaseURL) != "" {
		u, err := url.Parse(strings.TrimSpace(p.LLM.BaseURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Profile{}, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("%s: llm base_url %q is not an http(s) URL", scope, p.LLM.BaseURL))
		}
	}
	return Profile(p), nil
}
