package domain

import "strings"

// UserSettings is the resolved per-user configuration for one processing run.
type UserSettings struct {
	UserID        string
	OCREnabled    bool
	OCRLanguages  []string
	Pricing       Pricing
	LLM           LLMSettings
	DocumentTypes []DocumentType
	Integrations  []IntegrationSettings
}

// LLMSettings points one user at their own LLM backend. Empty fields inherit the deployment value.
type LLMSettings struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// Merge returns s with every non-empty field of o laid over it.
func (s LLMSettings) Merge(o LLMSettings) LLMSettings {
	if v := strings.TrimSpace(o.BaseURL); v != "" {
		s.BaseURL = v
	}
	if v := strings.TrimSpace(o.Model); v != "" {
		s.Model = v
	}
	if v := strings.TrimSpace(o.APIKey); v != "" {
		s.APIKey = v
	}
	return s
}

func (s UserSettings) ExtractOptions() ExtractOptions {
	return ExtractOptions{OCREnabled: s.OCREnabled, Languages: s.OCRLanguages}
}

// AutoSyncIntegrations returns integrations that should run after field extraction.
func (s UserSettings) AutoSyncIntegrations() []IntegrationSettings {
	out := make([]IntegrationSettings, 0, len(s.Integrations))
	for _, in := range s.Integrations {
		if in.Enabled && in.AutoSync {
			out = append(out, in)
		}
	}
	return out
}

func (s UserSettings) Integration(name string) (IntegrationSettings, bool) {
	for _, in := range s.Integrations {
		if in.Name == name {
			return in, true
		}
	}
	return IntegrationSettings{}, false
}
