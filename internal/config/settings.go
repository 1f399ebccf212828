package config

import (
	"context"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// SettingsProvider resolves per-user settings: environment defaults, then the catalog's
// defaults profile, then the user's own profile.
type SettingsProvider struct {
	base    domain.UserSettings
	catalog *Catalog
}

func NewSettingsProvider(base domain.UserSettings, catalog *Catalog) *SettingsProvider {
	if catalog == nil {
		catalog = &Catalog{}
	}
	return &SettingsProvider{base: base, catalog: catalog}
}

func (p *SettingsProvider) ForUser(_ context.Context, userID string) (domain.UserSettings, error) {
	s := p.base
	s.UserID = userID
	s.OCRLanguages = append([]string(nil), p.base.OCRLanguages...)
	s.DocumentTypes = append([]domain.DocumentType(nil), p.catalog.DocumentTypes...)
	s.Integrations = nil

	p.catalog.Defaults.apply(&s)
	if profile, ok := p.catalog.Users[userID]; ok {
		profile.apply(&s)
	}
	return s, nil
}

func (pr Profile) apply(s *domain.UserSettings) {
	if pr.OCREnabled != nil {
		s.OCREnabled = *pr.OCREnabled
	}
	if len(pr.OCRLanguages) > 0 {
		s.OCRLanguages = append([]string(nil), pr.OCRLanguages...)
	}
	if pr.Pricing != nil {
		s.Pricing = *pr.Pricing
	}
	if pr.LLM != nil {
		s.LLM = s.LLM.Merge(*pr.LLM)
	}
	if len(pr.Integrations) > 0 {
		s.Integrations = append([]domain.IntegrationSettings(nil), pr.Integrations...)
	}
}
