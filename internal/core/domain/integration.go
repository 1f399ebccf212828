package domain

import "time"

// IntegrationSettings is one configured downstream connector for a user.
type IntegrationSettings struct {
	Name         string            `json:"name" yaml:"name"`
	Connector    string            `json:"connector" yaml:"connector"`
	Enabled      bool              `json:"enabled" yaml:"enabled"`
	AutoSync     bool              `json:"auto_sync" yaml:"auto_sync"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url"`
	APIKey       string            `json:"-" yaml:"api_key"`
	APISecret    string            `json:"-" yaml:"api_secret"`
	Subject      string            `json:"subject,omitempty" yaml:"subject"`
	FieldMapping map[string]string `json:"field_mapping,omitempty" yaml:"field_mapping"`
}

type IntegrationStatus string

const (
	IntegrationSuccess IntegrationStatus = "success"
	IntegrationError   IntegrationStatus = "error"
)

// SyncResult is what a connector reports for one document.
type SyncResult struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
	Message   string `json:"message,omitempty"`
}

// MappingField describes a field a connector can populate in the target system.
type MappingField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ConnectorInfo is the public description of a registered connector.
type ConnectorInfo struct {
	Name          string         `json:"name"`
	MappingFields []MappingField `json:"mapping_fields"`
}

// IntegrationLog is the activity record kept per connector invocation.
type IntegrationLog struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	UserID      string            `json:"user_id"`
	Integration string            `json:"integration"`
	Connector   string            `json:"connector"`
	Status      IntegrationStatus `json:"status"`
	Message     string            `json:"message"`
	Reference   string            `json:"reference,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
