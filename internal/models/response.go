package models

// GenerateResponse carries the hosted artifact URLs, four for a split
// composite.
type GenerateResponse struct {
	Result []string `json:"result"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type Manifest struct {
	SchemaVersion string               `json:"schema_version"`
	DisplayName   string               `json:"display_name"`
	Namespace     string               `json:"namespace"`
	Auth          ManifestAuth         `json:"auth"`
	ContactEmail  string               `json:"contact_email,omitempty"`
	LogEndpoint   string               `json:"log_endpoint"`
	Credentials   []CredentialEndpoint `json:"credentials"`
}

type ManifestAuth struct {
	Type string `json:"type"`
}

type CredentialEndpoint struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name"`
	Properties  []CredentialField `json:"properties"`
}

type CredentialField struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
}
