package models

import "time"

// SecondaryModelSyncWithPrimary makes the memory refresher reuse the
// primary chat model instead of a dedicated cheaper one.
const SecondaryModelSyncWithPrimary = "sync_with_primary"

// DefaultContextMessageCount bounds the recent-message window handed to
// the prompt assembler when a config does not override it.
const DefaultContextMessageCount = 10

// APIConfig is one OpenAI-compatible provider configuration. Multiple
// keys rotate round-robin; IsActive marks the config used for new calls.
type APIConfig struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	BaseURL             string    `json:"base_url"`
	APIKeys             []string  `json:"api_keys"`
	Model               string    `json:"model"`
	SecondaryModel      string    `json:"secondary_model,omitempty"`
	ContextMessageCount int       `json:"context_message_count,omitempty"`
	TimeoutMs           int       `json:"timeout_ms,omitempty"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ContextWindow returns the configured recent-message window, defaulted.
func (c *APIConfig) ContextWindow() int {
	if c.ContextMessageCount <= 0 {
		return DefaultContextMessageCount
	}
	return c.ContextMessageCount
}

// RefresherModel returns the model the memory-table refresher should use.
func (c *APIConfig) RefresherModel() string {
	if c.SecondaryModel == "" || c.SecondaryModel == SecondaryModelSyncWithPrimary {
		return c.Model
	}
	return c.SecondaryModel
}

// Complete reports whether the config can be used for an outbound call.
func (c *APIConfig) Complete() bool {
	return c.BaseURL != "" && len(c.APIKeys) > 0 && c.Model != ""
}
