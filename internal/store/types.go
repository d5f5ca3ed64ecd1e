package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/config"
)

// ProviderVisibility controls whether discover_tools surfaces a provider's
// tools by default.
type ProviderVisibility string

const (
	VisibilityVisible ProviderVisibility = "visible"
	VisibilityHidden  ProviderVisibility = "hidden"
)

// ProviderOwnership distinguishes providers declared in the static config
// file from ones registered at runtime by a user (register_provider).
type ProviderOwnership string

const (
	OwnershipBuiltIn   ProviderOwnership = "built_in"
	OwnershipUserAdded ProviderOwnership = "user_added"
)

// Provider is a registered MCP server: its connection config plus the
// broker-level metadata layered on top (visibility, ownership, enable flag).
type Provider struct {
	ID          uuid.UUID
	Name        string
	Description string
	Domain      string
	Transport   config.TransportKind
	Config      json.RawMessage
	Visibility  ProviderVisibility
	Enabled     bool
	Ownership   ProviderOwnership
	OwnerID     string
	CreatedAt   time.Time
}

// Tool is one tool exposed by a provider, as captured the last time its
// manifest was indexed.
type Tool struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Name        string
	Description string
	Schema      json.RawMessage
}

// UserProviderPreference overrides a provider's broker-wide Enabled flag for
// one user.
type UserProviderPreference struct {
	UserID     string
	ProviderID uuid.UUID
	Enabled    bool
}

// ProviderSecret is one named, vault-encrypted credential attached to a
// provider. The pool's connector does not inject it into the provider's
// environment.
type ProviderSecret struct {
	ProviderID uuid.UUID
	Name       string
	Ciphertext string
}

// ConfigDefinition describes a recognized system/user config key: its type,
// default, and allowed values. get_config_schema lists these; set_config
// rejects keys that have none.
type ConfigDefinition struct {
	Key             string
	Category        string
	ValueType       string
	DisplayHint     string
	DefaultValue    string
	PossibleValues  []string
	Validators      json.RawMessage
}

// ConfigValue is one stored override of a ConfigDefinition at a given scope.
type ConfigValue struct {
	Key    string
	Scope  config.Scope
	UserID string
	Value  string
}

// BearerToken is an issued API credential. Only TokenHash (SHA-256 of the
// raw token) is ever persisted; the raw token is shown to the caller once,
// at creation time, and never again.
type BearerToken struct {
	ID        uuid.UUID
	UserID    string
	Name      string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// Active reports whether the token is presently usable: not revoked and not
// past its expiry.
func (t BearerToken) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		return false
	}
	return true
}

// AuditEntry is one row of the append-only audit log written after every
// tool invocation.
type AuditEntry struct {
	ID         int64
	Timestamp  time.Time
	UserID     string
	ProviderID *uuid.UUID
	ToolName   string
	Success    bool
	Detail     json.RawMessage
}
