// Package domain holds the types shared by the indexer control plane's
// storage, supervision, and HTTP layers.
package domain

import "time"

// Status is the indexer lifecycle state.
type Status string

const (
	StatusCreated        Status = "Created"
	StatusRunning        Status = "Running"
	StatusStopped        Status = "Stopped"
	StatusFailedRunning  Status = "FailedRunning"
	StatusFailedStopping Status = "FailedStopping"
)

// Type dispatches which sink binary an indexer spawns.
type Type string

const (
	TypeWebhook  Type = "Webhook"
	TypePostgres Type = "Postgres"
	TypeConsole  Type = "Console"
)

// ValidType reports whether t is one of the known indexer types.
func ValidType(t Type) bool {
	switch t {
	case TypeWebhook, TypePostgres, TypeConsole:
		return true
	}
	return false
}

// DefaultStartingBlock is used when a record doesn't specify one.
const DefaultStartingBlock int64 = 1

// Indexer is the sole persisted aggregate of the control plane.
type Indexer struct {
	ID                     string    `json:"id"`
	Status                 Status    `json:"status"`
	Type                   Type      `json:"type"`
	ProcessID              *int      `json:"process_id,omitempty"`
	TargetURL              *string   `json:"target_url,omitempty"`
	TableName              *string   `json:"table_name,omitempty"`
	StatusServerPort       int32     `json:"status_server_port"`
	CustomConnectionString *string   `json:"custom_connection_string,omitempty"`
	StartingBlock          *int64    `json:"starting_block,omitempty"`
	IndexerID              *string   `json:"indexer_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// EffectiveStartingBlock returns StartingBlock or the default.
func (i *Indexer) EffectiveStartingBlock() int64 {
	if i.StartingBlock != nil {
		return *i.StartingBlock
	}
	return DefaultStartingBlock
}

// EffectiveIndexerID returns the external sink id: IndexerID if set,
// else TableName for Postgres indexers, else the record id.
func (i *Indexer) EffectiveIndexerID() string {
	if i.IndexerID != nil && *i.IndexerID != "" {
		return *i.IndexerID
	}
	if i.Type == TypePostgres && i.TableName != nil {
		return *i.TableName
	}
	return i.ID
}

// Validate checks the per-type required fields: a Webhook indexer needs a
// target URL, a Postgres indexer needs a table name.
func (i *Indexer) Validate() error {
	if !ValidType(i.Type) {
		return &ValidationError{Field: "indexer_type", Message: "unknown indexer type"}
	}
	switch i.Type {
	case TypeWebhook:
		if i.TargetURL == nil || *i.TargetURL == "" {
			return &ValidationError{Field: "target_url", Message: "target_url is required for Webhook indexers"}
		}
	case TypePostgres:
		if i.TableName == nil || *i.TableName == "" {
			return &ValidationError{Field: "table_name", Message: "table_name is required for Postgres indexers"}
		}
	}
	return nil
}

// ValidationError reports a client-fault input problem (→ HTTP 400).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StatusResponse is the child's GetStatus probe payload.
type StatusResponse struct {
	Status        int    `json:"status"`
	StartingBlock int64  `json:"starting_block"`
	CurrentBlock  int64  `json:"current_block"`
	HeadBlock     int64  `json:"head_block"`
	Reason        string `json:"reason,omitempty"`
}

// HealthyStatus is the probe's "serving" status code.
const HealthyStatus = 1
