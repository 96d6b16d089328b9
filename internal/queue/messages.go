package queue

import "github.com/indexerhq/controlplane/internal/domain"

// StartPayload is published to QueueStart by create, by the Supervisor on
// retry, and by startup recovery.
type StartPayload struct {
	IndexerID string `json:"id"`
	Attempt   int    `json:"attempt_no"`
}

// StopPayload is published to QueueStop by the Supervisor on child exit.
type StopPayload struct {
	IndexerID string        `json:"id"`
	Status    domain.Status `json:"status"`
}

// FailPayload is published to QueueFail by the Supervisor on
// retry-exhaustion.
type FailPayload struct {
	IndexerID string `json:"id"`
}
