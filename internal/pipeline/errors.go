// Package pipeline orchestrates script generation runs: the stage loop, the
// retry and revision policies, delivery of finished scripts, and the worker
// pool that executes queued items.
package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/types"
)

// NotFoundError indicates the referenced record does not exist.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ForbiddenError indicates the record exists but belongs to another owner.
type ForbiddenError struct {
	Kind string
	ID   uuid.UUID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s does not belong to the requesting owner", e.Kind, e.ID)
}

// ConflictError indicates the operation is valid in general but not in the
// record's current state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotFailedError indicates a retry or reset was requested for an item that is
// not in the failed state.
type NotFailedError struct {
	ID     uuid.UUID
	Status types.ItemStatus
}

func (e *NotFailedError) Error() string {
	return fmt.Sprintf("item %s is %s, only failed items can be retried", e.ID, e.Status)
}

// RetryLimitExceededError indicates the item has used up its retry budget.
type RetryLimitExceededError struct {
	ID    uuid.UUID
	Limit int
}

func (e *RetryLimitExceededError) Error() string {
	return fmt.Sprintf("item %s has reached the retry limit of %d", e.ID, e.Limit)
}

// RevisionLimitExceededError indicates the script has used up its revision
// budget. It is returned before any fork is created.
type RevisionLimitExceededError struct {
	ScriptID uuid.UUID
	Limit    int
}

func (e *RevisionLimitExceededError) Error() string {
	return fmt.Sprintf("script %s has reached the revision limit of %d", e.ScriptID, e.Limit)
}

// QuotaExceededError indicates the owner has hit the daily run quota.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily run quota of %d reached", e.Limit)
}

// CredentialMissingError indicates the run cannot proceed because the owner
// has no provider credential on file. It is fatal for the item: retrying
// cannot help until a credential is added.
type CredentialMissingError struct {
	Provider string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("no %s credential on file; add one before running the pipeline", e.Provider)
}

// QueueFullError indicates the work queue is at capacity.
type QueueFullError struct{}

func (e *QueueFullError) Error() string {
	return "work queue is full, try again shortly"
}

// StageExecutionError wraps a stage failure with the stage it happened at.
type StageExecutionError struct {
	Stage int
	Name  string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage, e.Name, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}
