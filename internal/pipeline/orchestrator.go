package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/credentials"
	"github.com/natalia/scriptforge/internal/ingestion"
	"github.com/natalia/scriptforge/internal/llm"
	"github.com/natalia/scriptforge/internal/stages"
	"github.com/natalia/scriptforge/internal/types"
)

// credentialProvider names the LLM provider whose per-owner credential the
// pipeline runs on.
const credentialProvider = "gemini"

// ClientFactory builds an LLM client for one item run. Injected so tests can
// substitute a fake.
type ClientFactory func(ctx context.Context, apiKey string) (llm.Client, error)

// Orchestrator drives a single pipeline item through the stage registry:
// hydrate prior state, run the remaining stages in order, persist each payload
// before advancing, and deliver the script the gate decided on.
type Orchestrator struct {
	store     Store
	creds     *credentials.Store
	fetcher   ingestion.Fetcher
	newClient ClientFactory
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(store Store, creds *credentials.Store, fetcher ingestion.Fetcher, newClient ClientFactory, logger *slog.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Orchestrator{
		store:     store,
		creds:     creds,
		fetcher:   fetcher,
		newClient: newClient,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run executes one pipeline item to a terminal or paused state. A stage
// failure marks the item failed at that stage and returns the wrapped error;
// cancellation and successful completion return nil.
func (o *Orchestrator) Run(ctx context.Context, itemID uuid.UUID) error {
	item, err := o.store.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to load item: %w", err)
	}
	if item == nil {
		return &NotFoundError{Kind: "item", ID: itemID}
	}
	if item.Status != types.ItemQueued {
		return fmt.Errorf("item %s is %s, expected queued", itemID, item.Status)
	}

	if err := o.store.MarkProcessing(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to mark item processing: %w", err)
	}
	o.metrics.ItemsStarted.Inc()

	logger := o.logger.With("item_id", item.ID, "owner_id", item.OwnerID, "resume_stage", item.CurrentStage)
	logger.Info("pipeline run started")

	apiKey, err := o.creds.Get(ctx, item.OwnerID, credentialProvider)
	if err != nil {
		var notFound *credentials.NotFoundError
		if errors.As(err, &notFound) {
			missing := &CredentialMissingError{Provider: credentialProvider}
			o.failItem(ctx, logger, item, item.CurrentStage, missing.Error())
			return missing
		}
		o.failItem(ctx, logger, item, item.CurrentStage, fmt.Sprintf("credential lookup failed: %v", err))
		return fmt.Errorf("failed to resolve credential: %w", err)
	}

	client, err := o.newClient(ctx, apiKey)
	if err != nil {
		o.failItem(ctx, logger, item, item.CurrentStage, fmt.Sprintf("llm client init failed: %v", err))
		return fmt.Errorf("failed to create llm client: %w", err)
	}
	defer client.Close()

	st := &stages.State{}
	if err := stages.HydrateState(item.StagePayloads, item.CurrentStage, st); err != nil {
		o.failItem(ctx, logger, item, item.CurrentStage, err.Error())
		return err
	}

	env := &stages.Env{
		Client:      client,
		Fetcher:     o.fetcher,
		SourceRef:   item.SourceRef,
		ContentType: item.ContentType,
		Revision:    item.Revision,
	}
	// The fetched source is the authority on content type (a transcript ref
	// becomes a reel). A resumed run hydrates the source instead of refetching,
	// so the override has to be reapplied here or scoring weights would differ
	// between a fresh run and a resumed one.
	if st.Source != nil && st.Source.Type != "" {
		env.ContentType = st.Source.Type
	}

	for i := item.CurrentStage; i < stages.Count; i++ {
		// Cancellation is cooperative: checked between stages, never mid-stage.
		cancelled, err := o.store.IsCancelRequested(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("failed to check cancellation: %w", err)
		}
		if cancelled {
			if err := o.store.MarkCancelled(ctx, item.ID); err != nil {
				return fmt.Errorf("failed to mark item cancelled: %w", err)
			}
			o.metrics.ItemsCancelled.Inc()
			logger.Info("pipeline run cancelled", "stage", i)
			return nil
		}

		def := &stages.Registry[i]
		started := o.now()
		payload, err := o.runStage(ctx, logger, def, env, st)
		o.metrics.StageDuration.WithLabelValues(def.Name).Observe(o.now().Sub(started).Seconds())
		if err != nil {
			stageErr := &StageExecutionError{Stage: i, Name: def.Name, Err: err}
			o.failItem(ctx, logger, item, i, stageErr.Error())
			o.metrics.ItemsFailed.WithLabelValues(def.Name).Inc()
			return stageErr
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			stageErr := &StageExecutionError{Stage: i, Name: def.Name, Err: fmt.Errorf("failed to encode payload: %w", err)}
			o.failItem(ctx, logger, item, i, stageErr.Error())
			return stageErr
		}
		if err := o.store.SaveStagePayload(ctx, item.ID, i, raw); err != nil {
			return fmt.Errorf("failed to persist stage %d payload: %w", i, err)
		}
		if err := o.store.AdvanceStage(ctx, item.ID, i+1); err != nil {
			return fmt.Errorf("failed to advance past stage %d: %w", i, err)
		}
		logger.Info("stage completed", "stage", i, "name", def.Name)
	}

	scriptID, err := o.deliver(ctx, logger, item, st)
	if err != nil {
		o.failItem(ctx, logger, item, stages.StageGate, fmt.Sprintf("delivery failed: %v", err))
		return err
	}

	if err := o.store.MarkCompleted(ctx, item.ID, scriptID); err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}
	o.metrics.ItemsCompleted.WithLabelValues(string(st.Gate.Decision)).Inc()
	logger.Info("pipeline run completed", "script_id", scriptID, "decision", st.Gate.Decision)
	return nil
}

// runStage executes one stage with the in-run recovery policies: a single
// automatic retry when an auto-retryable stage times out, and a single repair
// re-attempt with simplified prompts when the model output is malformed.
// Neither consumes the item's user-facing retry budget.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, def *stages.Definition, env *stages.Env, st *stages.State) (any, error) {
	payload, err := def.Run(ctx, env, st)
	if err == nil {
		return payload, nil
	}

	var timeout *llm.TimeoutError
	if def.AutoRetryOnTimeout && errors.As(err, &timeout) {
		logger.Warn("stage timed out, retrying once", "stage", def.Name, "timeout", timeout.Timeout)
		o.metrics.StageRetries.WithLabelValues(def.Name, "timeout").Inc()
		payload, err = def.Run(ctx, env, st)
		if err == nil {
			return payload, nil
		}
	}

	var malformed *llm.MalformedOutputError
	if errors.As(err, &malformed) {
		logger.Warn("malformed model output, re-attempting with simplified prompt", "stage", def.Name)
		o.metrics.StageRetries.WithLabelValues(def.Name, "repair").Inc()
		env.Simplified = true
		payload, err = def.Run(ctx, env, st)
		env.Simplified = false
	}
	return payload, err
}

func (o *Orchestrator) failItem(ctx context.Context, logger *slog.Logger, item *types.PipelineItem, stage int, message string) {
	if err := o.store.MarkFailed(ctx, item.ID, stage, message); err != nil {
		logger.Error("failed to record item failure", "error", err)
		return
	}
	logger.Error("pipeline run failed", "stage", stage, "message", message)
}
