package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/types"
)

// memStore is an in-memory Store and credentials.Source for tests. It deep
// copies on the way in and out so tests catch code that mutates shared state.
type memStore struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*types.PipelineItem
	scripts  map[uuid.UUID]*types.Script
	versions map[uuid.UUID][]*types.ScriptVersion
	creds    map[string][]byte
	usage    map[uuid.UUID]int
	now      func() time.Time

	// appendVersionErr fails the next AppendVersion call, once.
	appendVersionErr error
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[uuid.UUID]*types.PipelineItem),
		scripts:  make(map[uuid.UUID]*types.Script),
		versions: make(map[uuid.UUID][]*types.ScriptVersion),
		creds:    make(map[string][]byte),
		usage:    make(map[uuid.UUID]int),
		now:      time.Now,
	}
}

func copyItem(item *types.PipelineItem) *types.PipelineItem {
	if item == nil {
		return nil
	}
	out := *item
	if item.StagePayloads != nil {
		out.StagePayloads = make(map[int]json.RawMessage, len(item.StagePayloads))
		for k, v := range item.StagePayloads {
			out.StagePayloads[k] = append(json.RawMessage(nil), v...)
		}
	}
	if item.Revision != nil {
		rev := *item.Revision
		rev.TargetSceneIDs = append([]string(nil), item.Revision.TargetSceneIDs...)
		rev.History = append([]types.VersionSummary(nil), item.Revision.History...)
		if item.Revision.PreviousDraft != nil {
			draft := *item.Revision.PreviousDraft
			draft.Scenes = append([]types.Scene(nil), item.Revision.PreviousDraft.Scenes...)
			rev.PreviousDraft = &draft
		}
		out.Revision = &rev
	}
	return &out
}

func copyScript(s *types.Script) *types.Script {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func copyVersion(v *types.ScriptVersion) *types.ScriptVersion {
	if v == nil {
		return nil
	}
	out := *v
	out.Draft.Scenes = append([]types.Scene(nil), v.Draft.Scenes...)
	out.TargetSceneIDs = append([]string(nil), v.TargetSceneIDs...)
	return &out
}

func (m *memStore) CreateItem(_ context.Context, item *types.PipelineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = copyItem(item)
	return nil
}

func (m *memStore) GetItem(_ context.Context, id uuid.UUID) (*types.PipelineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyItem(m.items[id]), nil
}

func (m *memStore) ListItemsByOwner(_ context.Context, ownerID uuid.UUID) ([]*types.PipelineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.PipelineItem
	for _, item := range m.items {
		if item.OwnerID == ownerID {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) mutateItem(id uuid.UUID, fn func(item *types.PipelineItem) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	return fn(item)
}

func (m *memStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		now := m.now()
		item.Status = types.ItemProcessing
		item.StartedAt = &now
		return nil
	})
}

func (m *memStore) SaveStagePayload(_ context.Context, id uuid.UUID, stage int, payload []byte) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		if stage < item.CurrentStage {
			return fmt.Errorf("stage %d payload of item %s is immutable, item already advanced past it", stage, id)
		}
		if item.StagePayloads == nil {
			item.StagePayloads = make(map[int]json.RawMessage)
		}
		item.StagePayloads[stage] = append(json.RawMessage(nil), payload...)
		return nil
	})
}

func (m *memStore) AdvanceStage(_ context.Context, id uuid.UUID, nextStage int) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		item.CurrentStage = nextStage
		return nil
	})
}

func (m *memStore) LinkScript(_ context.Context, id uuid.UUID, scriptID uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		item.ScriptID = &scriptID
		return nil
	})
}

func (m *memStore) MarkCompleted(_ context.Context, id uuid.UUID, scriptID uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		now := m.now()
		item.Status = types.ItemCompleted
		item.ScriptID = &scriptID
		item.CompletedAt = &now
		item.ErrorMessage = ""
		item.ErrorStage = nil
		return nil
	})
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, stage int, message string) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		item.Status = types.ItemFailed
		item.ErrorMessage = message
		item.ErrorStage = &stage
		return nil
	})
}

func (m *memStore) MarkCancelled(_ context.Context, id uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		now := m.now()
		item.Status = types.ItemCancelled
		item.CompletedAt = &now
		return nil
	})
}

func (m *memStore) RequestCancel(_ context.Context, id uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		item.CancelRequested = true
		return nil
	})
}

func (m *memStore) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return false, fmt.Errorf("item %s not found", id)
	}
	return item.CancelRequested, nil
}

func (m *memStore) IncrementRetry(_ context.Context, id uuid.UUID) (int, error) {
	var count int
	err := m.mutateItem(id, func(item *types.PipelineItem) error {
		item.RetryCount++
		item.Status = types.ItemQueued
		item.ErrorMessage = ""
		item.ErrorStage = nil
		count = item.RetryCount
		return nil
	})
	return count, err
}

func (m *memStore) ResetItem(_ context.Context, id uuid.UUID) error {
	return m.mutateItem(id, func(item *types.PipelineItem) error {
		item.Status = types.ItemQueued
		item.RetryCount = 0
		item.ErrorMessage = ""
		item.ErrorStage = nil
		return nil
	})
}

func (m *memStore) ResetOrphanedProcessing(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.Status == types.ItemProcessing {
			item.Status = types.ItemQueued
			count++
		}
	}
	return count, nil
}

func (m *memStore) ForkItem(_ context.Context, fork *types.PipelineItem, resumeStage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fork.ParentID == nil || fork.ScriptID == nil {
		return fmt.Errorf("fork requires parent and script ids")
	}
	parent, ok := m.items[*fork.ParentID]
	if !ok {
		return fmt.Errorf("parent item %s not found", *fork.ParentID)
	}
	script, ok := m.scripts[*fork.ScriptID]
	if !ok {
		return fmt.Errorf("script %s not found", *fork.ScriptID)
	}

	stored := copyItem(fork)
	stored.StagePayloads = make(map[int]json.RawMessage)
	for stage, payload := range parent.StagePayloads {
		if stage < resumeStage {
			stored.StagePayloads[stage] = append(json.RawMessage(nil), payload...)
		}
	}
	m.items[stored.ID] = stored

	script.RevisionCount++
	script.Status = types.ScriptProcessing
	script.UpdatedAt = m.now()
	return nil
}

func (m *memStore) CreateScript(_ context.Context, script *types.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[script.ID] = copyScript(script)
	return nil
}

func (m *memStore) GetScript(_ context.Context, id uuid.UUID) (*types.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyScript(m.scripts[id]), nil
}

func (m *memStore) ListScriptsByOwner(_ context.Context, ownerID uuid.UUID) ([]*types.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Script
	for _, script := range m.scripts {
		if script.OwnerID == ownerID {
			out = append(out, copyScript(script))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SetScriptStatus(_ context.Context, id uuid.UUID, status types.ScriptStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	script, ok := m.scripts[id]
	if !ok {
		return fmt.Errorf("script %s not found", id)
	}
	script.Status = status
	script.UpdatedAt = m.now()
	return nil
}

func (m *memStore) RecordRejection(_ context.Context, id uuid.UUID, reasonCategory, reasonText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	script, ok := m.scripts[id]
	if !ok {
		return fmt.Errorf("script %s not found", id)
	}
	script.Status = types.ScriptRejected
	script.ReasonCategory = reasonCategory
	script.ReasonText = reasonText
	script.UpdatedAt = m.now()
	return nil
}

func (m *memStore) AppendVersion(_ context.Context, version *types.ScriptVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendVersionErr != nil {
		err := m.appendVersionErr
		m.appendVersionErr = nil
		return err
	}
	existing := m.versions[version.ScriptID]
	for _, v := range existing {
		v.IsCurrent = false
	}
	stored := copyVersion(version)
	stored.Version = len(existing) + 1
	stored.IsCurrent = true
	m.versions[version.ScriptID] = append(existing, stored)
	version.Version = stored.Version
	return nil
}

func (m *memStore) GetCurrentVersion(_ context.Context, scriptID uuid.UUID) (*types.ScriptVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[scriptID] {
		if v.IsCurrent {
			return copyVersion(v), nil
		}
	}
	return nil, nil
}

func (m *memStore) ListVersions(_ context.Context, scriptID uuid.UUID) ([]*types.ScriptVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.ScriptVersion, 0, len(m.versions[scriptID]))
	for _, v := range m.versions[scriptID] {
		out = append(out, copyVersion(v))
	}
	return out, nil
}

func (m *memStore) IncrementUsage(_ context.Context, ownerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[ownerID]++
	return m.usage[ownerID], nil
}

func (m *memStore) ResetAllUsage(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := int64(len(m.usage))
	m.usage = make(map[uuid.UUID]int)
	return count, nil
}

func credKey(ownerID uuid.UUID, provider string) string {
	return ownerID.String() + "|" + provider
}

func (m *memStore) GetSealedCredential(_ context.Context, ownerID uuid.UUID, provider string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sealed, ok := m.creds[credKey(ownerID, provider)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), sealed...), nil
}

func (m *memStore) PutSealedCredential(_ context.Context, ownerID uuid.UUID, provider string, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[credKey(ownerID, provider)] = append([]byte(nil), sealed...)
	return nil
}
