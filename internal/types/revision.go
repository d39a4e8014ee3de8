package types

// VersionSummary is a compact record of one prior script version, carried in
// the revision context so drafting can see how earlier attempts scored.
type VersionSummary struct {
	Version      int     `json:"version"`
	OverallScore int     `json:"overall_score"`
	Verdict      Verdict `json:"verdict"`
	Feedback     string  `json:"feedback,omitempty"`
}

// RevisionContext is present only on forked pipeline items. It carries the
// reviewer feedback, the scene IDs the feedback targets, the draft being
// revised, the attempt number, and summaries of prior versions.
type RevisionContext struct {
	Feedback       string   `json:"feedback"`
	TargetSceneIDs []string `json:"target_scene_ids,omitempty"`
	// PreviousDraft is the current version's draft at fork time. The fork
	// inherits only pre-drafting payloads, so without this the drafting stage
	// could not show the model what it is revising.
	PreviousDraft *ScriptDraft     `json:"previous_draft,omitempty"`
	Attempt       int              `json:"attempt"`
	History       []VersionSummary `json:"history,omitempty"`
}
