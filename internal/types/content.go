// Package types defines the shared domain types for the script pipeline.
package types

import (
	"strings"
	"time"
)

// ContentType identifies the kind of source content a script is built from.
type ContentType string

const (
	ContentTypeNews ContentType = "news"
	ContentTypeReel ContentType = "reel"
)

// SourceContent is the raw material a pipeline run starts from: either a
// news article or the transcript of a short-form video.
type SourceContent struct {
	Ref         string      `json:"ref"`
	Type        ContentType `json:"type"`
	Title       string      `json:"title,omitempty"`
	Text        string      `json:"text"`
	SourceURL   string      `json:"source_url,omitempty"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
}

// SourceAnalysis is the structural read of the source content, produced
// before any drafting happens. It is independent of script wording, which is
// why revisions can reuse it verbatim.
type SourceAnalysis struct {
	Angle    string   `json:"angle"`
	KeyFacts []string `json:"key_facts"`
	Audience string   `json:"audience"`
	Tone     string   `json:"tone"`
}

// Scene is one beat of a short-form video script.
type Scene struct {
	ID           string  `json:"id"`
	Index        int     `json:"index"`
	DurationSecs float64 `json:"duration_secs"`
	VoiceOver    string  `json:"voice_over"`
	Visual       string  `json:"visual"`
	OnScreenText string  `json:"on_screen_text,omitempty"`
}

// ScriptDraft is the drafted script: an ordered scene list plus the framing
// elements reviewers give feedback on.
type ScriptDraft struct {
	Title        string  `json:"title"`
	Hook         string  `json:"hook"`
	Scenes       []Scene `json:"scenes"`
	CallToAction string  `json:"call_to_action"`
}

// FullText renders the draft as plain narration text, hook first, scenes in
// order, call to action last.
func (d *ScriptDraft) FullText() string {
	var sb strings.Builder
	if d.Hook != "" {
		sb.WriteString(d.Hook)
		sb.WriteString("\n\n")
	}
	for _, scene := range d.Scenes {
		sb.WriteString(scene.VoiceOver)
		sb.WriteString("\n")
	}
	if d.CallToAction != "" {
		sb.WriteString("\n")
		sb.WriteString(d.CallToAction)
	}
	return strings.TrimSpace(sb.String())
}

// SceneIDs returns the scene identifiers in order.
func (d *ScriptDraft) SceneIDs() []string {
	ids := make([]string, 0, len(d.Scenes))
	for _, scene := range d.Scenes {
		ids = append(ids, scene.ID)
	}
	return ids
}
