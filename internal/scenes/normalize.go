// Package scenes locates and normalizes the scene list inside heterogeneous
// model responses. Different models put the list under different fields, so
// extraction is an explicit ordered list of named strategies rather than ad
// hoc property probing.
package scenes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/natalia/scriptforge/internal/types"
)

// Strategy attempts to pull a scene list out of a decoded response. It
// returns ok=false when the response doesn't match its shape; a later
// strategy may still succeed.
type Strategy struct {
	Name    string
	Extract func(doc map[string]json.RawMessage) ([]types.Scene, bool)
}

// fieldStrategy matches a raw scene array under the given top-level key.
func fieldStrategy(key string) Strategy {
	return Strategy{
		Name: "field:" + key,
		Extract: func(doc map[string]json.RawMessage) ([]types.Scene, bool) {
			raw, ok := doc[key]
			if !ok {
				return nil, false
			}
			return decodeSceneArray(raw)
		},
	}
}

// nestedStrategy matches a scene array one level down, under parent.key.
func nestedStrategy(parent, key string) Strategy {
	return Strategy{
		Name: fmt.Sprintf("nested:%s.%s", parent, key),
		Extract: func(doc map[string]json.RawMessage) ([]types.Scene, bool) {
			rawParent, ok := doc[parent]
			if !ok {
				return nil, false
			}
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(rawParent, &inner); err != nil {
				return nil, false
			}
			raw, ok := inner[key]
			if !ok {
				return nil, false
			}
			return decodeSceneArray(raw)
		},
	}
}

// DefaultStrategies is the extraction order. First match wins.
func DefaultStrategies() []Strategy {
	return []Strategy{
		fieldStrategy("scenes"),
		fieldStrategy("scene_list"),
		fieldStrategy("shots"),
		fieldStrategy("segments"),
		nestedStrategy("script", "scenes"),
		nestedStrategy("result", "scenes"),
	}
}

// Extract runs the strategies in order against a decoded JSON object and
// returns the first scene list found, normalized. The returned name
// identifies the strategy that matched, for diagnostics.
func Extract(doc map[string]json.RawMessage, strategies []Strategy) ([]types.Scene, string, error) {
	for _, strategy := range strategies {
		if scenes, ok := strategy.Extract(doc); ok && len(scenes) > 0 {
			return Normalize(scenes), strategy.Name, nil
		}
	}
	return nil, "", fmt.Errorf("no extraction strategy matched the response shape")
}

// decodeSceneArray decodes a raw JSON array into scenes, tolerating the
// voice-over field appearing under a few different names.
func decodeSceneArray(raw json.RawMessage) ([]types.Scene, bool) {
	var loose []struct {
		ID           string  `json:"id"`
		Index        int     `json:"index"`
		DurationSecs float64 `json:"duration_secs"`
		Duration     float64 `json:"duration"`
		VoiceOver    string  `json:"voice_over"`
		Narration    string  `json:"narration"`
		Text         string  `json:"text"`
		Visual       string  `json:"visual"`
		OnScreenText string  `json:"on_screen_text"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, false
	}

	scenes := make([]types.Scene, 0, len(loose))
	for _, s := range loose {
		voiceOver := s.VoiceOver
		if voiceOver == "" {
			voiceOver = s.Narration
		}
		if voiceOver == "" {
			voiceOver = s.Text
		}
		duration := s.DurationSecs
		if duration == 0 {
			duration = s.Duration
		}
		scenes = append(scenes, types.Scene{
			ID:           s.ID,
			Index:        s.Index,
			DurationSecs: duration,
			VoiceOver:    voiceOver,
			Visual:       s.Visual,
			OnScreenText: s.OnScreenText,
		})
	}

	// An array of objects with no narration at all is not a scene list.
	for _, s := range scenes {
		if strings.TrimSpace(s.VoiceOver) != "" {
			return scenes, true
		}
	}
	return nil, false
}

// Normalize assigns sequential indexes and stable IDs to scenes that are
// missing them. Existing IDs are kept so revision feedback can target them.
func Normalize(scenes []types.Scene) []types.Scene {
	normalized := make([]types.Scene, len(scenes))
	copy(normalized, scenes)
	for i := range normalized {
		normalized[i].Index = i
		if strings.TrimSpace(normalized[i].ID) == "" {
			normalized[i].ID = fmt.Sprintf("s%d", i+1)
		}
	}
	return normalized
}
