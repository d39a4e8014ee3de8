package stages

import (
	"fmt"
	"strings"

	"github.com/natalia/scriptforge/internal/types"
)

// analystBriefs describe what each analyst scores. The output contract is
// shared; only the brief differs.
var analystBriefs = map[string]string{
	types.DimensionHook:    "Judge the opening hook: does the first line stop the scroll? Penalize slow windups, generic openers, and burying the most surprising fact.",
	types.DimensionPacing:  "Judge pacing and structure: scene lengths, information density per scene, and whether the script builds without dead spots or repetition.",
	types.DimensionEmotion: "Judge emotional resonance: stakes, relatability, concrete human detail, and whether the viewer is given a reason to care.",
	types.DimensionCTA:     "Judge the call to action: is it specific, earned by the content, and natural rather than bolted on?",
}

func buildAnalyzeSourcePrompt(env *Env, source *types.SourceContent) string {
	var sb strings.Builder
	if env.Simplified {
		sb.WriteString("Extract the fields below from the source text. Output ONLY the JSON object.\n\n")
	} else {
		sb.WriteString("You are a story editor for short-form video. Read the source content and produce a structural analysis that is independent of any particular script wording.\n\n")
	}
	sb.WriteString(`Return ONLY valid JSON matching this exact structure:
{
  "angle": "string",      // the single most compelling framing for a 60-second video
  "key_facts": ["string"], // the facts the script must not get wrong, most important first
  "audience": "string",   // who this is for
  "tone": "string"        // the tone that fits the material
}

`)
	sb.WriteString(fmt.Sprintf("Content type: %s\n", contentTypeOrDefault(env, source)))
	if source.Title != "" {
		sb.WriteString(fmt.Sprintf("Title: %s\n", source.Title))
	}
	sb.WriteString("\nSource text:\n\"\"\"\n")
	sb.WriteString(source.Text)
	sb.WriteString("\n\"\"\"\n")
	return sb.String()
}

func buildDraftPrompt(env *Env, st *State) string {
	var sb strings.Builder
	if env.Simplified {
		sb.WriteString("Write the short-form video script described below. Output ONLY the JSON object, no prose.\n\n")
	} else {
		sb.WriteString("You are a short-form video scriptwriter. Draft a 45-75 second script from the analysis and source below. Lead with the hook, keep scenes tight, and end with a call to action.\n\n")
	}
	sb.WriteString(`Return ONLY valid JSON matching this exact structure:
{
  "title": "string",
  "hook": "string",             // the first spoken line
  "scenes": [
    {"id": "s1", "duration_secs": 5.0, "voice_over": "string", "visual": "string", "on_screen_text": "string"}
  ],
  "call_to_action": "string"
}

`)
	sb.WriteString(fmt.Sprintf("Angle: %s\n", st.Analysis.Angle))
	sb.WriteString(fmt.Sprintf("Audience: %s\n", st.Analysis.Audience))
	sb.WriteString(fmt.Sprintf("Tone: %s\n", st.Analysis.Tone))
	sb.WriteString("Key facts:\n")
	for _, fact := range st.Analysis.KeyFacts {
		sb.WriteString("- " + fact + "\n")
	}

	if rev := env.Revision; rev != nil {
		sb.WriteString("\nThis is revision attempt " + fmt.Sprint(rev.Attempt) + ". Reviewer feedback:\n\"\"\"\n")
		sb.WriteString(rev.Feedback)
		sb.WriteString("\n\"\"\"\n")
		if len(rev.TargetSceneIDs) > 0 {
			sb.WriteString(fmt.Sprintf("The feedback targets scenes %s. Rework those scenes; keep the others as close to the previous draft as the feedback allows.\n",
				strings.Join(rev.TargetSceneIDs, ", ")))
		}
		if rev.PreviousDraft != nil && len(rev.PreviousDraft.Scenes) > 0 {
			sb.WriteString("\nPrevious draft:\n")
			sb.WriteString(fmt.Sprintf("  HOOK: %s\n", rev.PreviousDraft.Hook))
			for _, scene := range rev.PreviousDraft.Scenes {
				sb.WriteString(fmt.Sprintf("  [%s] %s\n", scene.ID, scene.VoiceOver))
			}
			sb.WriteString(fmt.Sprintf("  CTA: %s\n", rev.PreviousDraft.CallToAction))
		}
		for _, prior := range rev.History {
			sb.WriteString(fmt.Sprintf("Prior version %d scored %d (%s).\n", prior.Version, prior.OverallScore, prior.Verdict))
		}
	}

	sb.WriteString("\nSource text:\n\"\"\"\n")
	sb.WriteString(st.Source.Text)
	sb.WriteString("\n\"\"\"\n")
	return sb.String()
}

func buildAnalystPrompt(env *Env, dimension string, st *State) string {
	var sb strings.Builder
	if env.Simplified {
		sb.WriteString("Score the script below. Output ONLY the JSON object.\n\n")
	} else {
		sb.WriteString("You are a short-form video performance analyst. ")
		sb.WriteString(analystBriefs[dimension])
		sb.WriteString("\n\n")
	}
	sb.WriteString(`Return ONLY valid JSON matching this exact structure:
{
  "score": 0,               // integer 0-100
  "strengths": ["string"],
  "weaknesses": ["string"],
  "notes": "string"
}

`)
	sb.WriteString(fmt.Sprintf("Content type: %s\n\n", env.ContentType))
	sb.WriteString("Script:\n")
	sb.WriteString(fmt.Sprintf("HOOK: %s\n", st.Draft.Hook))
	for _, scene := range st.Draft.Scenes {
		sb.WriteString(fmt.Sprintf("[%s, %.0fs] VO: %s | VISUAL: %s\n", scene.ID, scene.DurationSecs, scene.VoiceOver, scene.Visual))
	}
	sb.WriteString(fmt.Sprintf("CTA: %s\n", st.Draft.CallToAction))
	return sb.String()
}

func contentTypeOrDefault(env *Env, source *types.SourceContent) types.ContentType {
	if source != nil && source.Type != "" {
		return source.Type
	}
	if env.ContentType != "" {
		return env.ContentType
	}
	return types.ContentTypeNews
}
