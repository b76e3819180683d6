package tutor

import "github.com/bandcoach/bandcoach/internal/llm"

func stringList(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}

func text(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var band = map[string]any{
	"type":        "number",
	"description": "Estimated IELTS band on the 0-9 scale in half-band steps",
}

// SpeakingSchema defines the JSON schema for speaking feedback responses.
var SpeakingSchema = &llm.Schema{
	Name:        "speaking-feedback",
	Description: "IELTS speaking assessment of one transcribed answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"estimated_band":         band,
			"strengths":              stringList("Two or three things the candidate did well"),
			"areas_for_improvement":  stringList("Two or three concrete weaknesses"),
			"vocabulary_feedback":    text("Lexical resource comment"),
			"grammar_feedback":       text("Grammatical range and accuracy comment"),
			"fluency_feedback":       text("Fluency and coherence comment"),
			"pronunciation_feedback": text("Pronunciation comment inferred from the transcript"),
			"tips_for_next":          text("One actionable tip for the next answer"),
		},
		"required": []any{
			"estimated_band", "strengths", "areas_for_improvement",
			"vocabulary_feedback", "grammar_feedback", "fluency_feedback",
			"pronunciation_feedback", "tips_for_next",
		},
		"additionalProperties": false,
	},
}

// WritingSchema defines the JSON schema for writing feedback responses.
var WritingSchema = &llm.Schema{
	Name:        "writing-feedback",
	Description: "IELTS writing assessment of one essay",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"estimated_band":             band,
			"task_achievement":           text("Task achievement or task response comment"),
			"coherence_cohesion":         text("Coherence and cohesion comment"),
			"lexical_resource":           text("Lexical resource comment"),
			"grammatical_range_accuracy": text("Grammatical range and accuracy comment"),
			"strengths":                  stringList("Two or three things the essay did well"),
			"areas_for_improvement":      stringList("Two or three concrete weaknesses"),
		},
		"required": []any{
			"estimated_band", "task_achievement", "coherence_cohesion",
			"lexical_resource", "grammatical_range_accuracy",
			"strengths", "areas_for_improvement",
		},
		"additionalProperties": false,
	},
}

// TaskSchema defines the JSON schema for generated exam prompts.
var TaskSchema = &llm.Schema{
	Name:        "exam-task",
	Description: "A single IELTS speaking or writing prompt",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": text("The full prompt shown to the candidate"),
			"topic":  text("Short topic label, two to four words"),
		},
		"required":             []any{"prompt", "topic"},
		"additionalProperties": false,
	},
}

// ExplainSchema defines the JSON schema for /explain answers.
var ExplainSchema = &llm.Schema{
	Name:        "explanation",
	Description: "A short explanation of an IELTS or English language concept",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"explanation": text("Clear explanation in at most three short paragraphs"),
			"examples":    stringList("Up to three example sentences or mini-cases"),
		},
		"required":             []any{"explanation", "examples"},
		"additionalProperties": false,
	},
}

// DefineSchema defines the JSON schema for /define answers.
var DefineSchema = &llm.Schema{
	Name:        "definition",
	Description: "A learner's dictionary entry for one English word",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"word":           text("The headword as written by the learner"),
			"part_of_speech": text("Part of speech, e.g. noun or verb"),
			"senses":         stringList("One entry per meaning; empty when the word is not English"),
			"example":        text("Example sentence in an IELTS-style context"),
			"synonyms":       stringList("Common synonyms, possibly none"),
		},
		"required":             []any{"word", "part_of_speech", "senses", "example", "synonyms"},
		"additionalProperties": false,
	},
}
