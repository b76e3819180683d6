package tutor

import "github.com/bandcoach/bandcoach/internal/llm"

// SpeakingFeedback is the examiner-style assessment of one spoken answer.
type SpeakingFeedback struct {
	EstimatedBand         float64  `json:"estimated_band"`
	Strengths             []string `json:"strengths"`
	AreasForImprovement   []string `json:"areas_for_improvement"`
	VocabularyFeedback    string   `json:"vocabulary_feedback"`
	GrammarFeedback       string   `json:"grammar_feedback"`
	FluencyFeedback       string   `json:"fluency_feedback"`
	PronunciationFeedback string   `json:"pronunciation_feedback"`
	TipsForNext           string   `json:"tips_for_next"`
}

// WritingFeedback is the criterion-by-criterion assessment of one essay.
type WritingFeedback struct {
	EstimatedBand            float64  `json:"estimated_band"`
	TaskAchievement          string   `json:"task_achievement"`
	CoherenceCohesion        string   `json:"coherence_cohesion"`
	LexicalResource          string   `json:"lexical_resource"`
	GrammaticalRangeAccuracy string   `json:"grammatical_range_accuracy"`
	Strengths                []string `json:"strengths"`
	AreasForImprovement      []string `json:"areas_for_improvement"`
}

// SpeakingRequest is the input for scoring a transcribed answer.
type SpeakingRequest struct {
	Part       int
	Question   string
	Transcript string
}

// WritingRequest is the input for scoring an essay.
type WritingRequest struct {
	TaskType int
	Question string
	Essay    string

	// Chart is the Task 1 visual, sent to the model so the report is judged
	// against the real figures.
	Chart *llm.Image
}

func (r WritingRequest) HasChart() bool { return r.Chart != nil && len(r.Chart.Data) > 0 }

// TaskKind selects what GenerateTask produces.
type TaskKind string

const (
	TaskSpeaking TaskKind = "speaking"
	TaskWriting  TaskKind = "writing"
)

// TaskRequest asks for a fresh exam-style prompt.
type TaskRequest struct {
	Kind TaskKind

	// Part is the speaking part (1-3) or writing task type (1-2).
	Part int

	// Topic, when set, must be carried over into the generated prompt.
	// Part 3 questions follow the topic of the earlier part.
	Topic string

	// Previous is the prompt the learner just answered, if any.
	Previous string
}

// GeneratedTask is a prompt produced by the model.
type GeneratedTask struct {
	Prompt string `json:"prompt"`
	Topic  string `json:"topic"`
}

// ExplainRequest asks for an explanation of an IELTS or English concept.
type ExplainRequest struct {
	Query string

	// Language is the learner's language code, e.g. "es".
	Language string
}

// Explanation is the tutor's answer to /explain.
type Explanation struct {
	Explanation string   `json:"explanation"`
	Examples    []string `json:"examples"`
}

// DefineRequest asks for a dictionary entry for one word.
type DefineRequest struct {
	Word     string
	Language string
}

// Definition is a learner's dictionary entry. Senses is empty when the
// model does not recognise the word.
type Definition struct {
	Word         string   `json:"word"`
	PartOfSpeech string   `json:"part_of_speech"`
	Senses       []string `json:"senses"`
	Example      string   `json:"example"`
	Synonyms     []string `json:"synonyms"`
}
