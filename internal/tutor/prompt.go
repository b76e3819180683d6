package tutor

import (
	"bytes"
	"text/template"
)

const speakingSystemPrompt = `You are a certified IELTS Speaking examiner. You receive an automatic transcript of a candidate's spoken answer.

Instructions:
- Estimate the band using the public IELTS Speaking band descriptors: fluency and coherence, lexical resource, grammatical range and accuracy, pronunciation.
- The transcript comes from speech recognition. Judge pronunciation only from evidence such as misrecognised words, and say so when evidence is thin.
- Use half-band steps.
- Write every comment in plain English addressed to the candidate, one or two sentences each.
- Keep strengths and areas for improvement concrete and tied to the transcript.`

const writingSystemPrompt = `You are a certified IELTS Writing examiner.

Instructions:
- Estimate the band using the public IELTS Writing band descriptors for the given task: task achievement (Task 1) or task response (Task 2), coherence and cohesion, lexical resource, grammatical range and accuracy.
- Penalise essays below the word minimum (150 words for Task 1, 250 for Task 2).
- Use half-band steps.
- Write every comment in plain English addressed to the candidate, two or three sentences each.
- Quote short phrases from the essay when pointing out errors.`

const taskSystemPrompt = `You write authentic IELTS exam prompts.

Rules:
- Produce exactly one prompt for the requested section and part.
- Speaking Part 1: a short personal question about everyday life.
- Speaking Part 2: a cue card starting with "Describe..." followed by three or four "You should say:" bullet points.
- Speaking Part 3: an abstract discussion question that extends the given topic to society in general.
- Writing Task 1: no image is shown with the prompt, so describe the chart, table, process or map in words and give its key figures in the prompt itself.
- Writing Task 2: an opinion, discussion or problem-solution essay question with the standard instruction line.
- When a topic is given, stay on it.
- Do not repeat the previous prompt.`

const explainSystemPrompt = `You are an experienced IELTS tutor answering a candidate's question.

Instructions:
- Explain the concept clearly and concisely for an intermediate learner.
- Relate it to the IELTS exam when that helps, e.g. which section or band descriptor it affects.
- Give short examples the candidate can reuse.
- Write in the requested language; keep quoted English examples in English.`

const defineSystemPrompt = `You are an IELTS vocabulary assistant writing learner's dictionary entries.

Instructions:
- Give the part of speech and one sense per distinct meaning, most common first.
- Add one example sentence in an academic or IELTS-style context, and common synonyms if any.
- Write the senses in the requested language; the example and synonyms stay in English.
- If the word is not an English word, return an empty list of senses.`

var explainUserTemplate = template.Must(template.New("explain").Parse(`Answer in: {{.LanguageName}}
Concept to explain: "{{.Query}}"`))

var defineUserTemplate = template.Must(template.New("define").Parse(`Answer in: {{.LanguageName}}
Word to define: "{{.Word}}"`))

var speakingUserTemplate = template.Must(template.New("speaking").Parse(`Speaking part: {{.Part}}
Question: {{.Question}}

Transcript:
{{.Transcript}}`))

var writingUserTemplate = template.Must(template.New("writing").Parse(`Writing task: {{.TaskType}}
Question: {{.Question}}
{{if .HasChart}}The chart the question refers to is attached.
{{end}}
Essay:
{{.Essay}}`))

var taskUserTemplate = template.Must(template.New("task").Parse(`Section: {{.Kind}}
Part: {{.Part}}
{{if .Topic}}Topic: {{.Topic}}
{{end}}{{if .Previous}}Previous prompt: {{.Previous}}
{{end}}`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
