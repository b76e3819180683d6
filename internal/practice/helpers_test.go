package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bandcoach/bandcoach/internal/audio"
	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/recommend"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/transport"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

const (
	testUser int64 = 42
	testChat int64 = 4200
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// harness is an engine wired to in-memory collaborators.
type harness struct {
	t      *testing.T
	ctx    context.Context
	eng    *Engine
	deps   Deps
	opts   Options
	store  *store.Store
	msgr   *transport.Recorder
	llm    *llm.MockProvider
	stt    *llm.MockTranscriber
	obs    *countingObserver
	tmpDir string
}

type harnessOption func(*harness)

func withCatalog(c *content.Catalog) harnessOption {
	return func(h *harness) { h.deps.Content = c }
}

func withGeneratedTasks() harnessOption {
	return func(h *harness) {
		h.opts.GenerateTasks = true
		h.deps.Tasks = tutor.New(h.llm, tutor.DefaultConfig())
	}
}

func withFlakySessions(f *flakySessions) harnessOption {
	return func(h *harness) {
		f.SessionRepo = h.deps.Sessions
		h.deps.Sessions = f
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.OpenSQLite(ctx, fmt.Sprintf("file:practice_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tmp := t.TempDir()
	mediaRoot := filepath.Join(tmp, "media")
	writeFile(t, filepath.Join(mediaRoot, "listening", "cafe.mp3"), "ID3")
	writeFile(t, filepath.Join(mediaRoot, "charts", "sales.png"), "PNG")

	ws, err := audio.NewWorkspace(filepath.Join(tmp, "voice"))
	require.NoError(t, err)

	h := &harness{
		t:      t,
		ctx:    ctx,
		store:  st,
		msgr:   transport.NewRecorder(map[string][]byte{"voice-1": []byte("OggS"), "voice-2": []byte("OggS")}),
		llm:    llm.NewMockProvider(),
		stt:    llm.NewMockTranscriber(),
		obs:    &countingObserver{},
		tmpDir: tmp,
	}
	assessor, err := skill.NewAssessor(skill.DefaultTable())
	require.NoError(t, err)

	h.deps = Deps{
		Content:     testCatalog(t),
		Sessions:    st.Sessions(),
		Learners:    st.Learners(),
		Messenger:   h.msgr,
		Scorer:      scoring.New(tutor.New(h.llm, tutor.DefaultConfig())),
		Assistant:   tutor.New(h.llm, tutor.DefaultConfig()),
		Voice:       audio.NewPipeline(ws, audio.CopyConverter{}, h.stt, nil),
		Media:       &audio.LocalStorage{Root: mediaRoot},
		Assessor:    assessor,
		Recommender: recommend.New(rand.NewPCG(1, 2)),
		Text:        i18n.MustLoad(),
		Observer:    h.obs,
		Now:         func() time.Time { return testNow },
	}
	for _, o := range opts {
		o(h)
	}
	h.eng, err = New(h.deps, h.opts)
	require.NoError(t, err)
	return h
}

// restart builds a fresh engine over the same store, as after a process
// restart: the conversation registry starts empty.
func (h *harness) restart() {
	h.t.Helper()
	eng, err := New(h.deps, h.opts)
	require.NoError(h.t, err)
	h.eng = eng
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func testCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	c, err := content.NewCatalog(
		[]content.ReadingSet{{
			ID:      "reading_set_1",
			Title:   "Urban Beekeeping",
			Passage: "Bees are increasingly kept on city rooftops.",
			Questions: []content.ReadingQuestion{
				{ID: "rs1_q1", Text: "Where are the bees kept?", Options: []string{"On rooftops", "In forests", "Underground"}, CorrectIndex: 0},
			},
		}},
		[]content.ListeningSet{{
			ID:       "cafe",
			Name:     "At the cafe",
			AudioRef: "listening/cafe.mp3",
			Questions: []content.ListeningQuestion{
				{Number: 1, Text: "What does the customer order?", Options: content.OptionSet{{Key: "A", Text: "Tea"}, {Key: "B", Text: "Coffee"}}, CorrectKey: "B"},
				{Number: 2, Text: "Where does she sit?", Options: content.OptionSet{{Key: "A", Text: "Outside"}, {Key: "B", Text: "Inside"}}, CorrectKey: "A"},
				{Number: 3, Text: "How does she pay?", Options: content.OptionSet{{Key: "A", Text: "Cash"}, {Key: "B", Text: "Card"}, {Key: "C", Text: "Phone"}}, CorrectKey: "C"},
			},
		}},
		[]content.SpeakingTask{
			{Part: 1, Prompt: "Where is your hometown?", Topic: "hometown"},
			{Part: 2, Prompt: "Describe a memorable journey.", Topic: "journey"},
			{Part: 3, Prompt: "Why do people enjoy travelling?", Topic: "journey"},
			{Part: 3, Prompt: "How are cities changing?", Topic: "hometown"},
		},
		[]content.WritingTask{
			{TaskType: 1, Prompt: "Summarise the sales chart.", ImageRef: "charts/sales.png"},
			{TaskType: 2, Prompt: "Do the benefits of tourism outweigh the drawbacks?"},
		},
	)
	require.NoError(t, err)
	return c
}

func twoQuestionReading(t *testing.T) *content.Catalog {
	t.Helper()
	c, err := content.NewCatalog([]content.ReadingSet{{
		ID:      "reading_set_2",
		Title:   "Tides",
		Passage: "Tides are caused by the moon.",
		Questions: []content.ReadingQuestion{
			{ID: "rs2_q1", Text: "What causes tides?", Options: []string{"Wind", "The moon"}, CorrectIndex: 1},
			{ID: "rs2_q2", Text: "How many tides a day?", Options: []string{"Two", "Five"}, CorrectIndex: 0},
		},
	}}, nil, nil, nil)
	require.NoError(t, err)
	return c
}

func user() transport.User {
	return transport.User{ID: testUser, FirstName: "Ana", Username: "ana", LanguageCode: "en"}
}

func (h *harness) command(name string) {
	h.eng.Handle(h.ctx, transport.Event{Kind: transport.KindCommand, User: user(), ChatID: testChat, Command: name})
}

func (h *harness) commandWith(name, args string) {
	h.eng.Handle(h.ctx, transport.Event{Kind: transport.KindCommand, User: user(), ChatID: testChat, Command: name, Args: args})
}

func (h *harness) press(d callback.Data) {
	h.pressRaw(callback.MustEncode(d))
}

func (h *harness) pressRaw(data string) {
	h.eng.Handle(h.ctx, transport.Event{Kind: transport.KindCallback, User: user(), ChatID: testChat, CallbackID: "cb-" + data, Data: data})
}

func (h *harness) sendText(text string) {
	h.eng.Handle(h.ctx, transport.Event{Kind: transport.KindText, User: user(), ChatID: testChat, Text: text})
}

func (h *harness) sendVoice(fileID string) {
	h.eng.Handle(h.ctx, transport.Event{Kind: transport.KindVoice, User: user(), ChatID: testChat,
		Voice: &transport.Voice{FileID: fileID, Duration: 12, MimeType: "audio/ogg"}})
}

func (h *harness) txt(key string, args ...i18n.Args) string {
	return h.deps.Text.T("en", key, args...)
}

func (h *harness) texts() []string {
	return h.msgr.Texts(testChat)
}

func (h *harness) lastText() string {
	texts := h.texts()
	require.NotEmpty(h.t, texts)
	return texts[len(texts)-1]
}

func (h *harness) state() (*State, bool) {
	return h.eng.States().Get(Key{UserID: testUser, ChatID: testChat})
}

// sessions returns every session of the test user, newest first.
func (h *harness) sessions() []*store.PracticeSession {
	h.t.Helper()
	out, err := h.store.Sessions().List(h.ctx, store.SessionFilter{UserID: testUser})
	require.NoError(h.t, err)
	return out
}

func (h *harness) onlySession() *store.PracticeSession {
	h.t.Helper()
	all := h.sessions()
	require.Len(h.t, all, 1)
	return all[0]
}

func (h *harness) learner() *store.LearnerProfile {
	h.t.Helper()
	p, err := h.store.Learners().Get(h.ctx, testUser)
	require.NoError(h.t, err)
	return p
}

func (h *harness) queueLLM(v any) {
	raw, err := json.Marshal(v)
	require.NoError(h.t, err)
	h.llm.AddResponse(llm.MockResponse{Content: raw})
}

func (h *harness) queueTranscript(text string) {
	h.stt.Add(llm.MockTranscript{Text: text})
}

func speakingFeedback(band float64) tutor.SpeakingFeedback {
	return tutor.SpeakingFeedback{
		EstimatedBand:         band,
		Strengths:             []string{"Clear structure"},
		AreasForImprovement:   []string{"Use more linking words"},
		VocabularyFeedback:    "Good range of travel vocabulary.",
		GrammarFeedback:       "Mostly accurate past tenses.",
		FluencyFeedback:       "Some hesitation.",
		PronunciationFeedback: "Generally clear.",
		TipsForNext:           "Extend each answer with an example.",
	}
}

func writingFeedback(band float64) tutor.WritingFeedback {
	return tutor.WritingFeedback{
		EstimatedBand:            band,
		TaskAchievement:          "All parts of the task are addressed.",
		CoherenceCohesion:        "Logical paragraphing.",
		LexicalResource:          "Adequate range.",
		GrammaticalRangeAccuracy: "Some errors in complex sentences.",
		Strengths:                []string{"Clear position"},
		AreasForImprovement:      []string{"Support ideas with examples"},
	}
}

// countingObserver records telemetry calls.
type countingObserver struct {
	mu       sync.Mutex
	started  map[string]int
	finished map[string]int
	errs     map[string]int
	scored   map[string]int
}

func (o *countingObserver) bump(m *map[string]int, k string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *m == nil {
		*m = map[string]int{}
	}
	(*m)[k]++
}

func (o *countingObserver) FlowStarted(section string) { o.bump(&o.started, section) }
func (o *countingObserver) FlowFinished(section, outcome string) {
	o.bump(&o.finished, section+"/"+outcome)
}
func (o *countingObserver) FlowError(kind string) { o.bump(&o.errs, kind) }
func (o *countingObserver) ObserveScoring(section string, _ time.Duration) {
	o.bump(&o.scored, section)
}

func (o *countingObserver) count(m map[string]int, k string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return m[k]
}

// flakySessions fails Update while failUpdate is set.
type flakySessions struct {
	store.SessionRepo
	mu         sync.Mutex
	failUpdate bool
}

var errDiskFull = errors.New("disk I/O error: database or disk is full")

func (f *flakySessions) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpdate = v
}

func (f *flakySessions) Update(ctx context.Context, id string, fn func(*store.PracticeSession) error) (*store.PracticeSession, error) {
	f.mu.Lock()
	fail := f.failUpdate
	f.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return f.SessionRepo.Update(ctx, id, fn)
}

func startEvent(s content.Section) transport.Event {
	data := callback.MustEncode(callback.Start(s))
	return transport.Event{Kind: transport.KindCallback, User: user(), ChatID: testChat, CallbackID: "cb-" + data, Data: data}
}

func answerEvent(question, option string) transport.Event {
	data := callback.MustEncode(callback.Answer(content.Reading, question, option))
	return transport.Event{Kind: transport.KindCallback, User: user(), ChatID: testChat, CallbackID: "cb-" + data, Data: data}
}
