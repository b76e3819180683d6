package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bandcoach/bandcoach/internal/audio"
	"github.com/bandcoach/bandcoach/internal/callback"
	"github.com/bandcoach/bandcoach/internal/config"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/i18n"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/metrics"
	"github.com/bandcoach/bandcoach/internal/practice"
	"github.com/bandcoach/bandcoach/internal/recommend"
	"github.com/bandcoach/bandcoach/internal/scoring"
	"github.com/bandcoach/bandcoach/internal/server"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/telegram"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		log, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return serve(cmd.Context(), cfg, log)
	},
}

// botCommands is the command menu published to Telegram, in menu order.
var botCommands = []struct{ name, desc string }{
	{"practice", "Choose a section to practise"},
	{"stats", "Your level and progress"},
	{"cancel", "Stop the current practice"},
	{"explain", "Explain an IELTS or English concept"},
	{"define", "Define an English word"},
	{"help", "Show all commands"},
	{"start", "Restart the conversation"},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	catalog, err := loadCatalog(cfg.Content.Dir)
	if err != nil {
		return err
	}
	sum := catalog.Summary()
	log.Info("content loaded",
		zap.Int("reading_sets", sum.ReadingSets),
		zap.Int("listening_sets", sum.ListeningSets),
		zap.Int("speaking_tasks", sum.SpeakingTasks),
		zap.Int("writing_tasks", sum.WritingTasks),
	)

	provider, err := llm.NewProvider(ctx, cfg.LLM, st.Events(), log.Named("llm"))
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	tut := tutor.New(provider, cfg.Practice.Tutor)

	assessor, err := skill.NewAssessor(cfg.Skill.Thresholds)
	if err != nil {
		return err
	}
	media, err := audio.NewStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("media storage: %w", err)
	}
	text, err := i18n.Load(log.Named("i18n"))
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	m := metrics.New()

	bot, err := telegram.New(cfg.Telegram, nil, log.Named("telegram"))
	if err != nil {
		return err
	}
	menu := make(map[string]string, len(botCommands))
	order := make([]string, 0, len(botCommands))
	for _, c := range botCommands {
		menu[c.name] = c.desc
		order = append(order, c.name)
	}
	if err := bot.SetCommands(menu, order...); err != nil {
		log.Warn("publish command menu", zap.Error(err))
	}

	deps := practice.Deps{
		Content:     catalog,
		Sessions:    st.Sessions(),
		Learners:    st.Learners(),
		Messenger:   bot,
		Scorer:      scoring.New(tut),
		Tasks:       tut,
		Assistant:   tut,
		Media:       media,
		Assessor:    assessor,
		Recommender: recommend.New(nil),
		Text:        text,
		Observer:    m,
		Log:         log.Named("practice"),
	}
	if voice, err := newVoice(cfg.Speech, cfg.LLM.Retry, log); err != nil {
		log.Warn("voice answers disabled", zap.Error(err))
	} else {
		deps.Voice = voice
	}

	engine, err := practice.New(deps, practice.Options{GenerateTasks: cfg.Practice.GenerateTasks})
	if err != nil {
		return err
	}

	limiter := server.NewLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	sink := limiter.Guard(engine.Submit, m.UpdateDropped)

	opts := server.Options{
		Sink:    sink,
		DB:      st,
		Metrics: m,
		Log:     log.Named("http"),
	}
	webhook := cfg.Telegram.WebhookURL != ""
	if webhook {
		opts.Webhook = bot
		opts.Secret = cfg.Telegram.WebhookSecret
	}
	srv := server.New(cfg.HTTP, opts)

	if webhook {
		if err := bot.SetWebhook(cfg.Telegram.WebhookURL); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	if !webhook {
		g.Go(func() error { return bot.Poll(gctx, sink) })
	}
	log.Info("bot running", zap.String("username", bot.Username()), zap.Bool("webhook", webhook))

	err = g.Wait()

	// Let in-flight conversations finish before the store closes.
	engine.Close()
	engine.Wait()
	log.Info("bot stopped")
	return err
}

func loadCatalog(dir string) (*content.Catalog, error) {
	var (
		c   *content.Catalog
		err error
	)
	if dir == "" {
		c, err = content.Default()
	} else {
		c, err = content.LoadDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("load content from %q: %w", dir, err)
	}
	// Ids must also survive the trip through a button payload.
	if err := callback.Check(c); err != nil {
		return nil, fmt.Errorf("content in %q: %w", dir, err)
	}
	return c, nil
}

// newVoice builds the voice-note pipeline. Without it speaking answers
// fail with a scoring error.
func newVoice(cfg config.SpeechConfig, retry llm.RetryConfig, log *zap.Logger) (practice.VoiceTranscriber, error) {
	stt, err := llm.NewTranscriber(cfg.Transcribe, retry, log.Named("stt"))
	if err != nil {
		return nil, err
	}
	dir := cfg.TempDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "bandcoach-voice")
	}
	ws, err := audio.NewWorkspace(dir)
	if err != nil {
		return nil, err
	}
	var conv audio.Converter = audio.CopyConverter{}
	if cfg.FFmpeg {
		conv = &audio.FFmpegConverter{SampleRate: cfg.SampleRate, Bitrate: cfg.Bitrate}
	}
	return audio.NewPipeline(ws, conv, stt, log.Named("voice")), nil
}
