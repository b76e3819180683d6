package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/audio"
	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Generate a speaking or writing task and score an answer from stdin (no database)",
	Long: `Generate a task with the configured AI provider, read an answer from stdin
and print the feedback the bot would give.

This is a stateless developer tool: nothing is stored and no learner is involved.
Useful for checking prompt quality and scoring behaviour against a new model.`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().String("section", "speaking", "speaking or writing")
	previewCmd.Flags().Int("part", 2, "Speaking part (1-3) or writing task type (1-2)")
	previewCmd.Flags().String("topic", "", "Topic to carry into the generated task")
	previewCmd.Flags().Bool("task-only", false, "Print the generated task without scoring")
	previewCmd.Flags().String("chart", "", "Image file attached to a writing task 1 answer")
}

func runPreview(cmd *cobra.Command, args []string) error {
	sectionVal, _ := cmd.Flags().GetString("section")
	part, _ := cmd.Flags().GetInt("part")
	topic, _ := cmd.Flags().GetString("topic")
	taskOnly, _ := cmd.Flags().GetBool("task-only")
	chartPath, _ := cmd.Flags().GetString("chart")

	section, err := content.ParseSection(sectionVal)
	if err != nil {
		return err
	}
	var kind tutor.TaskKind
	switch {
	case section == content.Speaking && part >= 1 && part <= 3:
		kind = tutor.TaskSpeaking
	case section == content.Writing && (part == 1 || part == 2):
		kind = tutor.TaskWriting
	case section.AIScored():
		return fmt.Errorf("invalid part %d for %s", part, section)
	default:
		return fmt.Errorf("preview supports speaking and writing, not %s", section)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	// No event recorder: preview calls are not stored.
	ctx := cmd.Context()
	provider, err := llm.NewProvider(ctx, cfg.LLM, nil, zap.NewNop())
	if err != nil {
		return fmt.Errorf("LLM provider: %w", err)
	}
	t := tutor.New(provider, cfg.Practice.Tutor)

	task, err := t.GenerateTask(ctx, tutor.TaskRequest{Kind: kind, Part: part, Topic: topic})
	if err != nil {
		return fmt.Errorf("generate task: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d (topic: %s)\n%s\n", section.DisplayName(), part, task.Topic, task.Prompt)
	if taskOnly {
		return nil
	}

	fmt.Fprintln(out, "\nType your answer, then press Ctrl-D:")
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	answer := strings.TrimSpace(string(raw))
	if answer == "" {
		return fmt.Errorf("empty answer")
	}

	var feedback any
	if section == content.Speaking {
		feedback, err = t.ScoreSpeaking(ctx, tutor.SpeakingRequest{Part: part, Question: task.Prompt, Transcript: answer})
	} else {
		req := tutor.WritingRequest{TaskType: part, Question: task.Prompt, Essay: answer}
		if chartPath != "" {
			local := &audio.LocalStorage{Root: filepath.Dir(chartPath)}
			blob, err := local.Load(ctx, filepath.Base(chartPath))
			if err != nil {
				return fmt.Errorf("load chart: %w", err)
			}
			req.Chart = &llm.Image{MediaType: blob.ContentType, Data: blob.Data}
		}
		feedback, err = t.ScoreWriting(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("score answer: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(feedback)
}
