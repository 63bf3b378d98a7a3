package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/smartfolderhq/smartfolder/internal/agent"
	"github.com/smartfolderhq/smartfolder/internal/classify"
	"github.com/smartfolderhq/smartfolder/internal/config"
	"github.com/smartfolderhq/smartfolder/internal/content"
	"github.com/smartfolderhq/smartfolder/internal/metadata"
	"github.com/smartfolderhq/smartfolder/internal/models"
	"github.com/smartfolderhq/smartfolder/internal/prompt"
	"github.com/smartfolderhq/smartfolder/internal/runlog"
	"github.com/smartfolderhq/smartfolder/internal/state"
	"github.com/smartfolderhq/smartfolder/internal/tools"
)

// processJob is the queue handler: it runs the full pipeline for one
// settled file and records the outcome in the folder's history (and
// the run index when present). The returned error is for the queue's
// log; the audit trail is written here either way.
func (s *Supervisor) processJob(ctx context.Context, folder, path string, dryRun bool) error {
	spec := s.specFor(folder)
	if spec == nil {
		return fmt.Errorf("no spec for folder %s", folder)
	}

	rel, err := filepath.Rel(folder, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	logger := s.logger.With("folder", folder, "file", rel)
	logger.Info("processing file", "dryRun", dryRun)

	started := time.Now()
	result, modelID, runErr := s.runPipeline(ctx, spec, path, rel, dryRun, logger)

	rec := state.HistoryRecord{
		Timestamp: time.Now().UTC(),
		File:      rel,
		Result:    result,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := state.AppendHistory(spec.HistoryPath, rec); err != nil {
		logger.Error("cannot append history", "error", err)
	}
	// The marker's lastRunAt tracks job runs, not just attach time.
	if _, err := state.EnsureMetadata(folder, spec.Prompt); err != nil {
		logger.Warn("cannot refresh folder metadata", "error", err)
	}

	if s.runs != nil {
		summary := ""
		if result != nil {
			summary, _ = result["finalText"].(string)
		}
		if err := s.runs.Record(&runlog.Run{
			Folder:    folder,
			File:      rel,
			Model:     modelID,
			OK:        runErr == nil,
			Summary:   summary,
			StartedAt: started,
		}); err != nil {
			logger.Warn("cannot index run", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("file processed", "duration", time.Since(started).Round(time.Millisecond))
	return nil
}

// runPipeline performs classify → extract → select model → provide
// content → build prompt → drive the agent loop.
func (s *Supervisor) runPipeline(ctx context.Context, spec *config.FolderSpec, path, rel string, dryRun bool, logger *slog.Logger) (map[string]any, string, error) {
	cat := classify.Classify(filepath.Base(path), "")

	core, err := metadata.ExtractCore(path, rel, cat)
	if err != nil {
		return nil, "", fmt.Errorf("extract metadata: %w", err)
	}
	typed := metadata.ExtractTyped(path, core.Category)

	capability := models.Select(core.Category, core.Size, s.cfg.AI.Model)
	logger.Debug("model selected", "model", capability.ID, "category", core.Category)

	file, err := content.Provide(core, typed, capability, s.contentLimits())
	if err != nil {
		return nil, capability.ID, fmt.Errorf("provide content: %w", err)
	}
	file.AvailableTools = intersect(file.AvailableTools, spec.Tools)

	registry := tools.NewRegistry(spec.Path, file.AvailableTools, dryRun, s.suppressor, s.logger)
	driver := agent.NewDriver(s.client, registry, capability.ID, s.cfg.AI.MaxToolCalls, s.logger)

	outcome, err := driver.Run(ctx, prompt.System(spec.Prompt), prompt.User(file))
	if err != nil {
		return nil, capability.ID, err
	}

	result := map[string]any{
		"model":     capability.ID,
		"category":  string(core.Category),
		"steps":     outcome.Steps,
		"toolCalls": len(outcome.ToolResults),
	}
	if outcome.FinalText != "" {
		result["finalText"] = outcome.FinalText
	}
	if outcome.CapReached {
		result["capReached"] = true
	}
	if dryRun {
		result["dryRun"] = true
	}
	return result, capability.ID, nil
}

// contentLimits maps the configured threshold overrides onto the
// content layer's limits; zero fields fall back to the defaults there.
func (s *Supervisor) contentLimits() content.Limits {
	l := s.cfg.GlobalDefaults.Content
	return content.Limits{
		FullTextMax:    l.FullTextMaxBytes,
		PartialTextMax: l.PartialTextMaxBytes,
		ImageMax:       l.ImageMaxBytes,
		PDFMax:         l.PDFMaxBytes,
		AudioMax:       l.AudioMaxBytes,
		VideoMax:       l.VideoMaxBytes,
		HeadLines:      l.HeadLines,
		TailLines:      l.TailLines,
	}
}

// intersect keeps the category's tools that the folder also allows,
// preserving registry order.
func intersect(available, allowed []string) []string {
	if len(allowed) == 0 {
		return available
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	var out []string
	for _, id := range available {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
