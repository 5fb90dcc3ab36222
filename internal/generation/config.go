package generation

import (
	"golang.org/x/text/language"

	"comfyremote/internal/i18n"
	"comfyremote/internal/infra"
	"comfyremote/internal/tracker"
	"comfyremote/internal/workflow"
)

// TrackerConfig projects the polling limits out of the environment config.
// Non-positive values fall back to the tracker defaults.
func TrackerConfig(cfg *infra.Config) tracker.Config {
	if cfg == nil {
		return tracker.DefaultConfig()
	}
	return tracker.Config{
		Interval:           cfg.PollInterval,
		MaxAttempts:        cfg.PollMaxAttempts,
		QueueWaitCeiling:   cfg.QueueWaitCeiling,
		PreparationCeiling: cfg.PreparationCeiling,
		ErrorThreshold:     cfg.ErrorThreshold,
	}
}

// RequestDefaults projects the request defaults out of the environment
// config.
func RequestDefaults(cfg *infra.Config) workflow.Defaults {
	d := workflow.StockDefaults()
	if cfg == nil {
		return d
	}
	if cfg.DefaultWidth > 0 {
		d.Width = cfg.DefaultWidth
	}
	if cfg.DefaultHeight > 0 {
		d.Height = cfg.DefaultHeight
	}
	if cfg.DefaultBatchSize > 0 {
		d.BatchSize = cfg.DefaultBatchSize
	}
	if cfg.MaxPromptLength > 0 {
		d.MaxPromptLength = cfg.MaxPromptLength
	}
	if cfg.CheckpointName != "" {
		d.Checkpoint = cfg.CheckpointName
	}
	d.NegativePrompt = cfg.DefaultNegativePrompt
	return d
}

// DefaultLocale parses DEFAULT_LOCALE, falling back to English.
func DefaultLocale(cfg *infra.Config) language.Tag {
	if cfg == nil || cfg.DefaultLocale == "" {
		return i18n.Default
	}
	return i18n.Match(cfg.DefaultLocale)
}

// Builder returns the workflow template at WORKFLOW_PATH, or the built-in
// graph when none is configured.
func Builder(cfg *infra.Config) (workflow.Builder, error) {
	if cfg == nil || cfg.WorkflowPath == "" {
		return workflow.Default{}, nil
	}
	tmpl, err := workflow.LoadTemplate(cfg.WorkflowPath)
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// CompletionPolicy returns the queue heuristic with COMPLETION_GRACE_MS.
func CompletionPolicy(cfg *infra.Config) tracker.CompletionPolicy {
	if cfg == nil {
		return tracker.NewHeuristicPolicy(0)
	}
	return tracker.NewHeuristicPolicy(cfg.CompletionGrace)
}
