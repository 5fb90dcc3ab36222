package workflow

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// ErrInvalidRequest is matched by every validation failure.
var ErrInvalidRequest = errors.New("invalid generation request")

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Request is the user-facing generation payload.
type Request struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
	Steps          int    `json:"steps,omitempty"`
}

const (
	MinDimension = 64
	MaxDimension = 4096
	MaxBatchSize = 8
	MaxSteps     = 150
	maxSeed      = 1_000_000_000
)

// Defaults fill in what a request leaves out.
type Defaults struct {
	Width           int
	Height          int
	BatchSize       int
	NegativePrompt  string
	MaxPromptLength int
	Checkpoint      string
	Steps           int
}

// StockDefaults mirrors the service's shipped environment defaults.
func StockDefaults() Defaults {
	return Defaults{
		Width:           1088,
		Height:          1920,
		BatchSize:       1,
		MaxPromptLength: 1000,
		Checkpoint:      DefaultCheckpoint,
		Steps:           DefaultSteps,
	}
}

// Params validates req and resolves it against the defaults.
func (d Defaults) Params(req Request) (Params, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Params{}, invalid("prompt", "is required")
	}
	if d.MaxPromptLength > 0 && utf8.RuneCountInString(prompt) > d.MaxPromptLength {
		return Params{}, invalid("prompt", "must be at most %d characters", d.MaxPromptLength)
	}

	p := Params{
		Prompt:         prompt,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Width:          pick(req.Width, d.Width),
		Height:         pick(req.Height, d.Height),
		BatchSize:      pick(req.BatchSize, d.BatchSize, 1),
		Steps:          pick(req.Steps, d.Steps, DefaultSteps),
		Checkpoint:     d.Checkpoint,
	}
	if p.NegativePrompt == "" {
		p.NegativePrompt = d.NegativePrompt
	}
	if p.Width < MinDimension || p.Width > MaxDimension {
		return Params{}, invalid("width", "must be between %d and %d", MinDimension, MaxDimension)
	}
	if p.Height < MinDimension || p.Height > MaxDimension {
		return Params{}, invalid("height", "must be between %d and %d", MinDimension, MaxDimension)
	}
	if p.Width%8 != 0 || p.Height%8 != 0 {
		return Params{}, invalid("size", "must be a multiple of 8")
	}
	if p.BatchSize < 1 || p.BatchSize > MaxBatchSize {
		return Params{}, invalid("batch_size", "must be between 1 and %d", MaxBatchSize)
	}
	if p.Steps < 1 || p.Steps > MaxSteps {
		return Params{}, invalid("steps", "must be between 1 and %d", MaxSteps)
	}
	if req.Seed != nil {
		if *req.Seed < 0 {
			return Params{}, invalid("seed", "must not be negative")
		}
		p.Seed = *req.Seed
	} else {
		p.Seed = rand.Int64N(maxSeed)
	}
	return p, nil
}

// Resolution formats the output size as "WxH".
func (p Params) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

func pick(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
