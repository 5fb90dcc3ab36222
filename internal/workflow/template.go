package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholders recognised in template string inputs. A value that is exactly
// a numeric placeholder is replaced by the number itself.
const (
	PlaceholderPrompt         = "{{prompt}}"
	PlaceholderNegativePrompt = "{{negative_prompt}}"
	PlaceholderWidth          = "{{width}}"
	PlaceholderHeight         = "{{height}}"
	PlaceholderBatchSize      = "{{batch_size}}"
	PlaceholderSeed           = "{{seed}}"
	PlaceholderSteps          = "{{steps}}"
	PlaceholderCheckpoint     = "{{checkpoint}}"
)

// Template is a user-supplied API-format workflow with placeholders.
type Template struct {
	Name  string
	graph Graph
}

// LoadTemplate reads a .json, .yaml or .yml workflow file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read template: %w", err)
	}
	return ParseTemplate(filepath.Base(path), data)
}

// ParseTemplate decodes a template; the format is picked from the name's
// extension, JSON when unknown.
func ParseTemplate(name string, data []byte) (*Template, error) {
	var graph Graph
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &graph); err != nil {
			return nil, fmt.Errorf("workflow: decode yaml template: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&graph); err != nil {
			return nil, fmt.Errorf("workflow: decode json template: %w", err)
		}
	}
	if len(graph) == 0 {
		return nil, errors.New("workflow: template has no nodes")
	}
	hasPrompt := false
	for id, node := range graph {
		if strings.TrimSpace(node.ClassType) == "" {
			return nil, fmt.Errorf("workflow: node %s has no class_type", id)
		}
		if containsPlaceholder(node.Inputs, PlaceholderPrompt) {
			hasPrompt = true
		}
	}
	if !hasPrompt {
		return nil, fmt.Errorf("workflow: template must reference %s", PlaceholderPrompt)
	}
	return &Template{Name: name, graph: graph}, nil
}

// Build renders a fresh graph; the template itself is never mutated.
func (t *Template) Build(p Params) (Graph, error) {
	out := make(Graph, len(t.graph))
	for id, node := range t.graph {
		inputs, _ := render(node.Inputs, p).(map[string]any)
		copied := Node{ClassType: node.ClassType, Inputs: inputs}
		if node.Meta != nil {
			meta := *node.Meta
			copied.Meta = &meta
		}
		out[id] = copied
	}
	return out, nil
}

func render(v any, p Params) any {
	switch val := v.(type) {
	case string:
		return renderString(val, p)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = render(item, p)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = render(item, p)
		}
		return out
	default:
		return v
	}
}

func renderString(s string, p Params) any {
	switch strings.TrimSpace(s) {
	case PlaceholderWidth:
		return p.Width
	case PlaceholderHeight:
		return p.Height
	case PlaceholderBatchSize:
		return p.BatchSize
	case PlaceholderSeed:
		return p.Seed
	case PlaceholderSteps:
		return p.Steps
	}
	if !strings.Contains(s, "{{") {
		return s
	}
	r := strings.NewReplacer(
		PlaceholderPrompt, p.Prompt,
		PlaceholderNegativePrompt, p.NegativePrompt,
		PlaceholderCheckpoint, p.Checkpoint,
	)
	return r.Replace(s)
}

func containsPlaceholder(v any, placeholder string) bool {
	switch val := v.(type) {
	case string:
		return strings.Contains(val, placeholder)
	case []any:
		for _, item := range val {
			if containsPlaceholder(item, placeholder) {
				return true
			}
		}
	case map[string]any:
		for _, item := range val {
			if containsPlaceholder(item, placeholder) {
				return true
			}
		}
	}
	return false
}
