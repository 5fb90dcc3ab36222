// Package workflow builds the node graphs submitted to ComfyUI.
package workflow

import (
	"path"
	"strings"
)

// Node is one entry of an API-format workflow.
type Node struct {
	ClassType string         `json:"class_type" yaml:"class_type"`
	Inputs    map[string]any `json:"inputs" yaml:"inputs"`
	Meta      *Meta          `json:"_meta,omitempty" yaml:"_meta,omitempty"`
}

type Meta struct {
	Title string `json:"title" yaml:"title"`
}

// Graph maps node ids to nodes, exactly as POST /prompt expects.
type Graph map[string]Node

// Params are the validated inputs of one generation.
type Params struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	BatchSize      int
	Seed           int64
	Steps          int
	Checkpoint     string
}

// Builder produces a graph for a set of parameters.
type Builder interface {
	Build(Params) (Graph, error)
}

const (
	DefaultCheckpoint = `Z-image\redcraftRedzimageUpdatedDEC03_redzimage15AIO.safetensors`
	DefaultSteps      = 9
	// SaveNodeID is the SaveImage node of the default graph.
	SaveNodeID = "9"
)

func link(node string, slot int) []any {
	return []any{node, slot}
}

// Default is the stock text-to-image graph: checkpoint loader, AuraFlow
// sampling, SD3 latent, KSampler, VAE decode and SaveImage.
type Default struct{}

func (Default) Build(p Params) (Graph, error) {
	checkpoint := p.Checkpoint
	if checkpoint == "" {
		checkpoint = DefaultCheckpoint
	}
	steps := p.Steps
	if steps <= 0 {
		steps = DefaultSteps
	}
	return Graph{
		"3": {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         p.Seed,
				"steps":        steps,
				"cfg":          1,
				"sampler_name": "euler",
				"scheduler":    "simple",
				"denoise":      1,
				"model":        link("11", 0),
				"positive":     link("6", 0),
				"negative":     link("7", 0),
				"latent_image": link("13", 0),
			},
			Meta: &Meta{Title: "KSampler"},
		},
		"6": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": p.Prompt, "clip": link("42", 1)},
			Meta:      &Meta{Title: "CLIP Text Encode (Positive Prompt)"},
		},
		"7": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": p.NegativePrompt, "clip": link("42", 1)},
			Meta:      &Meta{Title: "CLIP Text Encode (Negative Prompt)"},
		},
		"8": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": link("3", 0), "vae": link("42", 2)},
			Meta:      &Meta{Title: "VAE Decode"},
		},
		SaveNodeID: {
			ClassType: "SaveImage",
			Inputs:    map[string]any{"filename_prefix": "ComfyUI", "images": link("8", 0)},
			Meta:      &Meta{Title: "Save Image"},
		},
		"11": {
			ClassType: "ModelSamplingAuraFlow",
			Inputs:    map[string]any{"shift": 3, "model": link("42", 0)},
			Meta:      &Meta{Title: "ModelSamplingAuraFlow"},
		},
		"13": {
			ClassType: "EmptySD3LatentImage",
			Inputs:    map[string]any{"width": p.Width, "height": p.Height, "batch_size": p.BatchSize},
			Meta:      &Meta{Title: "Empty SD3 Latent Image"},
		},
		"42": {
			ClassType: "CheckpointLoaderSimple",
			Inputs:    map[string]any{"ckpt_name": checkpoint},
			Meta:      &Meta{Title: "Load Checkpoint"},
		},
	}, nil
}

// ModelName derives a short display name from a checkpoint file name, e.g.
// "redcraftRedzimageUpdatedDEC03_redzimage15AIO.safetensors" gives
// "redzimage15AIO".
func ModelName(checkpoint string) string {
	name := strings.ReplaceAll(strings.TrimSpace(checkpoint), `\`, "/")
	name = path.Base(name)
	name = strings.TrimSuffix(name, path.Ext(name))
	if i := strings.LastIndex(name, "_"); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	if name == "." || name == "/" {
		return ""
	}
	return name
}
