package workflow

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph(t *testing.T) {
	graph, err := Default{}.Build(Params{
		Prompt:         "a red fox",
		NegativePrompt: "blurry",
		Width:          1088,
		Height:         1920,
		BatchSize:      2,
		Seed:           42,
	})
	require.NoError(t, err)
	require.Len(t, graph, 8)

	sampler := graph["3"]
	assert.Equal(t, "KSampler", sampler.ClassType)
	assert.Equal(t, int64(42), sampler.Inputs["seed"])
	assert.Equal(t, DefaultSteps, sampler.Inputs["steps"])
	assert.Equal(t, "euler", sampler.Inputs["sampler_name"])
	assert.Equal(t, []any{"13", 0}, sampler.Inputs["latent_image"])

	assert.Equal(t, "a red fox", graph["6"].Inputs["text"])
	assert.Equal(t, "blurry", graph["7"].Inputs["text"])
	assert.Equal(t, 2, graph["13"].Inputs["batch_size"])
	assert.Equal(t, DefaultCheckpoint, graph["42"].Inputs["ckpt_name"])
	assert.Equal(t, "SaveImage", graph[SaveNodeID].ClassType)

	raw, err := json.Marshal(graph)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"class_type":"ModelSamplingAuraFlow"`)
	assert.Contains(t, string(raw), `"ckpt_name":"Z-image\\redcraftRedzimageUpdatedDEC03_redzimage15AIO.safetensors"`)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "redzimage15AIO", ModelName(DefaultCheckpoint))
	assert.Equal(t, "sdxl", ModelName("models/sdxl.safetensors"))
	assert.Equal(t, "", ModelName(""))
}

func int64Ptr(v int64) *int64 { return &v }

func TestDefaultsParams(t *testing.T) {
	d := StockDefaults()
	d.NegativePrompt = "lowres"

	p, err := d.Params(Request{Prompt: "  cat  ", Seed: int64Ptr(7)})
	require.NoError(t, err)
	assert.Equal(t, "cat", p.Prompt)
	assert.Equal(t, "lowres", p.NegativePrompt)
	assert.Equal(t, 1088, p.Width)
	assert.Equal(t, 1920, p.Height)
	assert.Equal(t, 1, p.BatchSize)
	assert.Equal(t, int64(7), p.Seed)
	assert.Equal(t, DefaultSteps, p.Steps)
	assert.Equal(t, "1088x1920", p.Resolution())

	p, err = d.Params(Request{Prompt: "cat", NegativePrompt: "noise"})
	require.NoError(t, err)
	assert.Equal(t, "noise", p.NegativePrompt)
	assert.GreaterOrEqual(t, p.Seed, int64(0))
}

func TestDefaultsParamsRejects(t *testing.T) {
	d := StockDefaults()
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "empty prompt", req: Request{Prompt: "   "}, field: "prompt"},
		{name: "long prompt", req: Request{Prompt: strings.Repeat("字", 1001)}, field: "prompt"},
		{name: "tiny width", req: Request{Prompt: "x", Width: 32}, field: "width"},
		{name: "huge height", req: Request{Prompt: "x", Height: 8192}, field: "height"},
		{name: "odd size", req: Request{Prompt: "x", Width: 1001}, field: "size"},
		{name: "batch", req: Request{Prompt: "x", BatchSize: 9}, field: "batch_size"},
		{name: "steps", req: Request{Prompt: "x", Steps: 500}, field: "steps"},
		{name: "seed", req: Request{Prompt: "x", Seed: int64Ptr(-1)}, field: "seed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Params(tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDefaultsParamsCountsRunes(t *testing.T) {
	_, err := StockDefaults().Params(Request{Prompt: strings.Repeat("字", 1000)})
	assert.NoError(t, err)
}

const jsonTemplate = `{
  "1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "{{checkpoint}}"}},
  "2": {"class_type": "CLIPTextEncode", "inputs": {"text": "masterpiece, {{prompt}}", "clip": ["1", 1]}},
  "3": {"class_type": "EmptyLatentImage", "inputs": {"width": "{{width}}", "height": "{{height}}", "batch_size": "{{batch_size}}"}},
  "4": {"class_type": "KSampler", "inputs": {"seed": "{{seed}}", "steps": "{{steps}}", "cfg": 7.5}}
}`

const yamlTemplate = `
"1":
  class_type: CLIPTextEncode
  inputs:
    text: "{{prompt}}"
    clip: ["9", 1]
"2":
  class_type: CLIPTextEncode
  _meta:
    title: negative
  inputs:
    text: "{{negative_prompt}}"
`

func TestParseTemplateJSON(t *testing.T) {
	tpl, err := ParseTemplate("flow.json", []byte(jsonTemplate))
	require.NoError(t, err)

	params := Params{Prompt: "fox", Width: 512, Height: 768, BatchSize: 1, Seed: 3, Steps: 20, Checkpoint: "model.ckpt"}
	graph, err := tpl.Build(params)
	require.NoError(t, err)

	assert.Equal(t, "model.ckpt", graph["1"].Inputs["ckpt_name"])
	assert.Equal(t, "masterpiece, fox", graph["2"].Inputs["text"])
	assert.Equal(t, 512, graph["3"].Inputs["width"])
	assert.Equal(t, 768, graph["3"].Inputs["height"])
	assert.Equal(t, int64(3), graph["4"].Inputs["seed"])
	assert.Equal(t, 20, graph["4"].Inputs["steps"])
	assert.Equal(t, json.Number("7.5"), graph["4"].Inputs["cfg"])

	again, err := tpl.Build(Params{Prompt: "owl"})
	require.NoError(t, err)
	assert.Equal(t, "masterpiece, owl", again["2"].Inputs["text"])
	assert.Equal(t, "masterpiece, fox", graph["2"].Inputs["text"])
}

func TestLoadTemplateYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlTemplate), 0o600))

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "flow.yaml", tpl.Name)

	graph, err := tpl.Build(Params{Prompt: "fox", NegativePrompt: "dull"})
	require.NoError(t, err)
	assert.Equal(t, "fox", graph["1"].Inputs["text"])
	assert.Equal(t, []any{"9", 1}, graph["1"].Inputs["clip"])
	assert.Equal(t, "dull", graph["2"].Inputs["text"])
	require.NotNil(t, graph["2"].Meta)
	assert.Equal(t, "negative", graph["2"].Meta.Title)
}

func TestParseTemplateRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "malformed", file: "a.json", body: `{`},
		{name: "empty", file: "a.json", body: `{}`},
		{name: "missing class", file: "a.json", body: `{"1":{"inputs":{"text":"{{prompt}}"}}}`},
		{name: "no prompt", file: "a.json", body: `{"1":{"class_type":"X","inputs":{"text":"fixed"}}}`},
		{name: "bad yaml", file: "a.yml", body: "\t- :"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTemplate(tc.file, []byte(tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadTemplateMissingFile(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
