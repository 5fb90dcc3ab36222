package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"comfyremote/internal/generation"
	"comfyremote/internal/history"
	"comfyremote/internal/workflow"
)

func TestPrintProgressSkipsRepeats(t *testing.T) {
	updates := make(chan generation.Status, 8)
	updates <- generation.Status{State: "queued", StatusText: "queued", IsGenerating: true}
	updates <- generation.Status{State: "queued", StatusText: "queued", IsGenerating: true}
	updates <- generation.Status{State: "running", StatusText: "running", Progress: 50, IsGenerating: true}
	updates <- generation.Status{State: "completed", StatusText: "completed", Progress: 100}
	close(updates)

	var buf bytes.Buffer
	last, err := printProgress(context.Background(), &buf, updates)
	require.NoError(t, err)
	assert.Equal(t, "completed", last.State)
	assert.Equal(t, "[  0%] queued\n[ 50%] running\ncompleted\n", buf.String())
}

func TestPrintProgressReportsError(t *testing.T) {
	updates := make(chan generation.Status, 1)
	updates <- generation.Status{State: "failed", Error: "comfy: history: http 500"}
	close(updates)

	var buf bytes.Buffer
	_, err := printProgress(context.Background(), &buf, updates)
	require.NoError(t, err)
	assert.Equal(t, "failed: comfy: history: http 500\n", buf.String())
}

func TestPrintProgressStopsOnCancel(t *testing.T) {
	updates := make(chan generation.Status, 1)
	updates <- generation.Status{State: "queued", StatusText: "queued", IsGenerating: true}
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		last generation.Status
		err  error
	}
	done := make(chan result, 1)
	var buf bytes.Buffer
	go func() {
		last, err := printProgress(ctx, &buf, updates)
		done <- result{last, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case got := <-done:
		require.ErrorIs(t, got.err, context.Canceled)
		assert.Equal(t, "queued", got.last.State)
		assert.Equal(t, "[  0%] queued\n", buf.String())
	case <-time.After(2 * time.Second):
		t.Fatal("printProgress kept waiting on an open subscription after cancel")
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	writeHistory(&buf, nil)
	assert.Equal(t, "no generations recorded\n", buf.String())

	buf.Reset()
	writeHistory(&buf, []history.Entry{{
		ID:         "e1",
		Prompt:     strings.Repeat("x", 60),
		Resolution: "512x512",
		ImageURLs:  []string{"a", "b"},
		DurationMS: 1500,
		CreatedAt:  time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "e1")
	assert.Contains(t, out, "512x512")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "2 image(s)")
	assert.Contains(t, out, strings.Repeat("x", 47)+"…")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, generation.Result{DurationMS: 2000, Fallback: true, ImageURLs: []string{"http://comfy.test/view?filename=latest.png"}})
	assert.Equal(t, "finished in 2s (no image list, showing latest output)\n  http://comfy.test/view?filename=latest.png\n", buf.String())
}

func TestRequestFromFlags(t *testing.T) {
	var got workflow.Request
	newCmd := func() *cli.Command {
		return &cli.Command{
			Name: "generate",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "prompt"},
				&cli.StringFlag{Name: "negative"},
				&cli.IntFlag{Name: "width"},
				&cli.IntFlag{Name: "height"},
				&cli.IntFlag{Name: "batch"},
				&cli.IntFlag{Name: "steps"},
				&cli.Int64Flag{Name: "seed"},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				got = requestFromFlags(cmd)
				return nil
			},
		}
	}

	require.NoError(t, newCmd().Run(context.Background(), []string{"generate", "--width", "512", "--seed", "7", "a", "red", "fox"}))
	assert.Equal(t, "a red fox", got.Prompt)
	assert.Equal(t, 512, got.Width)
	require.NotNil(t, got.Seed)
	assert.Equal(t, int64(7), *got.Seed)

	require.NoError(t, newCmd().Run(context.Background(), []string{"generate", "--prompt", "cat"}))
	assert.Equal(t, "cat", got.Prompt)
	assert.Nil(t, got.Seed)
}
