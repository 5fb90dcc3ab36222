package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"comfyremote/internal/bootstrap"
	"comfyremote/internal/generation"
	"comfyremote/internal/history"
	"comfyremote/internal/i18n"
	"comfyremote/internal/infra"
	"comfyremote/internal/workflow"
	"comfyremote/pkg/zip"
)

func openRuntime(ctx context.Context, cmd *cli.Command) (*bootstrap.Runtime, error) {
	if env := cmd.String("env"); env != "" {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", env, err)
		}
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, cmd.String("log-level"))
	return bootstrap.Open(ctx, cfg, &logger)
}

func requestFromFlags(cmd *cli.Command) workflow.Request {
	prompt := cmd.String("prompt")
	if prompt == "" {
		prompt = strings.Join(cmd.Args().Slice(), " ")
	}
	req := workflow.Request{
		Prompt:         prompt,
		NegativePrompt: cmd.String("negative"),
		Width:          int(cmd.Int("width")),
		Height:         int(cmd.Int("height")),
		BatchSize:      int(cmd.Int("batch")),
		Steps:          int(cmd.Int("steps")),
	}
	if cmd.IsSet("seed") {
		seed := cmd.Int64("seed")
		req.Seed = &seed
	}
	return req
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	job, err := rt.Service.Start(ctx, requestFromFlags(cmd), i18n.Match(cmd.String("locale")))
	if err != nil {
		return err
	}
	fmt.Printf("job %s submitted (%s, seed %d)\n", job.ID, job.Params.Resolution(), job.Params.Seed)

	updates, cancel := rt.Service.Statuses().Subscribe(job.ID)
	_, err = printProgress(ctx, os.Stdout, updates)
	cancel()
	if err != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = rt.Service.Shutdown(shutdownCtx)
		return err
	}
	rt.Service.Wait()
	final, _ := rt.Service.Statuses().Get(job.ID)
	if final.Result == nil || !final.Result.Succeeded() {
		return fmt.Errorf("job %s ended %s", job.ID, final.State)
	}
	printResult(os.Stdout, *final.Result)

	if dir := cmd.String("out"); dir != "" {
		if err := saveArtifacts(ctx, rt.Service, job.ID, dir); err != nil {
			return err
		}
	}
	if path := cmd.String("zip"); path != "" {
		return saveArchive(ctx, rt.Service, job.ID, path)
	}
	return nil
}

// printProgress writes one line per observed status and returns the last
// once updates closes. It returns ctx.Err() if ctx ends first.
func printProgress(ctx context.Context, w io.Writer, updates <-chan generation.Status) (generation.Status, error) {
	var last generation.Status
	for {
		var st generation.Status
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case next, open := <-updates:
			if !open {
				return last, nil
			}
			st = next
		}
		if st.State == last.State && st.StatusText == last.StatusText && st.IsGenerating == last.IsGenerating {
			continue
		}
		last = st
		if st.IsGenerating {
			fmt.Fprintf(w, "[%3.0f%%] %s\n", st.Progress, st.StatusText)
			continue
		}
		if st.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", st.State, st.Error)
			continue
		}
		fmt.Fprintf(w, "%s\n", st.State)
	}
}

func printResult(w io.Writer, r generation.Result) {
	fmt.Fprintf(w, "finished in %s", time.Duration(r.DurationMS)*time.Millisecond)
	if r.Fallback {
		fmt.Fprint(w, " (no image list, showing latest output)")
	}
	fmt.Fprintln(w)
	for _, u := range r.ImageURLs {
		fmt.Fprintln(w, "  "+u)
	}
}

func saveArtifacts(ctx context.Context, svc *generation.Service, jobID, dir string) error {
	assets, err := svc.Artifacts(ctx, jobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, a := range assets {
		path := filepath.Join(dir, filepath.Base(a.Filename))
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return err
		}
		fmt.Println("saved", path)
	}
	return nil
}

func saveArchive(ctx context.Context, svc *generation.Service, jobID, path string) error {
	assets, err := svc.Artifacts(ctx, jobID)
	if err != nil {
		return err
	}
	data, err := zip.ArchiveAssets(assets)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Println("saved", path)
	return nil
}

func queueAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.Client.Queue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("running: %d\n", len(snap.Running))
	for _, id := range snap.Running {
		fmt.Println("  " + id)
	}
	fmt.Printf("pending: %d\n", len(snap.Pending))
	for i, id := range snap.Pending {
		fmt.Printf("  %d. %s\n", i+1, id)
	}
	return nil
}

func historyListAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.History.List(ctx)
	if err != nil {
		return err
	}
	writeHistory(os.Stdout, entries)
	return nil
}

func writeHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no generations recorded")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  %-9s %6.1fs  %d image(s)  %s\n",
			e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Resolution,
			e.Duration().Seconds(), len(e.ImageURLs), truncate(e.Prompt, 48))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func historyExportAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var out io.Writer = os.Stdout
	if path := cmd.String("file"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return history.Export(ctx, rt.History, out, time.Now())
}

func historyRemoveAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("history rm: id is required")
	}
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.History.Remove(ctx, id)
}

func historyClearAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.History.Clear(ctx)
}
