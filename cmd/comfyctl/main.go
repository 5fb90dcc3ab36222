package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "environment file to load",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "comfyctl",
		Usage: "submit and follow ComfyUI image generations",
		Flags: []cli.Flag{
			envFlag,
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "submit a prompt and wait for the images",
				ArgsUsage: "[prompt]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "positive prompt"},
					&cli.StringFlag{Name: "negative", Usage: "negative prompt"},
					&cli.IntFlag{Name: "width", Usage: "output width, multiple of 8"},
					&cli.IntFlag{Name: "height", Usage: "output height, multiple of 8"},
					&cli.IntFlag{Name: "batch", Usage: "images per job"},
					&cli.IntFlag{Name: "steps", Usage: "sampler steps"},
					&cli.Int64Flag{Name: "seed", Usage: "fixed seed, random when unset"},
					&cli.StringFlag{Name: "locale", Usage: "status text language", Value: "en"},
					&cli.StringFlag{Name: "out", Usage: "directory to save the images into"},
					&cli.StringFlag{Name: "zip", Usage: "write the images into this zip file"},
				},
				Action: generateAction,
			},
			{
				Name:   "queue",
				Usage:  "show the remote queue",
				Action: queueAction,
			},
			{
				Name:  "history",
				Usage: "inspect the generation log",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list recent generations",
						Action: historyListAction,
					},
					{
						Name:  "export",
						Usage: "write the log as JSON",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"o"}, Usage: "output file, stdout when empty"},
						},
						Action: historyExportAction,
					},
					{
						Name:      "rm",
						Usage:     "delete one entry",
						ArgsUsage: "<id>",
						Action:    historyRemoveAction,
					},
					{
						Name:   "clear",
						Usage:  "delete every entry",
						Action: historyClearAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "comfyctl:", err)
		os.Exit(1)
	}
}
