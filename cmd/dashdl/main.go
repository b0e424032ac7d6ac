package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"dashdl/internal/config"
	"dashdl/internal/download"
	"dashdl/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "dashdl",
		Usage: "download a segmented adaptive-bitrate asset and mux it into one file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "asset", Usage: "asset `ID` at the delivery endpoint", Required: true},
			&cli.StringFlag{Name: "content-type", Usage: "delivery endpoint content `TYPE`", Required: true},
			&cli.StringFlag{Name: "delivery-host", Usage: "delivery endpoint `HOST` suffix", Required: true},
			&cli.Float64Flag{Name: "duration", Usage: "total asset duration in `SECONDS`", Required: true},
			&cli.IntFlag{Name: "height", Value: config.HeightHighest, Usage: "target video height (`-1` highest, 0 lowest)"},
			&cli.BoolFlag{Name: "force-resolution", Usage: "fail when the exact target height is unavailable"},
			&cli.StringFlag{Name: "stream", Usage: "download a single stream: audio or video"},
			&cli.IntFlag{Name: "start-segment", Value: -1, Usage: "override the first segment `INDEX`"},
			&cli.IntFlag{Name: "end-segment", Value: -1, Usage: "override the last segment `INDEX`"},
			&cli.Float64Flag{Name: "scene-start", Value: -1, Usage: "scene start timing in `SECONDS`"},
			&cli.Float64Flag{Name: "scene-end", Value: -1, Usage: "scene end timing in `SECONDS`"},
			&cli.Float64Flag{Name: "scene-padding", Usage: "widen the scene by `SECONDS` on both sides"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "write the final file to `DIR`"},
			&cli.StringFlag{Name: "work-dir", Usage: "store temporary segments under `DIR`"},
			&cli.StringFlag{Name: "name", Usage: "output file base `NAME` (default: asset ID)"},
			&cli.IntFlag{Name: "threads", Value: config.DefaultThreads, Usage: "segment download concurrency per stream"},
			&cli.BoolFlag{Name: "overwrite", Usage: "re-download segments already on disk"},
			&cli.BoolFlag{Name: "keep-segments", Usage: "keep raw segment files after the run"},
			&cli.BoolFlag{Name: "aggressive-cleanup", Usage: "delete each segment right after it is assembled"},
			&cli.BoolFlag{Name: "validity-check", Usage: "probe every data segment and re-download failures once"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"L"}, Value: "info", Usage: "log level (debug, info, warn, error)"},
		},
		Action: func(c *cli.Context) error {
			opts := &config.Options{
				AssetID:              c.String("asset"),
				ContentType:          c.String("content-type"),
				DeliveryHost:         c.String("delivery-host"),
				TotalDurationSeconds: c.Float64("duration"),
				TargetHeight:         c.Int("height"),
				ForceResolution:      c.Bool("force-resolution"),
				Target:               config.TargetStream(c.String("stream")),
				StartSegment:         c.Int("start-segment"),
				EndSegment:           c.Int("end-segment"),
				SceneStartSeconds:    c.Float64("scene-start"),
				SceneEndSeconds:      c.Float64("scene-end"),
				ScenePaddingSeconds:  c.Float64("scene-padding"),
				OutputDir:            c.String("output-dir"),
				WorkDir:              c.String("work-dir"),
				OutputName:           c.String("name"),
				Threads:              c.Int("threads"),
				OverwriteExisting:    c.Bool("overwrite"),
				KeepSegments:         c.Bool("keep-segments"),
				AggressiveCleanup:    c.Bool("aggressive-cleanup"),
				ValidityCheck:        c.Bool("validity-check"),
				LogLevel:             c.String("log-level"),
			}
			log := logger.NewLogger(opts.LogLevel)
			return download.New(opts, log).Run(c.Context)
		},
		HideHelpCommand: true,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
