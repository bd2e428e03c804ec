package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rupor-github/ebk/config"
	"github.com/rupor-github/ebk/detect"
	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/pipeline"
	"github.com/rupor-github/ebk/repair"
	"github.com/rupor-github/ebk/state"
	"github.com/rupor-github/ebk/transform"
	"github.com/rupor-github/ebk/validate"
)

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "converts an ebook file to the requested format",
		ArgsUsage: "SOURCE DESTINATION",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "conversion output `TYPE` (epub2, epub3, txt); defaults to the config file's pipeline.output_format"},
			&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
		},
		Action: runConvert,
	}
}

func targetFormat(to string) (detect.Format, string, error) {
	switch config.OutputFormat(to) {
	case config.OutputFormatEPUB2:
		return detect.FormatEPUB, "2.0", nil
	case config.OutputFormatEPUB3:
		return detect.FormatEPUB, "3.0", nil
	case config.OutputFormatPlainText:
		return detect.FormatPlainText, "", nil
	default:
		return detect.FormatUnknown, "", fmt.Errorf("unsupported output type %q", to)
	}
}

func runConvert(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() < 2 {
		return fmt.Errorf("convert requires SOURCE and DESTINATION arguments")
	}
	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)

	to := cmd.String("to")
	if to == "" {
		to = string(env.Cfg.Pipeline.OutputFormat)
	}
	format, epubVersion, err := targetFormat(to)
	if err != nil {
		return err
	}

	if !cmd.Bool("overwrite") {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("destination %q already exists, pass --overwrite to replace it", dst)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("unable to create destination %q: %w", dst, err)
	}
	defer out.Close()

	p := env.P
	if p == nil {
		p = pipeline.New(env.Log)
	}

	normForm := env.Cfg.Pipeline.NormalizeForm()
	encOpts := &encoding.Options{Form: normForm}

	progress := func(ev ir.ProgressEvent) {
		env.Log.Debug("progress", zap.String("stage", ev.OperationTag), zap.String("message", ev.Message))
	}

	result, err := p.Convert(ctx, in, src, out, pipeline.ConvertOptions{
		ReadOptions: ir.ReadOptions{
			Encoding:     encOpts,
			ExtractCover: true,
			ParseTOC:     true,
			Progress:     progress,
		},
		WriteOptions: ir.WriteOptions{
			ImageQuality: env.Cfg.Pipeline.ImageQuality,
			EPUBVersion:  epubVersion,
			Minify:       env.Cfg.Pipeline.MinifyCSS,
			Progress:     progress,
		},
		TargetFormat:          format,
		RunValidate:           env.Cfg.Pipeline.Validate,
		ValidateOpts:          validate.Options{Accessibility: env.Cfg.Pipeline.Accessibility, EncodingForm: normForm},
		RunRepair:             env.Cfg.Pipeline.Repair,
		RepairOpts:            repair.Options{EncodingForm: normForm},
		RevalidateAfterRepair: env.Cfg.Pipeline.RevalidateAfterRepair,
		RunOptimize:           env.Cfg.Pipeline.Optimize,
		OptimizeOpts: transform.OptimizerOptions{
			ImageQuality: env.Cfg.Pipeline.ImageQuality,
			MinifyCSS:    env.Cfg.Pipeline.MinifyCSS,
			Dedupe:       env.Cfg.Pipeline.Dedupe,
		},
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("convert %s: %w", src, err)
	}

	env.Log.Info("Converted", zap.String("source", src), zap.String("destination", dst), zap.String("detected", result.Detected.Format.String()))
	if result.ValidateReport != nil {
		env.Log.Info("Validation", zap.Int("issues", len(result.ValidateReport.Issues)))
	}
	if result.RepairReport != nil {
		env.Log.Info("Repair", zap.Int("applied", len(result.RepairReport.FixesApplied)), zap.Int("failed", len(result.RepairReport.FixesFailed)))
	}
	return nil
}
