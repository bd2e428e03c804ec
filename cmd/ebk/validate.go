package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rupor-github/ebk/detect"
	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/pipeline"
	"github.com/rupor-github/ebk/state"
	"github.com/rupor-github/ebk/validate"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "checks a file against the container/content conformance rules and reports issues",
		ArgsUsage: "SOURCE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "accessibility", Aliases: []string{"a11y"}, Usage: "also run accessibility checks (WCAG)"},
			&cli.BoolFlag{Name: "strict", Usage: "treat warnings as errors in the summary exit status"},
		},
		Action: runValidate,
	}
}

func runValidate(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() < 1 {
		return fmt.Errorf("validate requires a SOURCE argument")
	}
	src := cmd.Args().Get(0)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source %q: %w", src, err)
	}
	defer in.Close()

	detected, err := detect.Detect(in)
	if err != nil {
		return fmt.Errorf("detect %s: %w", src, err)
	}

	p := env.P
	if p == nil {
		p = pipeline.New(env.Log)
	}
	reader, ok := p.Readers[detected.Format]
	if !ok {
		return fmt.Errorf("no reader registered for detected format %q", detected.Format)
	}

	normForm := env.Cfg.Pipeline.NormalizeForm()
	doc, err := reader.Read(ctx, in, src, ir.ReadOptions{Encoding: &encoding.Options{Form: normForm}, ParseTOC: true})
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	report := validate.Validate(doc, validate.Options{
		Strict:        cmd.Bool("strict"),
		Accessibility: cmd.Bool("accessibility"),
		EncodingForm:  normForm,
	})

	for _, issue := range report.Issues {
		env.Log.Info("issue", zap.String("code", issue.Code), zap.String("severity", string(issue.Severity)), zap.String("location", issue.Location), zap.String("message", issue.Message))
	}
	errorCount := report.ErrorCount()
	env.Log.Info("Validated", zap.String("source", src), zap.Int("issues", len(report.Issues)), zap.Int("errors", errorCount))

	if errorCount > 0 {
		return fmt.Errorf("%d validation error(s) found in %s", errorCount, src)
	}
	return nil
}
