package pipeline

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/rupor-github/ebk/detect"
	"github.com/rupor-github/ebk/epub"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/repair"
	"github.com/rupor-github/ebk/transform"
	"github.com/rupor-github/ebk/txt"
	"github.com/rupor-github/ebk/validate"
)

// Pipeline wires the format-keyed Reader/Writer dispatch tables together;
// it is the generalisation of the teacher's format-keyed OutputFmt
// branching (convert/epub.go's writeNCX/writeNav split) applied at the
// whole-pipeline level instead of inside a single writer.
type Pipeline struct {
	Readers map[detect.Format]ir.Reader
	Writers map[detect.Format]ir.Writer
	Log     *zap.Logger
}

// New builds a Pipeline with the core's built-in readers/writers
// registered (EPUB, plain text). Additional formats can be registered
// directly on the returned Pipeline's maps before use.
func New(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Readers: map[detect.Format]ir.Reader{
			detect.FormatEPUB:      epub.Reader{},
			detect.FormatPlainText: txt.Reader{},
		},
		Writers: map[detect.Format]ir.Writer{
			detect.FormatEPUB:      epub.Writer{},
			detect.FormatPlainText: txt.Writer{},
		},
		Log: log,
	}
}

// ConvertOptions configures one end-to-end Convert call. Each optional
// stage runs only when its bool gate is set, matching spec.md's
// `Validate? Repair? Transform* Optimize?` data-flow notation.
type ConvertOptions struct {
	ReadOptions  ir.ReadOptions
	WriteOptions ir.WriteOptions

	TargetFormat detect.Format

	RunValidate           bool
	ValidateOpts          validate.Options
	RunRepair             bool
	RepairOpts            repair.Options
	RevalidateAfterRepair bool

	Transforms []ir.Transform

	RunOptimize  bool
	OptimizeOpts transform.OptimizerOptions

	Progress ir.ProgressFunc
}

// Result carries the side-artifacts of a Convert call alongside the bytes
// already written to dst: what format was detected, and the validation/
// repair reports, when those stages ran.
type Result struct {
	Detected       detect.Result
	ValidateReport *validate.Report
	RepairReport   *repair.Report
}

// Convert runs bytes -> Detector -> Reader -> IR -> (Validate? Repair?
// Transform* Optimize?) -> Writer -> bytes against src, writing the result
// to dst. src must support Seek since both detect.Detect and the chosen
// Reader need to read from the start.
func (p *Pipeline) Convert(ctx context.Context, src io.ReadSeeker, name string, dst io.Writer, opts ConvertOptions) (*Result, error) {
	result := &Result{}

	ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "detect", Message: name})
	detected, err := detect.Detect(src)
	if err != nil {
		return result, fmt.Errorf("detect %s: %w", name, err)
	}
	result.Detected = detected

	reader, ok := p.Readers[detected.Format]
	if !ok {
		return result, ir.NewUnsupportedFormat("pipeline", detected.Format.String())
	}

	ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "read", Message: name})
	doc, err := reader.Read(ctx, src, name, opts.ReadOptions)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", name, err)
	}

	if opts.RunValidate {
		ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "validate", Message: name})
		report := validate.Validate(doc, opts.ValidateOpts)
		result.ValidateReport = report

		if opts.RunRepair {
			ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "repair", Message: name})
			repaired, repairReport, err := repair.Repair(doc, report, opts.RepairOpts)
			if err != nil {
				return result, fmt.Errorf("repair %s: %w", name, err)
			}
			doc = repaired
			result.RepairReport = repairReport

			if opts.RevalidateAfterRepair {
				result.ValidateReport = validate.Validate(doc, opts.ValidateOpts)
			}
		}
	}

	for _, t := range opts.Transforms {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "transform:" + t.Name(), Message: name})
		next, err := t.Apply(ctx, doc)
		if err != nil {
			return result, fmt.Errorf("transform %s: %w", t.Name(), err)
		}
		doc = next
	}

	if opts.RunOptimize {
		ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "optimize", Message: name})
		optimized, err := transform.Optimize(ctx, doc, opts.OptimizeOpts)
		if err != nil {
			return result, fmt.Errorf("optimize %s: %w", name, err)
		}
		doc = optimized
	}

	writer, ok := p.Writers[opts.TargetFormat]
	if !ok {
		return result, &ir.WriteError{Op: "pipeline", Detail: fmt.Sprintf("unsupported target format %q", opts.TargetFormat)}
	}

	ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "write", Message: name})
	if err := writer.Write(ctx, doc, dst, opts.WriteOptions); err != nil {
		return result, fmt.Errorf("write %s: %w", name, err)
	}

	return result, nil
}
