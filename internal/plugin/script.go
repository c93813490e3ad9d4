package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

const (
	// DefaultProbeTimeout bounds canParse and validate calls, which run
	// outside the manager's parse budget.
	DefaultProbeTimeout = time.Second
	maxScriptCallStack  = 1024
)

// ScriptSpec describes a JavaScript parser.
//
// The script must define parse(content, options) returning a node object
// ({title, content, contentType, children, metadata}). It may define
// canParse(content, hints) returning a number in [0,1] and
// validate(content) returning {valid, errors}. print and console.log write
// to the debug log; nothing else from the host is reachable.
type ScriptSpec struct {
	Spec
	Source string
	// Filename names the script in error messages.
	Filename     string
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Script is a compiled JavaScript parser. Every call runs in a fresh goja
// runtime that is interrupted when the call's context ends, so a script
// cannot keep state between calls or outlive its deadline.
type Script struct {
	spec        ScriptSpec
	program     *goja.Program
	hasCanParse bool
	hasValidate bool
	logger      *slog.Logger
}

// CompileScript compiles spec.Source and checks that it defines parse.
func CompileScript(spec ScriptSpec) (*Script, error) {
	if spec.Filename == "" {
		spec.Filename = spec.primary() + ".js"
	}
	if spec.ProbeTimeout <= 0 {
		spec.ProbeTimeout = DefaultProbeTimeout
	}
	if spec.Capabilities == (parser.Capabilities{}) {
		spec.Capabilities = parser.Capabilities{Validation: true, Metadata: true}
	}
	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if spec.primary() == "" {
		return nil, apperrors.NewPlugin("", apperrors.KindInvalidMetadata, "script has no format")
	}

	program, err := goja.Compile(spec.Filename, spec.Source, false)
	if err != nil {
		return nil, apperrors.WrapPlugin(spec.primary(), apperrors.KindInvalidParser, "failed to compile script", err)
	}
	s := &Script{
		spec:    spec,
		program: program,
		logger:  logger.With("script", spec.Filename),
	}

	ctx, cancel := context.WithTimeout(context.Background(), spec.ProbeTimeout)
	defer cancel()
	vm, err := s.load(ctx)
	if err != nil {
		return nil, apperrors.WrapPlugin(spec.primary(), apperrors.KindInvalidParser, "failed to load script", err)
	}
	if _, ok := goja.AssertFunction(vm.Get("parse")); !ok {
		return nil, apperrors.NewPlugin(spec.primary(), apperrors.KindInvalidParser, "script does not define parse(content, options)")
	}
	_, s.hasCanParse = goja.AssertFunction(vm.Get("canParse"))
	_, s.hasValidate = goja.AssertFunction(vm.Get("validate"))
	return s, nil
}

// LoadScript reads a script from path and compiles it.
func LoadScript(path string, spec ScriptSpec) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	spec.Source = string(src)
	if spec.Filename == "" {
		spec.Filename = path
	}
	return CompileScript(spec)
}

// Module wraps the script for Manager.Register. The script is stateless
// between calls, so every constructor call may share it.
func (s *Script) Module() Module {
	return Module{
		Metadata: s.spec.Metadata,
		Kind:     KindScript,
		New:      func() parser.Parser { return s },
	}
}

func (s *Script) Name() string                      { return s.spec.Name }
func (s *Script) SupportedFormats() []string        { return s.spec.formats() }
func (s *Script) SupportedMIMETypes() []string      { return append([]string(nil), s.spec.MIMETypes...) }
func (s *Script) Capabilities() parser.Capabilities { return s.spec.Capabilities }
func (s *Script) Describe() parser.Descriptor       { return s.spec.describe() }

func (s *Script) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(s.spec.primary(), content)
	if s.spec.hinted(hints) {
		score = max(score, 0.5)
	}
	if !s.hasCanParse {
		return score
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.spec.ProbeTimeout)
	defer cancel()
	v, err := s.call(ctx, "canParse", content, hintsValue(hints))
	if err != nil {
		s.logger.Debug("canParse failed", "error", err)
		return score
	}
	got := v.ToFloat()
	if math.IsNaN(got) || got < 0 {
		return score
	}
	return max(score, min(got, 1))
}

func (s *Script) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return node.NewEmpty(s.spec.primary()), nil
	}

	v, err := s.call(ctx, "parse", content, optionsValue(opts))
	if err != nil {
		var exc *goja.Exception
		if !errors.As(err, &exc) {
			return nil, err
		}
		// A thrown exception is a content-level failure
		perr := apperrors.NewParse(s.spec.primary(), s.spec.Name, errors.New(exc.Value().String()))
		if opts.Strict {
			return nil, perr
		}
		return node.NewError(s.spec.primary(), perr), nil
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, apperrors.NewPlugin(s.spec.primary(), apperrors.KindInvalidResult, "parse() returned nothing")
	}
	tree, err := FromValue(v.Export(), opts.MaxNodes)
	if err != nil {
		return nil, resultError(s.spec.primary(), "parse() returned a malformed tree", opts.MaxNodes, err)
	}
	return tree, nil
}

func (s *Script) Validate(content string) parser.ValidationResult {
	ctx, cancel := context.WithTimeout(context.Background(), s.spec.ProbeTimeout)
	defer cancel()

	if !s.hasValidate {
		if _, err := s.call(ctx, "parse", content, optionsValue(parser.Options{})); err != nil {
			return parser.Invalid(err.Error())
		}
		return parser.Valid()
	}

	v, err := s.call(ctx, "validate", content)
	if err != nil {
		return parser.Invalid(err.Error())
	}
	res, ok := v.Export().(map[string]any)
	if !ok {
		return parser.Invalid(fmt.Sprintf("validate() returned %s", v.String()))
	}
	if valid, _ := res["valid"].(bool); valid {
		return parser.Valid()
	}
	var errs []string
	if items, ok := res["errors"].([]any); ok {
		for _, item := range items {
			errs = append(errs, scalarString(item))
		}
	}
	if len(errs) == 0 {
		errs = []string{"invalid content"}
	}
	return parser.Invalid(errs...)
}

// call runs fn from a freshly loaded runtime.
func (s *Script) call(ctx context.Context, fn string, args ...any) (goja.Value, error) {
	vm, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	f, ok := goja.AssertFunction(vm.Get(fn))
	if !ok {
		return nil, fmt.Errorf("script does not define %s()", fn)
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = vm.ToValue(a)
	}

	stop := watch(ctx, vm)
	defer stop()
	v, err := f(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, interruptError(ctx, err)
	}
	return v, nil
}

// load creates a runtime, installs the host functions and runs the script
// body.
func (s *Script) load(ctx context.Context) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxScriptCallStack)
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	printFunc := func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		s.logger.Debug("script output", "text", strings.Join(args, " "))
		return goja.Undefined()
	}
	if err := vm.Set("print", printFunc); err != nil {
		return nil, fmt.Errorf("failed to set print: %w", err)
	}
	console := vm.NewObject()
	if err := console.Set("log", printFunc); err != nil {
		return nil, fmt.Errorf("failed to set console.log: %w", err)
	}
	if err := vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("failed to set console: %w", err)
	}

	stop := watch(ctx, vm)
	defer stop()
	if _, err := vm.RunProgram(s.program); err != nil {
		return nil, interruptError(ctx, err)
	}
	return vm, nil
}

// watch interrupts vm when ctx ends. The returned func stops watching.
func watch(ctx context.Context, vm *goja.Runtime) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution timeout or cancelled")
		case <-done:
		}
	}()
	return func() { close(done) }
}

// interruptError ties an interrupted run back to the context that ended it.
func interruptError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("execution interrupted: %v: %w", interrupted.Value(), cerr)
		}
		return fmt.Errorf("execution interrupted: %v", interrupted.Value())
	}
	return err
}

func optionsValue(opts parser.Options) map[string]any {
	out := map[string]any{
		"maxDepth": opts.MaxDepth,
		"strict":   opts.Strict,
		"filename": opts.Filename,
	}
	if opts.Extra != nil {
		out["extra"] = node.CloneValue(opts.Extra)
	}
	return out
}

func hintsValue(h format.Hints) map[string]any {
	return map[string]any{
		"format":    h.Format,
		"mimeType":  h.MIMEType,
		"filename":  h.Filename,
		"extension": h.Ext(),
	}
}
