package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// IPC commands understood by executable plugins.
const (
	CommandParse    = "parse"
	CommandValidate = "validate"
)

// IPCRequest is the JSON document written to a plugin's stdin.
type IPCRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// IPCResponse is the JSON document a plugin writes to stdout.
type IPCResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ExecSpec describes a parser implemented by an external program.
type ExecSpec struct {
	Spec
	Command string
	Args    []string
	Dir     string
	// ProbeTimeout bounds validate calls, which run outside the manager's
	// parse budget.
	ProbeTimeout time.Duration
}

// Executable runs a parser as a separate OS process per call. The process
// receives one IPCRequest on stdin and must answer with one IPCResponse on
// stdout. It is killed when the call's context ends.
type Executable struct {
	spec ExecSpec
}

// NewExecutable checks spec and resolves its command.
func NewExecutable(spec ExecSpec) (*Executable, error) {
	if spec.primary() == "" {
		return nil, apperrors.NewPlugin("", apperrors.KindInvalidMetadata, "executable has no format")
	}
	if strings.TrimSpace(spec.Command) == "" {
		return nil, apperrors.NewPlugin(spec.primary(), apperrors.KindInvalidParser, "executable has no command")
	}
	path, err := exec.LookPath(spec.Command)
	if err != nil {
		return nil, apperrors.WrapPlugin(spec.primary(), apperrors.KindInvalidParser, "command not found", err)
	}
	spec.Command = path
	if spec.ProbeTimeout <= 0 {
		spec.ProbeTimeout = DefaultProbeTimeout
	}
	if spec.Capabilities == (parser.Capabilities{}) {
		spec.Capabilities = parser.Capabilities{Validation: true}
	}
	return &Executable{spec: spec}, nil
}

// Module wraps the executable for Manager.Register.
func (e *Executable) Module() Module {
	return Module{
		Metadata: e.spec.Metadata,
		Kind:     KindExecutable,
		New:      func() parser.Parser { return e },
	}
}

func (e *Executable) Name() string                      { return e.spec.Name }
func (e *Executable) SupportedFormats() []string        { return e.spec.formats() }
func (e *Executable) SupportedMIMETypes() []string      { return append([]string(nil), e.spec.MIMETypes...) }
func (e *Executable) Capabilities() parser.Capabilities { return e.spec.Capabilities }
func (e *Executable) Describe() parser.Descriptor       { return e.spec.describe() }

// CanParse never starts the process; it relies on hints and signatures.
func (e *Executable) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(e.spec.primary(), content)
	if e.spec.hinted(hints) {
		score = max(score, 0.5)
	}
	return score
}

func (e *Executable) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return node.NewEmpty(e.spec.primary()), nil
	}

	resp, err := e.execute(ctx, &IPCRequest{
		Command: CommandParse,
		Args: map[string]any{
			"content": content,
			"format":  e.spec.primary(),
			"options": optionsValue(opts),
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		perr := apperrors.NewParse(e.spec.primary(), e.spec.Name, errors.New(resp.Error))
		if opts.Strict {
			return nil, perr
		}
		return node.NewError(e.spec.primary(), perr), nil
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Result))
	dec.UseNumber()
	var result any
	if err := dec.Decode(&result); err != nil {
		return nil, apperrors.WrapPlugin(e.spec.primary(), apperrors.KindInvalidResult, "failed to decode result", err)
	}
	tree, err := FromValue(result, opts.MaxNodes)
	if err != nil {
		return nil, resultError(e.spec.primary(), "result is not a tree", opts.MaxNodes, err)
	}
	return tree, nil
}

func (e *Executable) Validate(content string) parser.ValidationResult {
	ctx, cancel := context.WithTimeout(context.Background(), e.spec.ProbeTimeout)
	defer cancel()

	resp, err := e.execute(ctx, &IPCRequest{
		Command: CommandValidate,
		Args:    map[string]any{"content": content, "format": e.spec.primary()},
	})
	if err != nil {
		return parser.Invalid(err.Error())
	}
	if resp.Status == "error" {
		return parser.Invalid(resp.Error)
	}
	var res parser.ValidationResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return parser.Invalid(fmt.Sprintf("failed to decode result: %v", err))
	}
	if res.Valid {
		return parser.Valid()
	}
	if len(res.Errors) == 0 {
		res.Errors = []string{"invalid content"}
	}
	return res
}

// execute runs the process once for req.
func (e *Executable) execute(ctx context.Context, req *IPCRequest) (*IPCResponse, error) {
	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	// The process is killed when ctx ends
	cmd := exec.CommandContext(ctx, e.spec.Command, e.spec.Args...)
	cmd.Dir = e.spec.Dir
	cmd.Stdin = bytes.NewReader(reqData)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("plugin process stopped: %w", cerr)
	}
	if err != nil {
		return nil, apperrors.WrapPlugin(e.spec.primary(), apperrors.KindExecution,
			fmt.Sprintf("plugin process failed (stderr: %s)", strings.TrimSpace(stderr.String())), err)
	}

	var resp IPCResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, apperrors.WrapPlugin(e.spec.primary(), apperrors.KindInvalidResult, "failed to decode response", err)
	}
	if resp.Status != "ok" && resp.Status != "error" {
		return nil, apperrors.NewPlugin(e.spec.primary(), apperrors.KindInvalidResult,
			fmt.Sprintf("unknown response status %q", resp.Status))
	}
	return &resp, nil
}
