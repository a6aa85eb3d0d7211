package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zen-systems/taskpilot/pkg/patch"
	"github.com/zen-systems/taskpilot/pkg/safety"
)

const (
	defaultOutputCap    = 64 * 1024
	defaultShellTimeout = 30 * time.Second
	defaultProbeTimeout = 10 * time.Second
	truncationMarker    = "\n[output truncated]"
	maxGrepMatches      = 200
)

// mutationMu serializes mutating tool calls across every executor in the
// process. Concurrent runs against the same workspace interleave reads
// freely but never interleave two writes.
var mutationMu sync.Mutex

// Config configures an Executor for one run.
type Config struct {
	// Root is the workspace boundary. Path resolution must never leave it.
	Root string
	// Gate carries the run's safety mode.
	Gate *safety.Gate
	// OutputCap bounds captured output; 0 selects the default.
	OutputCap int
	// ShellTimeout bounds shell commands that do not request their own.
	ShellTimeout time.Duration
	// HTTPClient serves curl_probe calls; nil selects a default with a
	// probe timeout.
	HTTPClient *http.Client
}

// Executor validates and performs tool calls against one workspace.
type Executor struct {
	registry     *Registry
	gate         *safety.Gate
	root         string
	outputCap    int
	shellTimeout time.Duration
	httpClient   *http.Client
}

// NewExecutor creates an executor rooted at cfg.Root.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("safety gate is required")
	}

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	outputCap := cfg.OutputCap
	if outputCap <= 0 {
		outputCap = defaultOutputCap
	}
	shellTimeout := cfg.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = defaultShellTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProbeTimeout}
	}

	return &Executor{
		registry:     registry,
		gate:         cfg.Gate,
		root:         root,
		outputCap:    outputCap,
		shellTimeout: shellTimeout,
		httpClient:   httpClient,
	}, nil
}

// Root returns the absolute workspace root.
func (e *Executor) Root() string {
	return e.root
}

// Registry exposes the executor's tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute validates and performs one tool call. All failure paths return a
// typed Result.Error; Execute itself never panics or returns a Go error.
// roleReadOnly marks calls from roles that must never mutate regardless of
// the run's mode.
func (e *Executor) Execute(ctx context.Context, call Call, roleReadOnly bool) (result Result) {
	start := time.Now()
	defer func() {
		// A panicking tool fails its own call, not the run.
		if r := recover(); r != nil {
			result = failure(executionError("%s panicked: %v", call.Kind, r))
		}
		result.Duration = time.Since(start)
	}()
	return e.dispatch(ctx, call, roleReadOnly)
}

func (e *Executor) dispatch(ctx context.Context, call Call, roleReadOnly bool) Result {
	spec, ok := e.registry.Lookup(call.Kind)
	if !ok {
		return failure(invalidArguments("unknown tool kind: %s", call.Kind))
	}
	if err := spec.ValidateArgs(call.Args); err != nil {
		return failure(invalidArguments("%s args: %v", call.Kind, err))
	}

	switch call.Kind {
	case KindFSRead:
		return e.fsRead(call)
	case KindGrep:
		return e.grep(call)
	case KindCurlProbe:
		return e.curlProbe(ctx, call)
	case KindFSWrite:
		return e.fsWrite(call, roleReadOnly)
	case KindPatch:
		return e.applyPatch(call, roleReadOnly)
	case KindShell:
		return e.shell(ctx, call, roleReadOnly)
	default:
		return failure(invalidArguments("unhandled tool kind: %s", call.Kind))
	}
}

func (e *Executor) fsRead(call Call) Result {
	path, perr := resolvePath(e.root, call.stringArg("path"))
	if perr != nil {
		return failure(perr)
	}

	info, err := os.Stat(path)
	if err != nil {
		return failure(executionError("stat %s: %v", call.stringArg("path"), err))
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return failure(executionError("read dir %s: %v", call.stringArg("path"), err))
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		output, truncated := e.cap(strings.Join(names, "\n"))
		return Result{OK: true, Output: output, Truncated: truncated}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failure(executionError("read %s: %v", call.stringArg("path"), err))
	}
	output, truncated := e.cap(string(data))
	return Result{OK: true, Output: output, Truncated: truncated}
}

func (e *Executor) grep(call Call) Result {
	pattern, err := regexp.Compile(call.stringArg("pattern"))
	if err != nil {
		return failure(invalidArguments("invalid pattern: %v", err))
	}

	searchRoot := e.root
	if sub := call.stringArg("path"); sub != "" {
		resolved, perr := resolvePath(e.root, sub)
		if perr != nil {
			return failure(perr)
		}
		searchRoot = resolved
	}

	var matches []string
	walkErr := filepath.WalkDir(searchRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == ".taskpilot" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			rel = path
		}
		for i, line := range strings.Split(string(data), "\n") {
			if pattern.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
				if len(matches) >= maxGrepMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return failure(executionError("search: %v", walkErr))
	}

	output, truncated := e.cap(strings.Join(matches, "\n"))
	if len(matches) == 0 {
		output = "no matches"
	}
	return Result{OK: true, Output: output, Truncated: truncated}
}

func (e *Executor) curlProbe(ctx context.Context, call Call) Result {
	url := call.stringArg("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return failure(invalidArguments("url must be http or https: %s", url))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(invalidArguments("invalid url: %v", err))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Client timeouts surface as net.Errors, not always as a wrapped
		// context.DeadlineExceeded.
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return failure(&Error{Kind: ErrTimeout, Message: fmt.Sprintf("probe %s timed out", url)})
		}
		return failure(executionError("probe %s: %v", url, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(e.outputCap)))
	output, truncated := e.cap(fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, body))
	return Result{OK: resp.StatusCode < 400, Output: output, Truncated: truncated}
}

func (e *Executor) fsWrite(call Call, roleReadOnly bool) Result {
	relPath := call.stringArg("path")
	content := call.stringArg("content")

	// PathEscape stays a hard error in dryrun: a bad path is rejected,
	// never simulated.
	path, perr := resolvePath(e.root, relPath)
	if perr != nil {
		return failure(perr)
	}

	decision := e.gate.Authorize(string(call.Kind), true, roleReadOnly)
	if !decision.Allowed {
		output := fmt.Sprintf("would write %s (%d bytes)", relPath, len(content))
		return Result{OK: true, Output: output, SideEffect: false}
	}

	mutationMu.Lock()
	defer mutationMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure(executionError("mkdir for %s: %v", relPath, err))
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return failure(executionError("write %s: %v", relPath, err))
	}
	return Result{
		OK:         true,
		Output:     fmt.Sprintf("wrote %s (%d bytes)", relPath, len(content)),
		SideEffect: true,
	}
}

func (e *Executor) applyPatch(call Call, roleReadOnly bool) Result {
	patches, err := patch.Parse(call.stringArg("diff"))
	if err != nil {
		return failure(invalidArguments("parse diff: %v", err))
	}

	// Resolve every target before touching anything so a single escaping
	// path rejects the whole patch.
	type plannedOp struct {
		filePatch patch.FilePatch
		path      string
		relative  string
	}
	plans := make([]plannedOp, 0, len(patches))
	for _, filePatch := range patches {
		target := filePatch.TargetPath()
		path, perr := resolvePath(e.root, target)
		if perr != nil {
			return failure(perr)
		}
		plans = append(plans, plannedOp{filePatch: filePatch, path: path, relative: target})
	}

	decision := e.gate.Authorize(string(call.Kind), true, roleReadOnly)
	if !decision.Allowed {
		targets := make([]string, 0, len(plans))
		for _, plan := range plans {
			targets = append(targets, plan.relative)
		}
		output := fmt.Sprintf("would apply patch to %d file(s): %s", len(plans), strings.Join(targets, ", "))
		return Result{OK: true, Output: output, SideEffect: false}
	}

	mutationMu.Lock()
	defer mutationMu.Unlock()

	var applied, deleted []string
	for _, plan := range plans {
		if plan.filePatch.IsDelete() {
			if err := os.Remove(plan.path); err != nil && !os.IsNotExist(err) {
				return failure(executionError("delete %s: %v", plan.relative, err))
			}
			deleted = append(deleted, plan.relative)
			continue
		}

		var original string
		if data, err := os.ReadFile(plan.path); err == nil {
			original = string(data)
		} else if !os.IsNotExist(err) {
			return failure(executionError("read %s: %v", plan.relative, err))
		}

		updated, err := patch.Apply(original, plan.filePatch.Hunks)
		if err != nil {
			return failure(executionError("apply patch to %s: %v", plan.relative, err))
		}
		if err := os.MkdirAll(filepath.Dir(plan.path), 0755); err != nil {
			return failure(executionError("mkdir for %s: %v", plan.relative, err))
		}
		if err := os.WriteFile(plan.path, []byte(updated), 0644); err != nil {
			return failure(executionError("write %s: %v", plan.relative, err))
		}
		applied = append(applied, plan.relative)
	}

	var parts []string
	if len(applied) > 0 {
		parts = append(parts, "applied: "+strings.Join(applied, ", "))
	}
	if len(deleted) > 0 {
		parts = append(parts, "deleted: "+strings.Join(deleted, ", "))
	}
	return Result{OK: true, Output: strings.Join(parts, "; "), SideEffect: true}
}

func (e *Executor) shell(ctx context.Context, call Call, roleReadOnly bool) Result {
	cmdText := call.stringArg("cmd")

	timeout := e.shellTimeout
	if seconds, ok := call.intArg("timeout_seconds"); ok {
		timeout = time.Duration(seconds) * time.Second
	}

	decision := e.gate.Authorize(string(call.Kind), true, roleReadOnly)
	if !decision.Allowed {
		return Result{
			OK:         true,
			Output:     fmt.Sprintf("would run: %s", cmdText),
			SideEffect: false,
		}
	}

	mutationMu.Lock()
	defer mutationMu.Unlock()

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", cmdText)
	cmd.Dir = e.root
	combined, err := cmd.CombinedOutput()
	output, truncated := e.cap(string(combined))

	if cmdCtx.Err() == context.DeadlineExceeded {
		return Result{
			Output:    output,
			Truncated: truncated,
			Error:     &Error{Kind: ErrTimeout, Message: fmt.Sprintf("command exceeded %s", timeout)},
			// The process ran before it was killed.
			SideEffect: true,
		}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				Output:     output,
				Truncated:  truncated,
				Error:      executionError("exit status %d", exitErr.ExitCode()),
				SideEffect: true,
			}
		}
		return failure(executionError("run command: %v", err))
	}

	return Result{OK: true, Output: output, Truncated: truncated, SideEffect: true}
}

func (e *Executor) cap(output string) (string, bool) {
	if len(output) <= e.outputCap {
		return output, false
	}
	return output[:e.outputCap] + truncationMarker, true
}
