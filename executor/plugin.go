package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/opsorch/opsorch-multiquery/orcherr"
	"github.com/opsorch/opsorch-multiquery/schema"
)

const methodExecute = "query.execute"

// PluginExecutor runs queries through a local executor binary speaking newline-delimited
// JSON-RPC on stdin/stdout. Each environment gets its own long-lived process, so calls to
// different environments proceed concurrently while calls to one environment serialize.
type PluginExecutor struct {
	path   string
	config map[string]any

	mu      sync.Mutex
	runners map[string]*pluginRunner
}

// NewPluginExecutor builds an executor for the plugin binary at path.
func NewPluginExecutor(path string, config map[string]any) *PluginExecutor {
	if config == nil {
		config = map[string]any{}
	}
	return &PluginExecutor{path: path, config: config, runners: make(map[string]*pluginRunner)}
}

type executePayload struct {
	Environment schema.Environment `json:"environment"`
	Query       string             `json:"query"`
	TimeRange   schema.TimeRange   `json:"timeRange"`
}

// Execute implements Executor.
func (p *PluginExecutor) Execute(ctx context.Context, env schema.Environment, query string, tr schema.TimeRange) (schema.RowSet, error) {
	var res schema.RowSet
	err := p.runnerFor(env.ID).call(ctx, methodExecute, executePayload{Environment: env, Query: query, TimeRange: tr}, &res)
	return res, err
}

// Close stops every plugin process.
func (p *PluginExecutor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, r := range p.runners {
		r.close()
		delete(p.runners, id)
	}
	return nil
}

func (p *PluginExecutor) runnerFor(envID string) *pluginRunner {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runners[envID]
	if !ok {
		r = &pluginRunner{path: p.path, config: p.config}
		p.runners[envID] = r
	}
	return r
}

// pluginRunner owns one plugin process. A call whose context ends kills the process;
// the next call starts a fresh one.
type pluginRunner struct {
	path   string
	config map[string]any

	mu   sync.Mutex
	proc *pluginProcess
}

type pluginProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

type rpcRequest struct {
	Method  string         `json:"method"`
	Config  map[string]any `json:"config"`
	Payload any            `json:"payload"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type rpcOutcome struct {
	resp rpcResponse
	err  error
}

func (r *pluginRunner) call(ctx context.Context, method string, payload any, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The caller may have given up while waiting for the lock.
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.proc == nil {
		// Keep the process alive across calls; don't tie its lifetime to the request context.
		proc, err := startPlugin(r.path)
		if err != nil {
			return orcherr.New(orcherr.CodeBackendError, "start executor plugin", err)
		}
		r.proc = proc
	}

	proc := r.proc
	done := make(chan rpcOutcome, 1)
	go func() {
		if err := proc.enc.Encode(rpcRequest{Method: method, Config: r.config, Payload: payload}); err != nil {
			done <- rpcOutcome{err: orcherr.New(orcherr.CodeBackendError, "write plugin request", err)}
			return
		}
		var resp rpcResponse
		if err := proc.dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				done <- rpcOutcome{err: orcherr.New(orcherr.CodeBackendError, "plugin exited", err)}
				return
			}
			done <- rpcOutcome{err: orcherr.New(orcherr.CodeMalformedResponse, "decode plugin response", err)}
			return
		}
		done <- rpcOutcome{resp: resp}
	}()

	var outcome rpcOutcome
	select {
	case <-ctx.Done():
		r.reset()
		return ctx.Err()
	case outcome = <-done:
	}

	if outcome.err != nil {
		r.reset()
		return outcome.err
	}
	if outcome.resp.Error != nil {
		code := outcome.resp.Error.Code
		if code == "" {
			code = orcherr.CodeBackendError
		}
		return orcherr.New(code, outcome.resp.Error.Message, nil)
	}
	if out != nil && outcome.resp.Result != nil {
		if err := json.Unmarshal(outcome.resp.Result, out); err != nil {
			return orcherr.New(orcherr.CodeMalformedResponse, "decode plugin result", err)
		}
	}
	return nil
}

func (r *pluginRunner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// reset kills the current process. Callers hold r.mu.
func (r *pluginRunner) reset() {
	if r.proc == nil {
		return
	}
	proc := r.proc
	r.proc = nil
	_ = proc.stdin.Close()
	if proc.cmd.Process != nil {
		_ = proc.cmd.Process.Kill()
	}
	go func() { _ = proc.cmd.Wait() }()
}

func startPlugin(path string) (*pluginProcess, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &pluginProcess{
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		dec:   json.NewDecoder(stdout),
	}, nil
}

// NewPluginProvider is the "plugin" adapter constructor. Config keys: "path" (required)
// and "config" (object handed to the plugin on every call).
func NewPluginProvider(config map[string]any) (Executor, error) {
	path, _ := config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("plugin executor requires 'path' in config")
	}
	pluginCfg, _ := config["config"].(map[string]any)
	return NewPluginExecutor(path, pluginCfg), nil
}

func init() {
	_ = RegisterProvider("plugin", NewPluginProvider)
}
