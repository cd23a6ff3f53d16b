package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/consent/internal/binding"
	"github.com/roach88/consent/internal/capability"
	"github.com/roach88/consent/internal/coordinator"
	"github.com/roach88/consent/internal/journal"
	"github.com/roach88/consent/internal/testutil"
)

// Harness is the scenario execution engine.
// It drives a real coordinator with scripted contexts, a deterministic clock and
// fixed stack ids, so the same scenario always yields the same trace.
//
// Single-goroutine: steps, observer callbacks and platform requests all run on
// the goroutine that called Run, which keeps trace order equal to seq order.
type Harness struct {
	coord    *coordinator.Coordinator
	journal  *journal.Journal
	clock    *coordinator.Clock
	logger   *slog.Logger
	contexts map[string]*testutil.FakeContext
	tops     map[string]*binding.Handle
	subs     map[string]*binding.Handle

	// handler names per key in push order, moved to delivering on resolve
	pending    map[string][]string
	delivering map[string][]string
	requesting string

	result *Result
}

// RunOption configures a scenario run.
type RunOption func(*runConfig)

type runConfig struct {
	logger      *slog.Logger
	journalPath string
}

// WithLogger routes coordinator logs to l. Default: discarded.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithJournalPath records the run into the SQLite journal at path instead of
// a throwaway in-memory one.
func WithJournalPath(path string) RunOption {
	return func(c *runConfig) {
		c.journalPath = path
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh coordinator and, unless WithJournalPath is
// given, a fresh in-memory journal.
// A non-nil error means the harness itself failed; scenario failures are reported
// through Result.Pass and Result.Errors.
//
// Execution flow:
// 1. Open the journal and a coordinator wired to the trace recorder
// 2. Create the declared contexts
// 3. Execute steps, checking expect_error on each
// 4. Snapshot the registry and evaluate assertions
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		journalPath: ":memory:",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	j, err := journal.Open(cfg.journalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	ctx := context.Background()
	h := &Harness{
		journal:    j,
		clock:      coordinator.NewClock(),
		logger:     cfg.logger,
		contexts:   make(map[string]*testutil.FakeContext, len(scenario.Contexts)),
		tops:       make(map[string]*binding.Handle),
		subs:       make(map[string]*binding.Handle),
		pending:    make(map[string][]string),
		delivering: make(map[string][]string),
		result:     NewResult(),
	}

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(cfg.logger),
		coordinator.WithClock(h.clock),
		coordinator.WithStackIDs(coordinator.NewFixedGenerator()),
		coordinator.WithObserver(coordinator.Observers{
			coordinator.ObserverFunc(h.observe),
			j.Observer(ctx, cfg.logger),
		}),
	}
	if scenario.MaxRequestCode > 0 {
		coordOpts = append(coordOpts, coordinator.WithMaxRequestCode(scenario.MaxRequestCode))
	}
	h.coord = coordinator.New(coordOpts...)

	for _, decl := range scenario.Contexts {
		h.contexts[decl.Name] = h.newContext(decl)
	}

	for i, step := range scenario.Steps {
		err := h.execStep(step)
		h.checkStepError(i, step, err)
	}

	h.result.Registry = h.coord.Snapshot()

	actx := &AssertionContext{
		Journal: j,
		Ctx:     ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

func (h *Harness) newContext(decl ContextDecl) *testutil.FakeContext {
	fc := testutil.NewFakeContext(decl.Kind)
	fc.Grant(decl.Grants...)
	name := decl.Name
	fc.OnIssue = func(req testutil.Issued) {
		h.result.AddTrace(TraceEvent{
			Seq:          h.clock.Next(),
			Type:         TracePlatformRequest,
			Context:      name,
			RequestCode:  req.RequestCode,
			Capabilities: req.Capabilities,
		})
	}
	return fc
}

// execStep runs one step and returns the coordinator error, if any.
func (h *Harness) execStep(step Step) error {
	switch {
	case step.BindTop != "":
		h.traceBind(TraceBindTop, step.BindTop)
		h.tops[step.BindTop] = h.coord.BindTop(nil, h.contexts[step.BindTop])
	case step.BindSub != "":
		h.traceBind(TraceBindSub, step.BindSub)
		h.subs[step.BindSub] = h.coord.BindSub(nil, h.contexts[step.BindSub])
	case step.UnbindTop != "":
		h.traceBind(TraceUnbindTop, step.UnbindTop)
		h.coord.BindTop(h.tops[step.UnbindTop], nil)
	case step.UnbindSub != "":
		h.traceBind(TraceUnbindSub, step.UnbindSub)
		h.coord.BindSub(h.subs[step.UnbindSub], nil)
	case step.Finish != "":
		h.traceBind(TraceFinish, step.Finish)
		h.contexts[step.Finish].SetLive(false)
	case step.Request != nil:
		return h.request(step.Request)
	case step.Result != nil:
		if step.Result.Codes != nil {
			return h.coord.HandleGrantCodes(step.Result.Capabilities, step.Result.Codes)
		}
		return h.coord.HandleResult(step.Result.Capabilities, step.Result.Granted)
	case step.Check != nil:
		return h.check(step.Check)
	}
	return nil
}

func (h *Harness) traceBind(typ, name string) {
	h.result.AddTrace(TraceEvent{
		Seq:     h.clock.Next(),
		Type:    typ,
		Context: name,
	})
}

func (h *Harness) request(req *RequestStep) error {
	name, fail := req.Handler, req.Fail
	handler := coordinator.ErrHandlerFunc(func(rs capability.ResultSet) error {
		h.result.Calls[name] = append(h.result.Calls[name], rs.Map())
		if fail != "" {
			return errors.New(fail)
		}
		return nil
	})

	h.requesting = name
	defer func() { h.requesting = "" }()
	return h.coord.Request(handler, req.Code, req.Capabilities...)
}

func (h *Harness) check(chk *CheckStep) error {
	granted, err := h.coord.IsGranted(chk.Capability)
	if err != nil {
		return err
	}
	if granted != chk.Expect {
		h.result.AddError(fmt.Sprintf("check %s: expected granted=%v, got %v", chk.Capability, chk.Expect, granted))
	}
	return nil
}

func (h *Harness) checkStepError(index int, step Step, err error) {
	if step.ExpectError == "" {
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
		}
		return
	}
	if err == nil {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, got success", index, step.ExpectError))
		return
	}
	if code := coordinator.CodeOf(err); string(code) != step.ExpectError {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, got %v", index, step.ExpectError, err))
	}
}

// observe converts coordinator events into trace entries, keeping only the
// fields that matter for each type so golden files stay readable.
func (h *Harness) observe(e coordinator.Event) {
	te := TraceEvent{Seq: e.Seq, Type: string(e.Type), Key: e.Key}

	switch e.Type {
	case coordinator.EventQueued, coordinator.EventJoined:
		h.pending[e.Key] = append(h.pending[e.Key], h.requesting)
		te.StackID = e.StackID
		te.RequestCode = e.RequestCode
		te.Capabilities = e.Capabilities
	case coordinator.EventIssued, coordinator.EventDeferred:
		te.StackID = e.StackID
		te.RequestCode = e.RequestCode
		te.Capabilities = e.Capabilities
	case coordinator.EventResolved:
		h.delivering[e.Key] = h.pending[e.Key]
		delete(h.pending, e.Key)
		te.StackID = e.StackID
		te.Result = e.Result.Map()
	case coordinator.EventDelivered, coordinator.EventDeliveryFailed:
		if names := h.delivering[e.Key]; e.Handler < len(names) {
			te.Handler = names[e.Handler]
		}
	case coordinator.EventUnknownResult:
		te.Result = e.Result.Map()
	case coordinator.EventMalformedResult:
		te.Capabilities = e.Capabilities
	}
	if e.Err != nil {
		te.Error = e.Err.Error()
	}

	h.result.AddTrace(te)
}
