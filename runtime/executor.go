package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs one workflow graph. It holds the variables and results of a
// single execution and is not reusable across runs.
type Executor struct {
	id    string
	nodes []Node
	edges []Edge

	onLog   LogFunc
	tracker *Tracker
	vars    *Scope

	l         *slog.Logger
	registry  *Registry
	settings  *Settings
	cfg       Config
	api       API
	approver  Approver
	evaluator ExpressionEvaluator

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	instruments    *instruments

	aborted atomic.Bool
}

type Option func(*Executor)

func WithRegistry(r *Registry) Option {
	return func(e *Executor) { e.registry = r }
}

func WithSettings(s *Settings) Option {
	return func(e *Executor) { e.settings = s }
}

func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

func WithAPI(api API) Option {
	return func(e *Executor) { e.api = api }
}

func WithApprover(a Approver) Option {
	return func(e *Executor) { e.approver = a }
}

func WithEvaluator(ev ExpressionEvaluator) Option {
	return func(e *Executor) { e.evaluator = ev }
}

// WithLogger sets the operator logger. Engine lines still go to the LogFunc.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.l = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Executor) { e.meterProvider = mp }
}

func WithExecutionID(id string) Option {
	return func(e *Executor) { e.id = id }
}

// NewExecutor prepares an execution of nodes and edges. onProgress receives a
// snapshot of every node result after each change and onLog every log line;
// either may be nil. Environment variables from the settings are seeded into
// the variables here.
func NewExecutor(nodes []Node, edges []Edge, onProgress ProgressFunc, onLog LogFunc, opts ...Option) *Executor {
	if onLog == nil {
		onLog = discardLog
	}
	e := &Executor{
		nodes:   nodes,
		edges:   edges,
		onLog:   onLog,
		tracker: NewTracker(onProgress),
		vars:    NewScope(),
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.id == "" {
		e.id = uuid.New().String()
	}
	if e.l == nil {
		e.l = slog.Default()
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.evaluator == nil {
		e.evaluator = NewExprEvaluator()
	}
	e.l = e.l.With("execution", e.id)
	e.instruments = newInstruments(e.tracerProvider, e.meterProvider)
	e.settings.seed(e.vars)
	return e
}

func (e *Executor) ID() string {
	return e.id
}

// Variables returns the root variable scope.
func (e *Executor) Variables() *Scope {
	return e.vars
}

// Results returns a snapshot of all node results so far.
func (e *Executor) Results() []NodeResult {
	return e.tracker.Snapshot()
}

func (e *Executor) Evaluator() ExpressionEvaluator {
	return e.evaluator
}

// Abort stops the execution from starting new node visits. Handlers already
// running finish and their results are recorded.
func (e *Executor) Abort() {
	if e.aborted.CompareAndSwap(false, true) {
		e.onLog(LevelWarn, "Execution aborted by user", "")
	}
}

func (e *Executor) Aborted() bool {
	return e.aborted.Load()
}

func (e *Executor) stopped(ctx context.Context) bool {
	return e.aborted.Load() || ctx.Err() != nil
}

// Execute walks the graph from each trigger node in turn. It returns the
// first failure not absorbed by a try/catch node, or a pre-flight error when
// the graph cannot be compiled. Cancelling ctx stops new visits like Abort
// and is reported as ctx.Err().
func (e *Executor) Execute(ctx context.Context) error {
	g, err := NewGraph(e.nodes, e.edges)
	if err != nil {
		e.onLog(LevelError, fmt.Sprintf("Workflow execution failed: %s", err), "")
		e.l.ErrorContext(ctx, "Graph rejected", "error", err)
		return err
	}

	triggers := g.Triggers()
	e.onLog(LevelInfo, fmt.Sprintf("Found %d trigger node(s)", len(triggers)), "")
	e.l.DebugContext(ctx, fmt.Sprintf("Executing graph with %d nodes", len(e.nodes)), "triggers", len(triggers))

	for _, trigger := range triggers {
		if e.stopped(ctx) {
			break
		}
		w := newWalker(e, g, e.vars)
		if err := w.walk(ctx, []string{trigger.ID}); err != nil {
			e.onLog(LevelError, fmt.Sprintf("Workflow execution failed: %s", err), "")
			failed, _ := FailedNode(err)
			e.l.ErrorContext(ctx, fmt.Sprintf("Execution failed at trigger %s", trigger.ID), "error", err, "node", failed)
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		e.onLog(LevelWarn, "Workflow execution cancelled", "")
		return err
	}
	if e.aborted.Load() {
		e.l.InfoContext(ctx, "Execution aborted")
		return nil
	}

	e.onLog(LevelSuccess, "Workflow execution completed", "")
	return nil
}

// Run executes and summarizes the outcome as an ExecutionRecord. The returned
// error is the one Execute reported; the record is filled in either way.
func (e *Executor) Run(ctx context.Context, flowID, flowName string) (ExecutionRecord, error) {
	record := ExecutionRecord{
		ID:        e.id,
		FlowID:    flowID,
		FlowName:  flowName,
		StartedAt: time.Now(),
	}

	err := e.Execute(ctx)

	record.EndedAt = time.Now()
	record.Results = e.tracker.Snapshot()
	switch {
	case err != nil:
		record.Status = ExecutionError
		record.Error = err.Error()
	case e.aborted.Load():
		record.Status = ExecutionAborted
	default:
		record.Status = ExecutionSuccess
	}
	return record, err
}

// runNode interpolates the node's config and invokes its handler. Unknown
// node types log a warning and produce a nil output.
func (e *Executor) runNode(ctx context.Context, node Node, scope *Scope) (output any, err error) {
	ctx, span := e.instruments.start(ctx, e.id, node)
	started := time.Now()
	defer func() {
		e.instruments.end(ctx, span, node, started, err)
	}()

	data := NewInterpolator(scope).Config(node.Config)

	h, ok := e.registry.Lookup(node.NodeType)
	if !ok {
		e.onLog(LevelWarn, fmt.Sprintf("Unknown node type: %s", node.NodeType), node.ID)
		return nil, nil
	}

	nc := &NodeContext{
		Context:   ctx,
		NodeID:    node.ID,
		NodeType:  node.NodeType,
		Data:      data,
		Variables: scope,
		Settings:  e.settings,
		API:       e.api,
		Evaluator: e.evaluator,
		Logger:    e.l.With("node", node.ID),
		onLog:     e.onLog,
	}

	output, err = invoke(h, nc)
	if err != nil {
		return nil, &NodeError{NodeID: node.ID, NodeType: node.NodeType, Err: err}
	}
	return output, nil
}

func invoke(h Handler, nc *NodeContext) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(nc)
}

// confirm asks the approver, bounded by ApprovalTimeout when set.
func (e *Executor) confirm(ctx context.Context, title, message string) (bool, error) {
	if e.approver == nil {
		return false, ErrNoApprover
	}
	if e.cfg.ApprovalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ApprovalTimeout)
		defer cancel()
	}

	approved, err := e.approver.Confirm(ctx, title, message)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, fmt.Errorf("no decision within %s: %w", e.cfg.ApprovalTimeout, err)
	}
	return approved, err
}
