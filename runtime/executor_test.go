package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder is the test double behind every node type used in these tests.
// It records the visit order, the variables each visit saw and the log.
type recorder struct {
	mu     sync.Mutex
	reg    *Registry
	visits []string
	seen   map[string][]map[string]any
	lines  []string
}

func newRecorder() *recorder {
	r := &recorder{reg: NewRegistry(), seen: make(map[string][]map[string]any)}
	for _, nodeType := range []string{
		"trigger_manual", "action_log",
		"condition_if", "condition_switch", "condition_try_catch",
		"condition_filter", "condition_manual_approval",
		"loop_foreach", "loop_repeat", "loop_while", "loop_parallel_foreach",
	} {
		r.reg.RegisterFunc(nodeType, r.echo)
	}
	r.reg.RegisterFunc("fail", func(nc *NodeContext) (any, error) {
		r.visit(nc)
		return nil, errors.New("boom")
	})
	return r
}

// echo returns config.out when present, the whole config otherwise.
func (r *recorder) echo(nc *NodeContext) (any, error) {
	r.visit(nc)
	if out, ok := nc.Data["out"]; ok {
		return out, nil
	}
	return nc.Data, nil
}

func (r *recorder) visit(nc *NodeContext) {
	vars := nc.Variables.All()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits = append(r.visits, nc.NodeID)
	r.seen[nc.NodeID] = append(r.seen[nc.NodeID], vars)
}

func (r *recorder) log(level LogLevel, message, nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf("%s: %s", level, message))
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.visits...)
}

// vars returns the variable snapshot of each visit of nodeID.
func (r *recorder) vars(nodeID string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[nodeID]
}

func (r *recorder) logged(level LogLevel, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.HasPrefix(line, string(level)+": ") && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newTestExecutor(nodes []Node, edges []Edge, opts ...Option) (*Executor, *recorder) {
	r := newRecorder()
	opts = append([]Option{
		WithRegistry(r.reg),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	return NewExecutor(nodes, edges, nil, r.log, opts...), r
}

func node(id, nodeType string, config map[string]any) Node {
	return Node{ID: id, NodeType: nodeType, Config: config}
}

func edge(source, target, handle string) Edge {
	return Edge{Source: source, Target: target, SourceHandle: handle}
}

func mustExecute(t *testing.T, e *Executor) {
	t.Helper()
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func assertOrder(t *testing.T, r *recorder, want ...string) {
	t.Helper()
	if got := r.order(); !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
}

func assertStatus(t *testing.T, e *Executor, nodeID string, want ResultStatus) {
	t.Helper()
	res, ok := e.tracker.Get(nodeID)
	if !ok {
		t.Fatalf("no result for %s", nodeID)
	}
	if res.Status != want {
		t.Errorf("%s status = %s, want %s", nodeID, res.Status, want)
	}
}

func TestExecute_DepthFirstInEdgeOrder(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("t", "trigger_manual", nil),
			node("a", "action_log", nil),
			node("b", "action_log", nil),
			node("c", "action_log", nil),
		},
		[]Edge{edge("t", "a", ""), edge("t", "b", ""), edge("a", "c", "")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "t", "a", "c", "b")
	if !r.logged(LevelInfo, "Found 1 trigger node(s)") {
		t.Error("Expected trigger count log line")
	}
	if !r.logged(LevelSuccess, "Workflow execution completed") {
		t.Error("Expected completion log line")
	}
}

func TestExecute_TriggersRunInListOrder(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("t1", "trigger_manual", nil),
			node("t2", "trigger_manual", nil),
			node("a", "action_log", nil),
		},
		[]Edge{edge("t1", "a", ""), edge("t2", "a", "")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "t1", "a", "t2", "a")
}

func TestExecute_OutputAliases(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("t", "trigger_manual", map[string]any{"out": map[string]any{"id": 7}}),
			node("a", "action_log", map[string]any{"out": "got {{lastOutput.id}} from {{node_t.id}}"}),
		},
		[]Edge{edge("t", "a", "")},
	)
	mustExecute(t, e)

	for _, key := range []string{"output", "result", "response", "lastOutput", "node_a"} {
		if v, _ := e.Variables().Get(key); v != "got 7 from 7" {
			t.Errorf("%s = %#v, want %q", key, v, "got 7 from 7")
		}
	}
	if len(r.vars("a")) != 1 {
		t.Errorf("Expected a single visit of a")
	}
}

func TestExecute_BooleanBranch(t *testing.T) {
	tests := []struct {
		name string
		out  any
		want []string
	}{
		{"true", true, []string{"if", "yes"}},
		{"false", false, []string{"if", "no"}},
		{"non-boolean is false", "true", []string{"if", "no"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, r := newTestExecutor(
				[]Node{
					node("if", "condition_if", map[string]any{"out": tt.out}),
					node("yes", "action_log", nil),
					node("no", "action_log", nil),
				},
				[]Edge{edge("if", "yes", "true"), edge("if", "no", "false")},
			)
			mustExecute(t, e)
			assertOrder(t, r, tt.want...)
		})
	}
}

func TestExecute_SwitchBranch(t *testing.T) {
	tests := []struct {
		name string
		out  any
		want []string
	}{
		{"matching case", "red", []string{"sw", "r1", "r2"}},
		{"numeric value matches its string form", 2, []string{"sw", "two"}},
		{"default", "green", []string{"sw", "fallback"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, r := newTestExecutor(
				[]Node{
					node("sw", "condition_switch", map[string]any{"out": tt.out}),
					node("r1", "action_log", nil),
					node("r2", "action_log", nil),
					node("two", "action_log", nil),
					node("fallback", "action_log", nil),
				},
				[]Edge{
					edge("sw", "r1", "red"),
					edge("sw", "two", "2"),
					edge("sw", "fallback", "default"),
					edge("sw", "r2", "red"),
				},
			)
			mustExecute(t, e)
			assertOrder(t, r, tt.want...)
		})
	}
}

func TestExecute_SwitchWithoutDefaultStops(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{node("sw", "condition_switch", map[string]any{"out": "blue"}), node("r", "action_log", nil)},
		[]Edge{edge("sw", "r", "red")},
	)
	mustExecute(t, e)
	assertOrder(t, r, "sw")
}

func TestExecute_TryCatch(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("try", "condition_try_catch", nil),
			node("f", "fail", nil),
			node("after", "action_log", nil),
			node("c", "action_log", nil),
		},
		[]Edge{edge("try", "f", "try"), edge("f", "after", ""), edge("try", "c", "catch")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "try", "f", "c")
	assertStatus(t, e, "f", StatusError)
	if got := r.vars("c")[0]["error"]; got != "boom" {
		t.Errorf("catch branch error = %#v, want boom", got)
	}
	if !r.logged(LevelWarn, "Caught error: boom. Routing to catch branch.") {
		t.Error("Expected caught error log line")
	}
	if !r.logged(LevelError, "Failed: f - boom") {
		t.Error("Expected failure log line")
	}
}

func TestExecute_TryCatchRethrows(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("try", "condition_try_catch", map[string]any{"continueOnError": false}),
			node("f", "fail", nil),
			node("c", "action_log", nil),
		},
		[]Edge{edge("try", "f", "try"), edge("try", "c", "catch")},
	)

	err := e.Execute(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Execute() error = %v, want boom", err)
	}
	assertOrder(t, r, "try", "f", "c")
}

func TestExecute_TryWithoutErrorSkipsCatch(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("try", "condition_try_catch", nil),
			node("ok", "action_log", nil),
			node("c", "action_log", nil),
		},
		[]Edge{edge("try", "ok", "try"), edge("try", "c", "catch")},
	)
	mustExecute(t, e)
	assertOrder(t, r, "try", "ok")
}

func TestExecute_FilterBranchesSeeTheirItems(t *testing.T) {
	filterOut := map[string]any{"matched": []any{1, 2}, "notMatched": []any{3}}
	e, r := newTestExecutor(
		[]Node{
			node("f", "condition_filter", map[string]any{"out": filterOut}),
			node("m", "action_log", nil),
			node("n", "action_log", nil),
		},
		[]Edge{edge("f", "n", "nomatch"), edge("f", "m", "match")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "f", "m", "n")
	if got := r.vars("m")[0]["output"]; !reflect.DeepEqual(got, []any{1, 2}) {
		t.Errorf("match branch output = %#v", got)
	}
	if got := r.vars("n")[0]["output"]; !reflect.DeepEqual(got, []any{3}) {
		t.Errorf("nomatch branch output = %#v", got)
	}
	if got, _ := e.Variables().Get("output"); !reflect.DeepEqual(got, filterOut) {
		t.Errorf("output after filter = %#v, want the filter's own output", got)
	}
}

func TestExecute_FilterSkipsEmptyBranch(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("f", "condition_filter", map[string]any{"out": map[string]any{"matched": []any{}, "notMatched": []any{"x"}}}),
			node("m", "action_log", nil),
			node("n", "action_log", nil),
		},
		[]Edge{edge("f", "m", "match"), edge("f", "n", "nomatch")},
	)
	mustExecute(t, e)
	assertOrder(t, r, "f", "n")
}

func TestExecute_ForEach(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("loop", "loop_foreach", map[string]any{"items": []any{"a", "b"}, "itemVar": "it"}),
			node("body", "action_log", nil),
			node("done", "action_log", nil),
		},
		[]Edge{edge("loop", "body", "loop"), edge("loop", "done", "done")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "loop", "body", "body", "done")
	visits := r.vars("body")
	for i, want := range []string{"a", "b"} {
		if visits[i]["it"] != want || visits[i]["index"] != i {
			t.Errorf("iteration %d saw it=%v index=%v", i, visits[i]["it"], visits[i]["index"])
		}
	}
	if !r.logged(LevelInfo, "[Loop] Iteration 2/2") {
		t.Error("Expected iteration log line")
	}
}

func TestExecute_ForEachEmptyGoesToDone(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("loop", "loop_foreach", map[string]any{"items": "not a list"}),
			node("body", "action_log", nil),
			node("done", "action_log", nil),
		},
		[]Edge{edge("loop", "body", "loop"), edge("loop", "done", "done")},
	)
	mustExecute(t, e)
	assertOrder(t, r, "loop", "done")
}

func TestExecute_RepeatCountFromString(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("rep", "loop_repeat", map[string]any{"count": "3"}),
			node("body", "action_log", nil),
			node("done", "action_log", nil),
		},
		[]Edge{edge("rep", "body", "loop"), edge("rep", "done", "done")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "rep", "body", "body", "body", "done")
	for i, vars := range r.vars("body") {
		if vars["i"] != i {
			t.Errorf("iteration %d saw i=%v", i, vars["i"])
		}
	}
}

func TestExecute_While(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantBody  int
		wantLevel LogLevel
		wantLog   string
	}{
		{"condition turns false", map[string]any{"condition": "counter < 3"}, 3, LevelInfo, "Loop condition met (false)"},
		{"placeholder condition", map[string]any{"condition": "{{counter}} < 2"}, 2, LevelInfo, "Loop condition met (false)"},
		{"max iterations", map[string]any{"condition": "true", "maxIterations": 4}, 4, LevelInfo, "[While] Iteration 4"},
		{"malformed condition", map[string]any{"condition": "counter <"}, 0, LevelError, "Loop condition error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, r := newTestExecutor(
				[]Node{
					node("w", "loop_while", tt.config),
					node("inc", "inc", nil),
					node("done", "action_log", nil),
				},
				[]Edge{edge("w", "inc", "loop"), edge("w", "done", "done")},
			)
			r.reg.RegisterFunc("inc", func(nc *NodeContext) (any, error) {
				r.visit(nc)
				v, _ := nc.Variables.Get("counter")
				n := ToInt(v) + 1
				nc.Variables.Set("counter", n)
				return n, nil
			})
			e.Variables().Set("counter", 0)

			mustExecute(t, e)

			if got := len(r.vars("inc")); got != tt.wantBody {
				t.Errorf("body ran %d times, want %d", got, tt.wantBody)
			}
			if got := len(r.vars("done")); got != 1 {
				t.Errorf("done ran %d times, want 1", got)
			}
			if !r.logged(tt.wantLevel, tt.wantLog) {
				t.Errorf("Expected %s log containing %q", tt.wantLevel, tt.wantLog)
			}
		})
	}
}

func TestExecute_WhileDefaultLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWhileIterations = 7
	e, r := newTestExecutor(
		[]Node{node("w", "loop_while", map[string]any{"condition": "true"}), node("body", "action_log", nil)},
		[]Edge{edge("w", "body", "loop")},
		WithConfig(cfg),
	)
	mustExecute(t, e)

	if got := len(r.vars("body")); got != 7 {
		t.Errorf("body ran %d times, want 7", got)
	}
}

func parallelFlow(items []any, concurrency int) ([]Node, []Edge) {
	return []Node{
			node("p", "loop_parallel_foreach", map[string]any{"items": items, "concurrency": concurrency}),
			node("body", "action_log", map[string]any{"out": "{{item}}"}),
			node("done", "action_log", nil),
		}, []Edge{
			edge("p", "body", "loop"),
			edge("p", "done", "done"),
		}
}

func TestExecute_ParallelBranchesAreIsolated(t *testing.T) {
	nodes, edges := parallelFlow([]any{1, 2, 3, 4, 5}, 2)
	e, r := newTestExecutor(nodes, edges)
	mustExecute(t, e)

	var items []int
	for _, vars := range r.vars("body") {
		items = append(items, vars["item"].(int))
	}
	sort.Ints(items)
	if !reflect.DeepEqual(items, []int{1, 2, 3, 4, 5}) {
		t.Errorf("branches saw items %v", items)
	}

	order := r.order()
	if order[len(order)-1] != "done" {
		t.Errorf("done must run after every branch, order %v", order)
	}
	if _, ok := e.Variables().Get("item"); ok {
		t.Error("branch variables must not leak into the parent by default")
	}
	if got, _ := e.Variables().Get("output"); !reflect.DeepEqual(got, map[string]any{}) {
		t.Errorf("output = %#v, want the done node's output", got)
	}
	if !r.logged(LevelInfo, "[Parallel] Processing 5 items (concurrency: 2)") {
		t.Error("Expected parallel start log line")
	}
}

func TestExecute_ParallelOrderedMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParallelMerge = MergeOrdered
	nodes, edges := parallelFlow([]any{"a", "b", "c"}, 3)
	e, _ := newTestExecutor(nodes[:2], edges[:1], WithConfig(cfg))
	mustExecute(t, e)

	if got, _ := e.Variables().Get("item"); got != "c" {
		t.Errorf("item = %#v, want the last item", got)
	}
	if got, _ := e.Variables().Get("node_body"); got != "c" {
		t.Errorf("node_body = %#v, want the last branch's output", got)
	}
}

func TestExecute_ParallelRespectsConcurrency(t *testing.T) {
	nodes, edges := parallelFlow([]any{1, 2, 3, 4, 5, 6}, 2)
	nodes[1].NodeType = "slow"
	e, r := newTestExecutor(nodes, edges)

	var inflight, peak atomic.Int32
	r.reg.RegisterFunc("slow", func(nc *NodeContext) (any, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	mustExecute(t, e)

	if got := peak.Load(); got > 2 || got < 1 {
		t.Errorf("peak concurrency = %d, want between 1 and 2", got)
	}
}

func TestExecute_ParallelFailure(t *testing.T) {
	nodes, edges := parallelFlow([]any{1, 2, 3}, 3)
	nodes[1].NodeType = "fail"
	e, r := newTestExecutor(nodes, edges)

	err := e.Execute(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Execute() error = %v, want boom", err)
	}
	if len(r.vars("done")) != 0 {
		t.Error("done must not run after a failed chunk")
	}
	if !r.logged(LevelError, "Workflow execution failed: boom") {
		t.Error("Expected execution failure log line")
	}
}

func approvalFlow() ([]Node, []Edge) {
	return []Node{
			node("ask", "condition_manual_approval", map[string]any{"title": "Deploy?"}),
			node("yes", "action_log", nil),
			node("no", "action_log", nil),
		}, []Edge{
			edge("ask", "yes", "true"),
			edge("ask", "no", "false"),
		}
}

func TestExecute_Approval(t *testing.T) {
	for _, approved := range []bool{true, false} {
		t.Run(fmt.Sprint(approved), func(t *testing.T) {
			var gotTitle, gotMessage string
			approver := ApproverFunc(func(_ context.Context, title, message string) (bool, error) {
				gotTitle, gotMessage = title, message
				return approved, nil
			})
			nodes, edges := approvalFlow()
			e, r := newTestExecutor(nodes, edges, WithApprover(approver))
			mustExecute(t, e)

			want := "no"
			if approved {
				want = "yes"
			}
			assertOrder(t, r, "ask", want)
			if gotTitle != "Deploy?" || gotMessage != "Please approve to continue execution." {
				t.Errorf("approver asked %q / %q", gotTitle, gotMessage)
			}
			res, _ := e.tracker.Get("ask")
			out, _ := res.Output.(map[string]any)
			if out["approved"] != approved {
				t.Errorf("approval output = %#v", res.Output)
			}
		})
	}
}

func TestExecute_ApprovalWithoutDecision(t *testing.T) {
	blocking := ApproverFunc(func(ctx context.Context, _, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	cfg := DefaultConfig()
	cfg.ApprovalTimeout = 10 * time.Millisecond

	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"no approver", nil, "no approver configured"},
		{"timeout", []Option{WithApprover(blocking), WithConfig(cfg)}, "no decision within 10ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, edges := approvalFlow()
			e, r := newTestExecutor(nodes, edges, tt.opts...)
			mustExecute(t, e)

			assertOrder(t, r, "ask")
			assertStatus(t, e, "ask", StatusSuccess)
			if !r.logged(LevelError, tt.want) {
				t.Errorf("Expected approval failure log containing %q", tt.want)
			}
		})
	}
}

func TestExecute_DisabledNodeIsSkipped(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("t", "trigger_manual", nil),
			node("off", "fail", map[string]any{"disabled": true}),
			node("next", "action_log", nil),
		},
		[]Edge{edge("t", "off", ""), edge("off", "next", "")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "t", "next")
	assertStatus(t, e, "off", StatusSkipped)
}

func TestExecute_UnknownNodeType(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{node("t", "mystery", nil), node("next", "action_log", nil)},
		[]Edge{edge("t", "next", "")},
	)
	mustExecute(t, e)

	assertOrder(t, r, "next")
	assertStatus(t, e, "t", StatusSuccess)
	if !r.logged(LevelWarn, "Unknown node type: mystery") {
		t.Error("Expected unknown type warning")
	}
	if v, ok := e.Variables().Get("node_t"); !ok || v != nil {
		t.Errorf("node_t = %#v, %v; want nil output", v, ok)
	}
}

func TestExecute_FailureStopsWalk(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{
			node("t", "trigger_manual", nil),
			node("f", "fail", nil),
			node("after", "action_log", nil),
			node("t2", "trigger_manual", nil),
		},
		[]Edge{edge("t", "f", ""), edge("f", "after", "")},
	)

	err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if id, ok := FailedNode(err); !ok || id != "f" {
		t.Errorf("FailedNode() = %q, %v; want f", id, ok)
	}
	assertOrder(t, r, "t", "f")
	assertStatus(t, e, "t", StatusSuccess)
	assertStatus(t, e, "f", StatusError)
	if res, _ := e.tracker.Get("f"); res.Error != "boom" {
		t.Errorf("f error = %q, want boom", res.Error)
	}
}

func TestExecute_HandlerPanic(t *testing.T) {
	e, r := newTestExecutor([]Node{node("t", "panic", nil)}, nil)
	r.reg.RegisterFunc("panic", func(*NodeContext) (any, error) {
		panic("kaboom")
	})

	err := e.Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "handler panicked: kaboom") {
		t.Fatalf("Execute() error = %v, want a recovered panic", err)
	}
	assertStatus(t, e, "t", StatusError)
}

func TestExecute_GraphErrors(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{node("t", "trigger_manual", nil), node("a", "action_log", nil), node("b", "action_log", nil)},
		[]Edge{edge("t", "a", ""), edge("a", "b", ""), edge("b", "a", "")},
	)

	err := e.Execute(context.Background())
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Execute() error = %v, want ErrCycle", err)
	}
	if len(r.order()) != 0 {
		t.Error("no node may run when the graph is rejected")
	}
	if !r.logged(LevelError, "Workflow execution failed") {
		t.Error("Expected failure log line")
	}
}

func TestExecute_DanglingEdgeIsIgnored(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{node("t", "trigger_manual", nil), node("a", "action_log", nil)},
		[]Edge{edge("t", "ghost", ""), edge("t", "a", "")},
	)
	mustExecute(t, e)
	assertOrder(t, r, "t", "a")
}

func TestExecute_EnvironmentSeeded(t *testing.T) {
	settings := &Settings{EnvironmentVariables: []EnvironmentVariable{{Key: "API_URL", Value: "https://example.com"}}}
	e, _ := newTestExecutor(
		[]Node{node("t", "trigger_manual", map[string]any{"out": "{{env.API_URL}}|{{API_URL}}"})},
		nil,
		WithSettings(settings),
	)
	mustExecute(t, e)

	if got, _ := e.Variables().Get("output"); got != "https://example.com|https://example.com" {
		t.Errorf("output = %#v", got)
	}
	if got, _ := e.Variables().Get("env.API_URL"); got != "https://example.com" {
		t.Errorf("env.API_URL = %#v", got)
	}
}

func TestExecute_Abort(t *testing.T) {
	e, r := newTestExecutor(
		[]Node{node("t", "stop", nil), node("a", "action_log", nil)},
		[]Edge{edge("t", "a", "")},
	)
	r.reg.RegisterFunc("stop", func(*NodeContext) (any, error) {
		e.Abort()
		e.Abort()
		return "stopped", nil
	})
	mustExecute(t, e)

	assertOrder(t, r)
	assertStatus(t, e, "t", StatusSuccess)
	if !e.Aborted() {
		t.Error("Expected Aborted() to report true")
	}
	if r.logged(LevelSuccess, "Workflow execution completed") {
		t.Error("An aborted run must not report completion")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, line := range r.lines {
		if strings.Contains(line, "Execution aborted by user") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("abort logged %d times, want once", count)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	e, r := newTestExecutor([]Node{node("t", "trigger_manual", nil)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	assertOrder(t, r)
	if !r.logged(LevelWarn, "Workflow execution cancelled") {
		t.Error("Expected cancellation log line")
	}
}

func TestExecute_ProgressSnapshots(t *testing.T) {
	var mu sync.Mutex
	var last []NodeResult
	calls := 0
	r := newRecorder()
	e := NewExecutor(
		[]Node{node("t", "trigger_manual", nil), node("a", "action_log", nil)},
		[]Edge{edge("t", "a", "")},
		func(results []NodeResult) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			last = results
		},
		r.log,
		WithRegistry(r.reg),
	)
	mustExecute(t, e)

	mu.Lock()
	defer mu.Unlock()
	// running and success for each node
	if calls != 4 {
		t.Errorf("progress called %d times, want 4", calls)
	}
	if len(last) != 2 || last[0].Status != StatusSuccess || last[1].Status != StatusSuccess {
		t.Errorf("final snapshot = %+v", last)
	}
	if last[0].EndedAt.Before(last[0].StartedAt) {
		t.Error("EndedAt must not precede StartedAt")
	}
}

func TestRun_Record(t *testing.T) {
	e, _ := newTestExecutor([]Node{node("t", "trigger_manual", nil)}, nil, WithExecutionID("exec-1"))
	record, err := e.Run(context.Background(), "flow-1", "Demo")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.ID != "exec-1" || record.FlowID != "flow-1" || record.FlowName != "Demo" {
		t.Errorf("record identity = %+v", record)
	}
	if record.Status != ExecutionSuccess || len(record.Results) != 1 {
		t.Errorf("record = %+v", record)
	}

	failing, _ := newTestExecutor([]Node{node("t", "fail", nil)}, nil)
	record, err = failing.Run(context.Background(), "flow-2", "")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if record.Status != ExecutionError || record.Error != "boom" {
		t.Errorf("record = %+v", record)
	}
	if record.ID == "" {
		t.Error("Expected a generated execution id")
	}
}

func TestRun_AbortedRecord(t *testing.T) {
	e, r := newTestExecutor([]Node{node("t", "stop", nil)}, nil)
	r.reg.RegisterFunc("stop", func(*NodeContext) (any, error) {
		e.Abort()
		return nil, nil
	})

	record, err := e.Run(context.Background(), "flow-1", "Demo")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.Status != ExecutionAborted || record.Error != "" {
		t.Errorf("record = %+v", record)
	}
}

func TestExecute_ParallelChunkBarrier(t *testing.T) {
	items := make([]any, 7)
	for i := range items {
		items[i] = i
	}
	nodes, edges := parallelFlow(items, 3)
	nodes[1].NodeType = "track"
	e, r := newTestExecutor(nodes, edges)

	var mu sync.Mutex
	started := make(map[int]int) // item index -> event sequence number
	ended := make(map[int]int)
	seq := 0
	r.reg.RegisterFunc("track", func(nc *NodeContext) (any, error) {
		v, _ := nc.Variables.Get("index")
		idx := v.(int)
		mu.Lock()
		seq++
		started[idx] = seq
		mu.Unlock()

		time.Sleep(time.Duration(3-idx%3) * time.Millisecond)

		mu.Lock()
		seq++
		ended[idx] = seq
		mu.Unlock()
		return nil, nil
	})
	mustExecute(t, e)

	for idx := 3; idx < len(items); idx++ {
		chunkStart := (idx / 3) * 3
		for prev := chunkStart - 3; prev < chunkStart; prev++ {
			if ended[prev] > started[idx] {
				t.Errorf("item %d started before item %d of the previous chunk ended", idx, prev)
			}
		}
	}
}
