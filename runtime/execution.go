package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// frame is one unit of pending work on a walker's stack.
type frame interface {
	run(ctx context.Context, w *walker) error
}

// catcher frames intercept an error while the stack unwinds. catch reports
// whether the error was absorbed.
type catcher interface {
	catch(w *walker, err error) bool
}

// finalizer frames also run while the stack unwinds past them.
type finalizer interface {
	finalize(w *walker)
}

// walker performs a depth-first walk of the graph on an explicit stack. Each
// parallel branch gets its own walker over a child scope.
type walker struct {
	e     *Executor
	g     *Graph
	scope *Scope
	stack []frame
}

func newWalker(e *Executor, g *Graph, scope *Scope) *walker {
	return &walker{e: e, g: g, scope: scope}
}

func (w *walker) push(f frame) {
	w.stack = append(w.stack, f)
}

// pushTargets schedules visits so that targets run in the given order.
func (w *walker) pushTargets(ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		w.push(visitFrame{nodeID: ids[i]})
	}
}

func (w *walker) pop() frame {
	f := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	return f
}

// walk visits ids in order and everything they lead to.
func (w *walker) walk(ctx context.Context, ids []string) error {
	w.pushTargets(ids)
	for len(w.stack) > 0 {
		if err := w.pop().run(ctx, w); err != nil {
			if !w.unwind(err) {
				return err
			}
		}
	}
	return nil
}

// unwind pops frames until one absorbs err. It reports false when the stack
// empties first.
func (w *walker) unwind(err error) bool {
	for len(w.stack) > 0 {
		switch f := w.pop().(type) {
		case catcher:
			if f.catch(w, err) {
				return true
			}
		case finalizer:
			f.finalize(w)
		}
	}
	return false
}

func (w *walker) log(level LogLevel, nodeID, format string, args ...any) {
	w.e.onLog(level, fmt.Sprintf(format, args...), nodeID)
}

// visitFrame runs a node and schedules the branch its output selects.
type visitFrame struct {
	nodeID string
}

func (f visitFrame) run(ctx context.Context, w *walker) error {
	e := w.e
	if e.stopped(ctx) {
		return nil
	}
	node, ok := w.g.Node(f.nodeID)
	if !ok {
		return nil
	}

	if node.Disabled() {
		now := time.Now()
		e.tracker.Update(node.ID, ResultPatch{Status: StatusSkipped, StartedAt: &now, EndedAt: &now})
		w.log(LevelWarn, node.ID, "Skipped (disabled): %s", node.DisplayName())
		w.pushTargets(w.g.targets(node.ID, PortAny, ""))
		return nil
	}

	w.log(LevelInfo, node.ID, "Executing: %s", node.DisplayName())
	started := time.Now()
	e.tracker.Update(node.ID, ResultPatch{Status: StatusRunning, StartedAt: &started})

	output, err := e.runNode(ctx, node, w.scope)
	ended := time.Now()
	if err != nil {
		msg := err.Error()
		e.tracker.Update(node.ID, ResultPatch{Status: StatusError, EndedAt: &ended, Error: &msg})
		w.log(LevelError, node.ID, "Failed: %s - %s", node.DisplayName(), msg)
		return err
	}

	w.scope.SetOutput(node.ID, output)
	e.tracker.Update(node.ID, ResultPatch{Status: StatusSuccess, EndedAt: &ended, Output: &output})
	w.log(LevelSuccess, node.ID, "Completed: %s", node.DisplayName())

	return w.dispatch(ctx, node, output)
}

// dispatch schedules the outgoing edges selected by the node family.
func (w *walker) dispatch(ctx context.Context, node Node, output any) error {
	id := node.ID
	fields, _ := AsMap(output)

	switch FamilyOf(node.NodeType) {
	case FamilyBoolean:
		port := PortFalse
		if b, ok := output.(bool); ok && b {
			port = PortTrue
		}
		w.log(LevelInfo, id, "Taking %s branch", port)
		w.pushTargets(w.g.targets(id, port, ""))

	case FamilySwitch:
		value := Stringify(output)
		if targets := w.g.targets(id, PortCase, value); len(targets) > 0 {
			w.log(LevelInfo, id, "Taking branch: %s", value)
			w.pushTargets(targets)
			break
		}
		if targets := w.g.targets(id, PortDefault, ""); len(targets) > 0 {
			w.log(LevelInfo, id, "Taking default branch")
			w.pushTargets(targets)
		}

	case FamilyTryCatch:
		continueOnError, isBool := fields["continueOnError"].(bool)
		w.push(tryFrame{nodeID: id, rethrow: isBool && !continueOnError})
		w.pushTargets(w.g.targets(id, PortTry, ""))

	case FamilyFilter:
		matched, _ := AsSlice(fields["matched"])
		notMatched, _ := AsSlice(fields["notMatched"])
		if len(notMatched) > 0 {
			w.push(filterFrame{nodeID: id, port: PortNoMatch, items: notMatched})
		}
		if len(matched) > 0 {
			w.push(filterFrame{nodeID: id, port: PortMatch, items: matched})
		}

	case FamilyApproval:
		w.approve(ctx, node, fields)

	case FamilyForEach:
		items, _ := AsSlice(fields["items"])
		itemVar := stringOr(fields["itemVar"], "item")
		indexVar := stringOr(fields["indexVar"], "index")
		w.push(&loopFrame{
			nodeID: id,
			label:  "Loop",
			n:      len(items),
			bind: func(s *Scope, i int) {
				s.Set(itemVar, items[i])
				s.Set(indexVar, i)
			},
		})

	case FamilyRepeat:
		indexVar := stringOr(fields["indexVar"], "i")
		w.push(&loopFrame{
			nodeID: id,
			label:  "Repeat",
			n:      max(ToInt(fields["count"]), 0),
			bind: func(s *Scope, i int) {
				s.Set(indexVar, i)
			},
		})

	case FamilyWhile:
		limit := ToInt(fields["maxIterations"])
		if limit <= 0 {
			limit = w.e.cfg.MaxWhileIterations
		}
		condition, _ := node.Config["condition"].(string)
		w.push(&whileFrame{nodeID: id, condition: condition, max: limit})

	case FamilyParallelForEach:
		items, _ := AsSlice(fields["items"])
		limit := ToInt(fields["concurrency"])
		if limit <= 0 {
			limit = w.e.cfg.DefaultConcurrency
		}
		w.push(&parallelFrame{
			nodeID:   id,
			items:    items,
			itemVar:  stringOr(fields["itemVar"], "item"),
			indexVar: stringOr(fields["indexVar"], "index"),
			limit:    limit,
		})

	default:
		w.pushTargets(w.g.targets(id, PortAny, ""))
	}
	return nil
}

// approve blocks on the approver and schedules the matching branch. A failed
// or timed out request takes neither branch.
func (w *walker) approve(ctx context.Context, node Node, fields map[string]any) {
	title := stringOr(fields["title"], "Approval Required")
	message := stringOr(fields["message"], "Please approve to continue execution.")

	w.log(LevelInfo, node.ID, "Waiting for manual approval: %s", title)
	w.e.tracker.Update(node.ID, ResultPatch{Status: StatusPending})

	approved, err := w.e.confirm(ctx, title, message)
	if err != nil {
		w.e.tracker.Update(node.ID, ResultPatch{Status: StatusSuccess})
		w.log(LevelError, node.ID, "Approval failed: %s", err)
		return
	}

	var output any = map[string]any{"title": title, "message": message, "approved": approved}
	w.e.tracker.Update(node.ID, ResultPatch{Status: StatusSuccess, Output: &output})

	port := PortFalse
	if approved {
		port = PortTrue
		w.log(LevelSuccess, node.ID, "Approved by user")
	} else {
		w.log(LevelWarn, node.ID, "Denied by user")
	}
	w.pushTargets(w.g.targets(node.ID, port, ""))
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// tryFrame sits below the try branch. Reaching it normally means the branch
// finished cleanly; reaching it while unwinding routes to the catch branch.
type tryFrame struct {
	nodeID  string
	rethrow bool
}

func (f tryFrame) run(context.Context, *walker) error {
	return nil
}

func (f tryFrame) catch(w *walker, err error) bool {
	msg := err.Error()
	w.scope.Set("error", msg)
	w.log(LevelWarn, f.nodeID, "Caught error: %s. Routing to catch branch.", msg)

	if f.rethrow {
		w.push(rethrowFrame{err: err})
	}
	w.pushTargets(w.g.targets(f.nodeID, PortCatch, ""))
	return true
}

// rethrowFrame re-raises a caught error once the catch branch has run.
type rethrowFrame struct {
	err error
}

func (f rethrowFrame) run(context.Context, *walker) error {
	return f.err
}

// filterFrame runs one filter branch with output replaced by that branch's
// items.
type filterFrame struct {
	nodeID string
	port   Port
	items  []any
}

func (f filterFrame) run(_ context.Context, w *walker) error {
	prev, had := w.scope.Get("output")
	w.scope.Set("output", f.items)
	w.log(LevelInfo, f.nodeID, "Taking %s branch with %d item(s)", f.port, len(f.items))

	w.push(restoreFrame{key: "output", value: prev, had: had})
	w.pushTargets(w.g.targets(f.nodeID, f.port, ""))
	return nil
}

// restoreFrame puts a variable back once a branch is done, also when the
// branch fails.
type restoreFrame struct {
	key   string
	value any
	had   bool
}

func (f restoreFrame) run(_ context.Context, w *walker) error {
	f.finalize(w)
	return nil
}

func (f restoreFrame) finalize(w *walker) {
	if f.had {
		w.scope.Set(f.key, f.value)
		return
	}
	w.scope.Delete(f.key)
}

// loopFrame drives loop_foreach and loop_repeat. Each run binds iteration i,
// schedules itself for i+1 and then the loop body on top, so the body
// completes before the next iteration starts.
type loopFrame struct {
	nodeID string
	label  string
	i, n   int
	bind   func(s *Scope, i int)
}

func (f *loopFrame) run(ctx context.Context, w *walker) error {
	if f.i >= f.n || w.e.stopped(ctx) {
		w.pushTargets(w.g.targets(f.nodeID, PortDone, ""))
		return nil
	}

	f.bind(w.scope, f.i)
	w.log(LevelInfo, f.nodeID, "[%s] Iteration %d/%d", f.label, f.i+1, f.n)

	next := *f
	next.i++
	w.push(&next)
	w.pushTargets(w.g.targets(f.nodeID, PortLoop, ""))
	return nil
}

// whileFrame re-evaluates the raw condition against the current variables
// before every iteration.
type whileFrame struct {
	nodeID    string
	condition string
	i, max    int
}

func (f *whileFrame) run(ctx context.Context, w *walker) error {
	done := func() error {
		w.pushTargets(w.g.targets(f.nodeID, PortDone, ""))
		return nil
	}
	if f.i >= f.max || w.e.stopped(ctx) {
		return done()
	}

	expression := NewInterpolator(w.scope).String(f.condition)
	ok, err := EvalBool(w.e.evaluator, expression, w.scope.All())
	if err != nil {
		w.log(LevelError, f.nodeID, "Loop condition error: %s", err)
		return done()
	}
	if !ok {
		w.log(LevelInfo, f.nodeID, "Loop condition met (false)")
		return done()
	}

	w.log(LevelInfo, f.nodeID, "[While] Iteration %d", f.i+1)
	next := *f
	next.i++
	w.push(&next)
	w.pushTargets(w.g.targets(f.nodeID, PortLoop, ""))
	return nil
}

// parallelFrame runs one chunk of loop_parallel_foreach items concurrently
// and waits for the whole chunk before scheduling the next one.
type parallelFrame struct {
	nodeID            string
	items             []any
	itemVar, indexVar string
	limit             int
	start             int
}

func (f *parallelFrame) run(ctx context.Context, w *walker) error {
	if f.start >= len(f.items) || w.e.stopped(ctx) {
		w.pushTargets(w.g.targets(f.nodeID, PortDone, ""))
		return nil
	}
	if f.start == 0 {
		w.log(LevelInfo, f.nodeID, "[Parallel] Processing %d items (concurrency: %d)", len(f.items), f.limit)
	}

	end := min(f.start+f.limit, len(f.items))
	body := w.g.targets(f.nodeID, PortLoop, "")
	branches := make([]*Scope, 0, end-f.start)

	var g errgroup.Group
	for idx := f.start; idx < end; idx++ {
		branch := w.scope.Child()
		branch.Set(f.itemVar, f.items[idx])
		branch.Set(f.indexVar, idx)
		branches = append(branches, branch)

		w.log(LevelInfo, f.nodeID, "[Parallel] Item %d/%d", idx+1, len(f.items))
		g.Go(func() error {
			return newWalker(w.e, w.g, branch).walk(ctx, body)
		})
	}
	err := g.Wait()

	if w.e.cfg.ParallelMerge == MergeOrdered {
		for _, branch := range branches {
			branch.MergeIntoParent()
		}
	}
	if err != nil {
		return err
	}

	next := *f
	next.start = end
	w.push(&next)
	return nil
}
