package runtime

import "sync"

// Variables is the live variable environment handed to handlers.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	All() map[string]any
}

// tombstone marks a key deleted in a child scope so reads stop falling
// through to the parent.
type tombstone struct{}

// Scope stores workflow variables. A child scope shadows writes locally and
// falls back to its parent on reads; the root scope belongs to the executor.
type Scope struct {
	mu     sync.RWMutex
	parent *Scope
	values map[string]any
}

var _ Variables = (*Scope)(nil)

func NewScope() *Scope {
	return &Scope{values: make(map[string]any)}
}

// Child returns a scope whose writes stay local until MergeIntoParent.
func (s *Scope) Child() *Scope {
	return &Scope{parent: s, values: make(map[string]any)}
}

func (s *Scope) Parent() *Scope {
	return s.parent
}

func (s *Scope) Get(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[key]
		cur.mu.RUnlock()
		if !ok {
			continue
		}
		if _, deleted := v.(tombstone); deleted {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *Scope) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parent == nil {
		delete(s.values, key)
		return
	}
	s.values[key] = tombstone{}
}

// All returns a flattened copy of every visible variable.
func (s *Scope) All() map[string]any {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		cur.mu.RLock()
		for k, v := range cur.values {
			if _, deleted := v.(tombstone); deleted {
				delete(out, k)
				continue
			}
			out[k] = v
		}
		cur.mu.RUnlock()
	}
	return out
}

// Local returns a copy of the values written directly to this scope.
func (s *Scope) Local() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if _, deleted := v.(tombstone); deleted {
			continue
		}
		out[k] = v
	}
	return out
}

// MergeIntoParent replays this scope's local writes and deletions onto its
// parent. It is a no-op on a root scope.
func (s *Scope) MergeIntoParent() {
	if s.parent == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.values {
		if _, deleted := v.(tombstone); deleted {
			s.parent.Delete(k)
			continue
		}
		s.parent.Set(k, v)
	}
}

// outputAliases are the names every successful node output is published under,
// besides node_<id>.
var outputAliases = []string{"lastOutput", "result", "response", "output"}

// SetOutput publishes a node's output under node_<id> and the generic aliases.
func (s *Scope) SetOutput(nodeID string, output any) {
	s.Set("node_"+nodeID, output)
	for _, alias := range outputAliases {
		s.Set(alias, output)
	}
}
