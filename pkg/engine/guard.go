package engine

import (
	"fmt"
	"strings"
)

// ReferenceStack tracks the chain of references currently being expanded
// (manifest locations or feature identities). A key may appear again once it
// has been left, so shared dependencies are fine; re-entering an open key is a cycle.
type ReferenceStack struct {
	kind  string
	stack []string
	open  map[string]bool
}

// NewReferenceStack creates an empty stack. kind names the references in errors.
func NewReferenceStack(kind string) *ReferenceStack {
	return &ReferenceStack{kind: kind, open: make(map[string]bool)}
}

// Enter pushes key, failing with a CYCLE_DETECTED scanner error if key is already open.
func (r *ReferenceStack) Enter(key string) error {
	if r.open[key] {
		start := 0
		for i, k := range r.stack {
			if k == key {
				start = i
				break
			}
		}
		cycle := append(append([]string{}, r.stack[start:]...), key)
		return NewScannerError(
			fmt.Sprintf("circular %s reference detected: %s", r.kind, formatCycle(cycle)),
			nil,
		).WithCode(ErrCodeCycleDetected).WithLocation(key).WithDetail("cycle", cycle)
	}
	r.open[key] = true
	r.stack = append(r.stack, key)
	return nil
}

// Leave pops the most recently entered key.
func (r *ReferenceStack) Leave() {
	if len(r.stack) == 0 {
		return
	}
	last := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.open, last)
}

// Depth returns the number of open references.
func (r *ReferenceStack) Depth() int {
	return len(r.stack)
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
