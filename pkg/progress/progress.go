// Package progress provides advisory progress reporting for long-running
// fracture operations. Listeners form a tree: a Hierarchical listener maps
// its subtasks' 0..100 progress into a slice of its parent's range.
package progress

import "math"

// Listener receives progress in percent (0..100) for a named task.
type Listener interface {
	SetProgress(percent int, task string)
}

// Func adapts a function to a Listener.
type Func func(percent int, task string)

// SetProgress implements Listener.
func (f Func) SetProgress(percent int, task string) {
	f(percent, task)
}

// Nop discards progress.
var Nop Listener = Func(func(int, string) {})

// OrNop returns l, or Nop if l is nil.
func OrNop(l Listener) Listener {
	if l == nil {
		return Nop
	}
	return l
}

// Hierarchical splits a parent's progress range into weighted subtasks.
type Hierarchical struct {
	work        int
	subtaskWork int
	totalWork   int
	task        string
	parent      Listener
}

// NewHierarchical returns a listener reporting totalWork units of work to
// parent. A nil parent discards progress.
func NewHierarchical(totalWork int, parent Listener) *Hierarchical {
	if totalWork < 1 {
		totalWork = 1
	}
	return &Hierarchical{subtaskWork: 1, totalWork: totalWork, parent: parent}
}

// SetSubtaskWork starts a subtask worth subtaskWork units. A negative value
// claims all remaining work.
func (h *Hierarchical) SetSubtaskWork(subtaskWork int, task string) {
	if subtaskWork < 0 {
		subtaskWork = h.totalWork - h.work
	}
	h.subtaskWork = subtaskWork
	h.task = task
	h.SetProgress(0, task)
}

// CompleteSubtask finishes the current subtask.
func (h *Hierarchical) CompleteSubtask() {
	h.SetProgress(100, h.task)
	h.work += h.subtaskWork
}

// SetProgress implements Listener.
func (h *Hierarchical) SetProgress(percent int, task string) {
	if task == "" {
		task = h.task
	}
	if h.parent == nil {
		return
	}
	parentProgress := 100
	if h.totalWork > 0 {
		parentProgress = (h.work*100 + h.subtaskWork*percent) / h.totalWork
	}
	h.parent.SetProgress(clamp(parentProgress), task)
}

// Quantity reports progress as an accumulated fraction of a total amount.
type Quantity struct {
	total  float64
	scale  float64
	parent Listener
}

// NewQuantity returns a listener for which adding totalAmount completes
// the task.
func NewQuantity(totalAmount float64, parent Listener) *Quantity {
	q := &Quantity{parent: parent}
	if totalAmount > 0 {
		q.scale = 100 / totalAmount
	}
	return q
}

// SetProgress implements Listener.
func (q *Quantity) SetProgress(percent int, task string) {
	if q.parent != nil {
		q.parent.SetProgress(percent, task)
	}
}

// Add accumulates amount and reports the new percentage.
func (q *Quantity) Add(amount float64) {
	q.total += amount
	if q.parent != nil {
		q.parent.SetProgress(clamp(int(math.Floor(q.total*q.scale+0.5))), "")
	}
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
