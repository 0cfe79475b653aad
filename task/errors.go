package task

import "errors"

var (
	// ErrPoolFull is returned by Create when the fixed-capacity pool
	// has no free slot.
	ErrPoolFull = errors.New("task: pool is full")
	// ErrHeapExhausted is returned by Create when the heap cannot
	// satisfy the stack allocation.
	ErrHeapExhausted = errors.New("task: heap exhausted while allocating stack")
	// ErrNoTasks is returned by Start when the pool has no tasks.
	ErrNoTasks = errors.New("task: no tasks to start")
)
