// Package arena tracks allocation debt for the values the VM creates
// while running - arrays, boxed structs, instances - and drives the
// incremental GC step the original VM performs inline with execution.
//
// Go's own runtime already owns physical memory management, so there
// is no tracing collector to reimplement here; what this package
// preserves from the original design is the *scheduling* discipline:
// allocations accrue against a debt counter, and crossing the
// threshold triggers a step (here, a logged checkpoint rather than a
// real mark phase) at the same points in execution the original pays
// for GC work, so the cadence of pauses is preserved even though the
// collector underneath is the Go runtime's.
package arena

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepThreshold is the allocation debt, in bytes, that triggers an
// incremental GC step - accumulated nursery size in the original.
const StepThreshold uint64 = 64_000

// Arena accrues allocation debt and performs a step once debt crosses
// StepThreshold. It is not safe for concurrent use - a VM's arena is
// only ever touched by the goroutine running that VM.
type Arena struct {
	debt   uint64
	steps  uint64
	logger *zap.Logger
}

// New returns an empty Arena that logs its steps through logger. A
// nil logger is replaced with zap's no-op logger.
func New(logger *zap.Logger) *Arena {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arena{logger: logger}
}

// Alloc records size bytes of new allocation and runs an incremental
// step if the debt threshold was crossed.
func (a *Arena) Alloc(size uint64) {
	a.debt += size
	if a.debt >= StepThreshold {
		a.step()
	}
}

// Mutate scopes a write to a GC-managed value (an instance field, an
// array element, a pinned cell). The original pairs every such write
// with a write barrier recorded against the enclosing allocation; Go's
// GC needs no such barrier, so Mutate here exists to mark the call
// sites that are conceptually write-barriered, not to perform one.
func (a *Arena) Mutate(fn func()) {
	fn()
}

// Steps reports how many incremental steps have run.
func (a *Arena) Steps() uint64 {
	return a.steps
}

func (a *Arena) step() {
	a.steps++
	a.logger.Debug("gc: incremental step",
		zap.String("debt", humanize.Bytes(a.debt)),
		zap.Uint64("step", a.steps),
		zap.String("step_id", uuid.New().String()))
	a.debt = 0
}
