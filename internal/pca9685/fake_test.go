package pca9685

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type regOp struct {
	op  Op
	reg byte
	val byte
}

// fakeChip is a 256-byte register file that records every access.
type fakeChip struct {
	mu sync.Mutex

	regs [256]byte
	ops  []regOp

	failRead  map[byte]error
	failWrite map[byte]error

	closed int
}

func newFakeChip() *fakeChip {
	return &fakeChip{failRead: map[byte]error{}, failWrite: map[byte]error{}}
}

func (f *fakeChip) ReadRegU8(reg byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRead[reg]; err != nil {
		return 0, err
	}
	f.ops = append(f.ops, regOp{op: OpRead, reg: reg, val: f.regs[reg]})
	return f.regs[reg], nil
}

func (f *fakeChip) WriteReg(reg, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWrite[reg]; err != nil {
		return err
	}
	f.ops = append(f.ops, regOp{op: OpWrite, reg: reg, val: value})
	f.regs[reg] = value
	return nil
}

func (f *fakeChip) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChip) writes() []regOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []regOp
	for _, o := range f.ops {
		if o.op == OpWrite {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeChip) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

func w(reg, val byte) regOp { return regOp{op: OpWrite, reg: reg, val: val} }

func assertWrites(t *testing.T, got, want []regOp) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("writes=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write[%d]=reg 0x%02X val 0x%02X want reg 0x%02X val 0x%02X (all=%v)",
				i, got[i].reg, got[i].val, want[i].reg, want[i].val, got)
		}
	}
}

// stubSleep replaces the settle delay and records requested durations.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	old := sleep
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = old })
	return &slept
}

// openController returns a controller bound to a fake chip without running
// the Initialize sequence.
func openController(t *testing.T) (*Controller, *fakeChip) {
	t.Helper()
	f := newFakeChip()
	c := New(Config{}, nil)
	c.dev = f
	return c, f
}

func recordEvents(c *Controller) *[]Event {
	var events []Event
	c.SetTracer(TracerFunc(func(e Event) { events = append(events, e) }))
	return &events
}

var errBus = errors.New("remote I/O error")
