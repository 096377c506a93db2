package fancontrol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"novaground/internal/pca9685"
)

type dutyWrite struct {
	ch     int
	value  uint16
	invert bool
}

type fakeChip struct {
	mu     sync.Mutex
	writes []dutyWrite
	err    error
	dutyCh chan uint16
}

func (f *fakeChip) SetDuty(ch int, value uint16, invert bool) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.writes = append(f.writes, dutyWrite{ch: ch, value: value, invert: invert})
	f.mu.Unlock()
	select {
	case f.dutyCh <- value:
	default:
	}
	return nil
}

func (f *fakeChip) last() dutyWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return dutyWrite{}
	}
	return f.writes[len(f.writes)-1]
}

func longStartup(t *testing.T) {
	t.Helper()
	oldFull := startupFullDutyDuration
	oldMin := startupMinDutyDuration
	startupFullDutyDuration = time.Hour
	startupMinDutyDuration = time.Hour
	t.Cleanup(func() {
		startupFullDutyDuration = oldFull
		startupMinDutyDuration = oldMin
	})
}

func TestServiceStart_IsNonBlocking(t *testing.T) {
	longStartup(t)
	fake := &fakeChip{dutyCh: make(chan uint16, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := New(Config{Enable: true, Channel: 15}, fake)

	start := time.Now()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatalf("Start took too long (likely blocked): %v", time.Since(start))
	}

	select {
	case duty := <-fake.dutyCh:
		if duty != pca9685.MaxDuty {
			t.Fatalf("first duty=%v want %d", duty, pca9685.MaxDuty)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected startup duty set quickly")
	}
	if w := fake.last(); w.ch != 15 {
		t.Fatalf("channel=%d want 15", w.ch)
	}
	snap := svc.Snapshot()
	if !snap.Enabled || !snap.PWMAvailable || snap.PWMDuty != 100 || snap.Channel != 15 {
		t.Fatalf("snapshot=%+v", snap)
	}

	cancel()
	svc.Close()
}

func TestServiceClose_TurnsFanOffOnGracefulShutdown(t *testing.T) {
	longStartup(t)
	fake := &fakeChip{dutyCh: make(chan uint16, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(Config{Enable: true, Channel: 3, Invert: true}, fake)
	if err := svc.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}

	cancel()
	svc.Close()
	w := fake.last()
	if w.value != 0 || w.ch != 3 || !w.invert {
		t.Fatalf("last write=%+v want channel 3 duty 0 inverted", w)
	}
	if svc.Snapshot().PWMDuty != 0 {
		t.Fatalf("snapshot duty=%d want 0", svc.Snapshot().PWMDuty)
	}
}

func TestServiceStart_Disabled(t *testing.T) {
	fake := &fakeChip{}
	svc := New(Config{Enable: false}, fake)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(fake.writes) != 0 {
		t.Fatalf("disabled service wrote %v", fake.writes)
	}
	svc.Close()
}

func TestServiceStart_PropagatesChipError(t *testing.T) {
	fake := &fakeChip{err: errors.New("bus error")}
	svc := New(Config{Enable: true}, fake)
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if svc.Snapshot().LastError == "" {
		t.Fatalf("expected last_error to be recorded")
	}
	svc.Close()
}

func TestServiceStep_FailSafeOnTempError(t *testing.T) {
	old := readTempFn
	readTempFn = func(string) (float64, error) { return 0, errors.New("no thermal zone") }
	t.Cleanup(func() { readTempFn = old })

	fake := &fakeChip{}
	svc := New(Config{Enable: true, Channel: 1}, fake)
	drv := newChannelDriver(fake, 1, false)
	var last float64
	svc.step(drv, newPID(0.2, 0.2, 0.1), &last)

	if w := fake.last(); w.value != pca9685.MaxDuty {
		t.Fatalf("duty=%d want full", w.value)
	}
	snap := svc.Snapshot()
	if snap.CPUValid || snap.LastError == "" || snap.PWMDuty != 100 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestServiceStep_HotCPUSpinsUp(t *testing.T) {
	var gotPath string
	old := readTempFn
	readTempFn = func(path string) (float64, error) { gotPath = path; return 80, nil }
	t.Cleanup(func() { readTempFn = old })

	fake := &fakeChip{}
	svc := New(Config{Enable: true, TempPath: "/tmp/zone/temp", TempTargetC: 50, PWMDutyMin: 20, UpdateInterval: time.Second}, fake)
	drv := newChannelDriver(fake, 0, false)
	pid := newPID(0.2, 0.2, 0.1)
	pid.SetOutputLimits(-100, 0)
	pid.Set(50)

	var last float64
	svc.step(drv, pid, &last)

	if gotPath != "/tmp/zone/temp" {
		t.Fatalf("sampled %q", gotPath)
	}
	snap := svc.Snapshot()
	if !snap.CPUValid || snap.CPUTempC != 80 {
		t.Fatalf("snapshot=%+v", snap)
	}
	// pid=-(0.2*-30 + 0.2*-30) = 12 -> 20 + 12*0.8 = 29.6%
	if snap.PWMDuty != 30 {
		t.Fatalf("duty=%d want 30", snap.PWMDuty)
	}
	if w := fake.last(); w.value != percentToDuty(29.6) {
		t.Fatalf("raw duty=%d want %d", w.value, percentToDuty(29.6))
	}
}

func TestPercentToDuty(t *testing.T) {
	cases := map[float64]uint16{
		-5:  0,
		0:   0,
		50:  2048,
		100: pca9685.MaxDuty,
		150: pca9685.MaxDuty,
	}
	for in, want := range cases {
		if got := percentToDuty(in); got != want {
			t.Fatalf("percentToDuty(%v)=%d want %d", in, got, want)
		}
	}
}
