package fancontrol

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

var afterFn = time.After
var readTempFn = ReadTempC

var startupFullDutyDuration = 5 * time.Second
var startupMinDutyDuration = 10 * time.Second

type Config struct {
	Enable bool

	// Channel is the PCA9685 output wired to the fan.
	Channel int
	// Invert drives the output low for the duty fraction (sinking fans).
	Invert bool
	// TempPath is the sysfs temperature file to sample. Empty selects the
	// CPU thermal zone.
	TempPath string
	// TempTargetC is the CPU temperature target in degrees C.
	TempTargetC float64
	// PWMDutyMin is minimum duty (0-100) to keep the fan spinning.
	PWMDutyMin int
	// UpdateInterval controls how often the temperature is sampled and duty
	// recomputed.
	UpdateInterval time.Duration
}

type Snapshot struct {
	Enabled  bool   `json:"enabled"`
	Channel  int    `json:"channel"`
	TempPath string `json:"temp_path,omitempty"`

	CPUValid bool    `json:"cpu_valid"`
	CPUTempC float64 `json:"cpu_temp_c"`

	PWMAvailable bool `json:"pwm_available"`
	PWMDuty      int  `json:"pwm_duty"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Service samples the CPU temperature and drives one PCA9685 channel with a
// PID loop.
type Service struct {
	cfg  Config
	chip ChannelSetter

	mu   sync.RWMutex
	snap Snapshot

	drvMu sync.Mutex
	drv   pwmDriver

	wg sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, chip ChannelSetter) *Service {
	if cfg.TempTargetC == 0 {
		cfg.TempTargetC = 50.0
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 5 * time.Second
	}
	if cfg.TempPath == "" {
		cfg.TempPath = FindCPUTempPath(thermalRoot)
	}
	return &Service{cfg: cfg, chip: chip, stopCh: make(chan struct{})}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close stops the loop and turns the fan off.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	// The driver must not be used concurrently with Close.
	s.wg.Wait()

	// Held across drv.Close so a concurrent Close returns only once the fan
	// is off.
	s.drvMu.Lock()
	defer s.drvMu.Unlock()
	if s.drv == nil {
		return
	}
	if err := s.drv.Close(); err != nil {
		log.Printf("fancontrol: fan off failed: %v", err)
	}
	s.drv = nil
	s.setState(func(sn *Snapshot) { sn.PWMDuty = 0 })
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Start runs the startup fan test and control loop in the background. It
// returns once the first duty has been written.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("fancontrol: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if s.chip == nil {
		return fmt.Errorf("fancontrol: no pwm chip")
	}

	s.setState(func(sn *Snapshot) {
		sn.Enabled = true
		sn.Channel = s.cfg.Channel
		sn.TempPath = s.cfg.TempPath
	})

	drv := newChannelDriver(s.chip, s.cfg.Channel, s.cfg.Invert)
	if err := drv.SetDutyPercent(100); err != nil {
		s.setErr(fmt.Sprintf("fancontrol: set pwm duty failed: %v", err))
		return err
	}
	s.drvMu.Lock()
	s.drv = drv
	s.drvMu.Unlock()
	s.setState(func(sn *Snapshot) {
		sn.PWMAvailable = true
		sn.PWMDuty = 100
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.startupAndRun(ctx, drv)
	}()

	// Release the channel if the runtime context is canceled.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stopCh:
		}
	}()
	return nil
}

func (s *Service) startupAndRun(ctx context.Context, drv pwmDriver) {
	// Startup test: full duty, then minimum duty, so a dead fan is audible.
	select {
	case <-afterFn(startupFullDutyDuration):
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	}
	minDuty := clamp(float64(s.cfg.PWMDutyMin), 0, 100)
	if err := drv.SetDutyPercent(minDuty); err != nil {
		s.setErr(fmt.Sprintf("fancontrol: set pwm duty failed: %v", err))
	} else {
		s.setState(func(sn *Snapshot) { sn.PWMDuty = int(math.Round(minDuty)) })
	}
	select {
	case <-afterFn(startupMinDutyDuration):
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	}

	s.runLoop(ctx, drv)
}

func (s *Service) runLoop(ctx context.Context, drv pwmDriver) {
	pid := newPID(0.2, 0.2, 0.1)
	pid.SetOutputLimits(-100, 0)
	pid.Set(s.cfg.TempTargetC)

	t := time.NewTicker(s.cfg.UpdateInterval)
	defer t.Stop()

	var lastPWM float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			s.step(drv, pid, &lastPWM)
		}
	}
}

// step samples the temperature once and writes the resulting duty.
func (s *Service) step(drv pwmDriver, pid *pidController, lastPWM *float64) {
	cpuC, err := readTempFn(s.cfg.TempPath)
	if err != nil {
		s.setState(func(sn *Snapshot) {
			sn.CPUValid = false
			sn.LastError = err.Error()
		})
		// Fail-safe: keep fan full on if we cannot read temperature.
		if err := drv.SetDutyPercent(100); err != nil {
			s.setErr(fmt.Sprintf("fancontrol: set pwm duty failed: %v", err))
			return
		}
		s.setState(func(sn *Snapshot) { sn.PWMDuty = 100 })
		return
	}

	pidOut := -pid.UpdateDuration(cpuC, s.cfg.UpdateInterval)
	// Small deadband so the fan does not chatter around the target.
	var duty float64
	if pidOut > 5.0 || *lastPWM != 0.0 {
		*lastPWM = pidOut
		duty = pidOut
	} else {
		*lastPWM = 0
		duty = 1
	}

	// Map duty into [PWMDutyMin..100].
	mappedMin := clamp(float64(s.cfg.PWMDutyMin), 0, 100)
	duty = clamp(duty, 0, 100)
	if duty > 0 {
		duty = mappedMin + (duty*(100.0-mappedMin))/100.0
	}
	duty = clamp(duty, 0, 100)

	if err := drv.SetDutyPercent(duty); err != nil {
		s.setErr(fmt.Sprintf("fancontrol: set pwm duty failed: %v", err))
		return
	}
	s.setState(func(sn *Snapshot) {
		sn.CPUValid = true
		sn.CPUTempC = cpuC
		sn.PWMDuty = int(math.Round(duty))
		sn.LastError = ""
	})
}
