package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"golang.org/x/sync/errgroup"

	"novaground/internal/config"
	"novaground/internal/fancontrol"
	"novaground/internal/i2c"
	"novaground/internal/pca9685"
	"novaground/internal/udp"
	"novaground/internal/web"
)

// Seams for tests.
var (
	openOutputEnableFn = func(chip, line string) (outputEnable, error) {
		return pca9685.OpenOutputEnable(chip, line)
	}
	newBroadcasterFn = udp.NewBroadcaster
)

type outputEnable interface {
	Enable() error
	Disable() error
	Close() error
}

// openerFor maps the configured backend onto a pca9685.OpenFunc.
func openerFor(p config.PCA9685Config) (pca9685.OpenFunc, error) {
	switch p.Backend {
	case config.BackendDevfs:
		return func(addr uint16) (pca9685.Handle, error) {
			return i2c.OpenDevice(p.Bus, addr)
		}, nil
	case config.BackendPeriph:
		return func(addr uint16) (pca9685.Handle, error) {
			return i2c.OpenPeriph(p.Bus, addr)
		}, nil
	}
	return nil, fmt.Errorf("unknown pca9685 backend %q", p.Backend)
}

type liveRuntime struct {
	cfg    config.Config
	chip   *pca9685.Locked
	oe     outputEnable
	status *web.Status
	fan    *fancontrol.Service
}

// newRuntime initializes the chip and applies the configured startup state.
// On error nothing is left open.
func newRuntime(cfg config.Config, open pca9685.OpenFunc) (*liveRuntime, error) {
	pc := pca9685.New(pca9685.Config{
		Address:      cfg.PCA9685.Address,
		OscillatorHz: cfg.PCA9685.OscillatorHz,
	}, open)
	if cfg.PCA9685.Trace {
		pc.SetTracer(pca9685.LogTracer{})
	}
	if err := pc.Initialize(cfg.PCA9685.ExtClockPrescale); err != nil {
		_ = pc.Close()
		return nil, err
	}

	r := &liveRuntime{cfg: cfg, chip: pca9685.NewLocked(pc), status: web.NewStatus()}
	r.status.SetStatic(cfg.PCA9685.Backend, cfg.PCA9685.Bus, "")
	if err := r.applyStartupState(); err != nil {
		r.Close()
		return nil, err
	}

	if oeCfg := cfg.PCA9685.OutputEnable; oeCfg.Line != "" {
		oe, err := openOutputEnableFn(oeCfg.Chip, oeCfg.Line)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.oe = oe
		if err := oe.Enable(); err != nil {
			r.Close()
			return nil, fmt.Errorf("pca9685: enable outputs: %w", err)
		}
		log.Printf("pca9685: outputs enabled via %s", oeCfg.Line)
	}
	return r, nil
}

func (r *liveRuntime) applyStartupState() error {
	p := r.cfg.PCA9685
	if p.FrequencyHz > 0 {
		if err := r.chip.SetFrequency(p.FrequencyHz); err != nil {
			return err
		}
	}
	if totemPole, ok := p.TotemPole(); ok {
		if err := r.chip.SetOutputMode(totemPole); err != nil {
			return err
		}
	}
	for _, ch := range r.cfg.Channels {
		var err error
		switch {
		case ch.PulseUs != nil:
			err = r.chip.SetPulseMicroseconds(ch.Channel, *ch.PulseUs)
		case ch.Duty != nil:
			err = r.chip.SetDuty(ch.Channel, *ch.Duty, ch.Invert)
		}
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

// Run starts the configured services and blocks until ctx is done or one of
// them fails.
func (r *liveRuntime) Run(ctx context.Context, logs *web.LogBuffer) error {
	g, gctx := errgroup.WithContext(ctx)

	if fc := r.cfg.Fan; fc.Enable {
		r.fan = fancontrol.New(fancontrol.Config{
			Enable:         true,
			Channel:        fc.Channel,
			Invert:         fc.Invert,
			TempPath:       fc.TempPath,
			TempTargetC:    fc.TempTargetC,
			PWMDutyMin:     fc.DutyMin,
			UpdateInterval: fc.UpdateInterval,
		}, r.chip)
		if err := r.fan.Start(gctx); err != nil {
			// The fan is an accessory; servos keep running without it.
			log.Printf("fancontrol init failed: %v", err)
		}
		r.status.SetFanSource(r.fan.Snapshot)
	}

	if tc := r.cfg.Telemetry; tc.Enable {
		b, err := newBroadcasterFn(tc.Dest)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		b.OnSent = r.status.MarkTelemetry
		r.status.SetStatic("", "", tc.Dest)
		log.Printf("telemetry dest=%s interval=%s", tc.Dest, tc.Interval)
		g.Go(func() error {
			defer b.Close()
			return b.Run(gctx, tc.Interval, r.telemetryPayload)
		})
	}

	if wc := r.cfg.Web; wc.Enable {
		h := web.Handler(r.status, r.chip, logs, web.Options{StreamInterval: wc.StreamInterval})
		log.Printf("web listening on %s", wc.Listen)
		g.Go(func() error {
			return web.Serve(gctx, wc.Listen, h)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

type telemetryMessage struct {
	Seq  uint64            `json:"seq"`
	Data map[string]uint16 `json:"data"`
}

// telemetryPayload encodes every channel's duty keyed by channel number.
func (r *liveRuntime) telemetryPayload(seq uint64) ([]byte, error) {
	st, err := r.chip.ReadState()
	if err != nil {
		return nil, err
	}
	msg := telemetryMessage{Seq: seq, Data: make(map[string]uint16, len(st.Channels))}
	for _, ch := range st.Channels {
		msg.Data[strconv.Itoa(ch.Channel)] = ch.Duty
	}
	return json.Marshal(msg)
}

// Close turns the fan off, disables the outputs and releases the bus.
func (r *liveRuntime) Close() {
	if r.fan != nil {
		r.fan.Close()
	}
	if r.oe != nil {
		if err := r.oe.Disable(); err != nil {
			log.Printf("pca9685: disable outputs: %v", err)
		}
		_ = r.oe.Close()
		r.oe = nil
	}
	_ = r.chip.Do(func(c *pca9685.Controller) error { return c.Close() })
}
