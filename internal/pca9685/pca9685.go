// Package pca9685 drives the NXP PCA9685 16-channel, 12-bit PWM controller
// over a single-byte register transport.
//
// Every operation is a short, blocking sequence of register reads and writes
// plus the settle delays the datasheet requires. The Controller holds no lock:
// callers that share one chip between goroutines must serialize access (see
// Locked), since interleaved sleep/prescale/restart sequences corrupt the
// chip's mode state.
//
// The chip cannot report its oscillator rate. All frequency math uses the
// calibration value held by the Controller (OscillatorFrequency).
package pca9685

import (
	"time"
)

var sleep = time.Sleep

const (
	resetSettle = 10 * time.Millisecond
	// One full PWM cycle at the slowest prescale is ~4 ms; the oscillator
	// must be stopped before PRESCALE accepts a write.
	sleepSettle = 5 * time.Millisecond
)

// Handle is the register transport the controller needs from a bus.
type Handle interface {
	ReadRegU8(reg byte) (byte, error)
	WriteReg(reg, value byte) error
	Close() error
}

// OpenFunc acquires a Handle for the chip at addr.
type OpenFunc func(addr uint16) (Handle, error)

type Config struct {
	// Address is the 7-bit bus address. Zero selects DefaultAddress.
	Address uint16
	// OscillatorHz is the calibration value Initialize stores. Zero selects
	// DefaultOscillatorHz.
	OscillatorHz uint32
	// Tracer, when set, receives an Event for each completed operation.
	Tracer Tracer
}

// Controller is one physical PCA9685.
type Controller struct {
	addr  uint16
	open  OpenFunc
	dev   Handle
	oscHz uint32
	calHz uint32

	tracer Tracer
}

func New(cfg Config, open OpenFunc) *Controller {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.OscillatorHz == 0 {
		cfg.OscillatorHz = DefaultOscillatorHz
	}
	return &Controller{
		addr:   cfg.Address,
		open:   open,
		oscHz:  cfg.OscillatorHz,
		calHz:  cfg.OscillatorHz,
		tracer: cfg.Tracer,
	}
}

func (c *Controller) Address() uint16 { return c.addr }

// OscillatorFrequency returns the oscillator rate assumed for frequency and
// pulse-width math.
func (c *Controller) OscillatorFrequency() uint32 { return c.oscHz }

// SetOscillatorFrequency changes the assumed oscillator rate. Boards vary
// by a few percent from the nominal 25 MHz; measure the output with a scope
// and adjust to trim servo pulse widths.
func (c *Controller) SetOscillatorFrequency(hz uint32) { c.oscHz = hz }

func (c *Controller) SetTracer(t Tracer) { c.tracer = t }

func (c *Controller) emit(e Event) {
	if c.tracer == nil {
		return
	}
	e.Addr = c.addr
	c.tracer.Trace(e)
}

// Initialize opens the bus handle, resets the chip, selects the clock
// source and stores the oscillator calibration value.
//
// A non-zero extClockPrescale switches the chip to the EXTCLK pin with that
// prescale; zero keeps the internal oscillator and programs
// DefaultFrequencyHz. Each call re-opens the handle.
func (c *Controller) Initialize(extClockPrescale byte) error {
	if c.open == nil {
		return &BusOpenError{Addr: c.addr, Err: errNoOpener}
	}
	if c.dev != nil {
		_ = c.dev.Close()
		c.dev = nil
	}
	dev, err := c.open(c.addr)
	if err != nil {
		return &BusOpenError{Addr: c.addr, Err: err}
	}
	if dev == nil {
		return &BusOpenError{Addr: c.addr, Err: errNilHandle}
	}
	c.dev = dev
	c.emit(Event{Kind: EventOpen})

	if err := c.Reset(); err != nil {
		return err
	}
	if extClockPrescale != 0 {
		if err := c.SetExternalClock(extClockPrescale); err != nil {
			return err
		}
	} else {
		if err := c.SetFrequency(DefaultFrequencyHz); err != nil {
			return err
		}
	}
	c.SetOscillatorFrequency(c.calHz)
	return nil
}

// Close releases the bus handle. The chip keeps running with its last
// register values.
func (c *Controller) Close() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

// Reset writes RESTART to MODE1 and waits for the chip to settle.
func (c *Controller) Reset() error {
	if err := c.write8(regMode1, mode1Restart); err != nil {
		return err
	}
	sleep(resetSettle)
	c.emit(Event{Kind: EventReset, Mode: mode1Restart})
	return nil
}

// Sleep stops the oscillator. It returns only after the in-flight PWM cycle
// has finished.
func (c *Controller) Sleep() error {
	awake, err := c.read8(regMode1)
	if err != nil {
		return err
	}
	mode := withSleep(awake, true)
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	sleep(sleepSettle)
	c.emit(Event{Kind: EventSleep, Mode: mode})
	return nil
}

func (c *Controller) Wake() error {
	asleep, err := c.read8(regMode1)
	if err != nil {
		return err
	}
	mode := withSleep(asleep, false)
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	c.emit(Event{Kind: EventWake, Mode: mode})
	return nil
}

// SetExternalClock switches the chip to the EXTCLK pin. The datasheet only
// guarantees the switch when SLEEP is set first and SLEEP|EXTCLK is written
// afterwards; EXTCLK can then only be cleared by a power cycle or software
// reset.
func (c *Controller) SetExternalClock(prescale byte) error {
	if prescale < PrescaleMin {
		return errInvalidf("external clock prescale %d below minimum %d", prescale, PrescaleMin)
	}
	old, err := c.read8(regMode1)
	if err != nil {
		return err
	}
	mode := sleepFrom(old)
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	mode = withExtClock(mode, true)
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	if err := c.write8(regPrescale, prescale); err != nil {
		return err
	}
	sleep(sleepSettle)
	mode = runFrom(mode)
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	c.emit(Event{Kind: EventExtClock, Prescale: prescale, Mode: mode})
	return nil
}

// SetOutputMode selects totem-pole (true) or open-drain (false) outputs.
// LEDs with integrated zener diodes should only be driven open-drain.
func (c *Controller) SetOutputMode(totemPole bool) error {
	old, err := c.read8(regMode2)
	if err != nil {
		return err
	}
	mode := withOutDrv(old, totemPole)
	if err := c.write8(regMode2, mode); err != nil {
		return err
	}
	c.emit(Event{Kind: EventOutputMode, Mode: mode, TotemPole: totemPole})
	return nil
}

func (c *Controller) read8(reg byte) (byte, error) {
	if c.dev == nil {
		return 0, ErrNotOpen
	}
	v, err := c.dev.ReadRegU8(reg)
	if err != nil {
		return 0, &BusIoError{Reg: reg, Op: OpRead, Err: err}
	}
	return v, nil
}

func (c *Controller) write8(reg, value byte) error {
	if c.dev == nil {
		return ErrNotOpen
	}
	if err := c.dev.WriteReg(reg, value); err != nil {
		return &BusIoError{Reg: reg, Op: OpWrite, Value: value, Err: err}
	}
	return nil
}
