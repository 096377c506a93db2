package pca9685

import "math"

// ClampFrequency bounds hz to [MinFrequencyHz, MaxFrequencyHz]. NaN maps to
// MinFrequencyHz.
func ClampFrequency(hz float64) float64 {
	switch {
	case math.IsNaN(hz), hz < MinFrequencyHz:
		return MinFrequencyHz
	case hz > MaxFrequencyHz:
		return MaxFrequencyHz
	}
	return hz
}

// ComputePrescale is the datasheet's equation 1,
// round(osc / (4096 * hz)) - 1, rounded half up and saturated to
// [PrescaleMin, PrescaleMax]. hz is clamped first.
func ComputePrescale(oscHz uint32, hz float64) byte {
	hz = ClampFrequency(hz)
	v := math.Floor(float64(oscHz)/(hz*FullScale)+0.5) - 1
	if v < PrescaleMin {
		v = PrescaleMin
	}
	if v > PrescaleMax {
		v = PrescaleMax
	}
	return byte(v)
}

// PrescaleFrequency is the output frequency a prescale yields at oscHz.
func PrescaleFrequency(oscHz uint32, prescale byte) float64 {
	return float64(oscHz) / (float64(int(prescale)+1) * FullScale)
}

// SetFrequency programs the PWM frequency shared by all channels. Targets
// outside [MinFrequencyHz, MaxFrequencyHz] and prescales outside
// [PrescaleMin, PrescaleMax] saturate silently.
func (c *Controller) SetFrequency(hz float64) error {
	applied := ClampFrequency(hz)
	prescale := ComputePrescale(c.oscHz, applied)

	// Captured before sleeping so MODE1 configuration survives the restart.
	old, err := c.read8(regMode1)
	if err != nil {
		return err
	}
	if err := c.write8(regMode1, sleepFrom(old)); err != nil {
		return err
	}
	if err := c.write8(regPrescale, prescale); err != nil {
		return err
	}
	if err := c.write8(regMode1, old); err != nil {
		return err
	}
	sleep(sleepSettle)
	mode := old | mode1Restart | mode1AI
	if err := c.write8(regMode1, mode); err != nil {
		return err
	}
	c.emit(Event{Kind: EventFrequency, RequestedHz: hz, AppliedHz: applied, Prescale: prescale, Mode: mode})
	return nil
}

func (c *Controller) ReadPrescale() (byte, error) {
	return c.read8(regPrescale)
}

// Frequency reports the output frequency implied by the chip's current
// prescale and the assumed oscillator rate.
func (c *Controller) Frequency() (float64, error) {
	p, err := c.ReadPrescale()
	if err != nil {
		return 0, err
	}
	return PrescaleFrequency(c.oscHz, p), nil
}
