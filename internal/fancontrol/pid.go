package fancontrol

import "time"

// pidController turns a temperature error into a signed fan demand clamped
// to [outMin, outMax]. The integral term is bounded to the same range so a
// long stretch at one limit does not have to unwind before the output moves.
//
// Not safe for concurrent use.
type pidController struct {
	kp, ki, kd float64
	setpoint   float64
	outMin     float64
	outMax     float64

	integral  float64
	prevError float64
	havePrev  bool
}

func newPID(kp, ki, kd float64) *pidController {
	return &pidController{kp: kp, ki: ki, kd: kd, outMin: -100, outMax: 0}
}

func (p *pidController) SetOutputLimits(min, max float64) {
	p.outMin = min
	p.outMax = max
}

// Set changes the setpoint and clears accumulated state.
func (p *pidController) Set(setpoint float64) {
	p.setpoint = setpoint
	p.Reset()
}

func (p *pidController) Reset() {
	p.integral = 0
	p.prevError = 0
	p.havePrev = false
}

// UpdateDuration feeds one measurement taken dt after the previous one.
// A non-positive dt leaves the state untouched and returns 0.
func (p *pidController) UpdateDuration(measurement float64, dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	sec := dt.Seconds()
	err := p.setpoint - measurement

	p.integral += err * sec
	if p.ki != 0 {
		lo, hi := p.outMin/p.ki, p.outMax/p.ki
		if lo > hi {
			lo, hi = hi, lo
		}
		p.integral = clamp(p.integral, lo, hi)
	}

	derivative := 0.0
	if p.havePrev {
		derivative = (err - p.prevError) / sec
	}
	p.prevError = err
	p.havePrev = true

	return clamp(p.kp*err+p.ki*p.integral+p.kd*derivative, p.outMin, p.outMax)
}
