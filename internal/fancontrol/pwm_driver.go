package fancontrol

import (
	"math"

	"novaground/internal/pca9685"
)

// pwmDriver is the minimal interface the service loop needs from a fan
// output. Duty is expressed in percent (0..100).
//
// Close should be best-effort and leave the fan off.
//
//nolint:revive // internal interface name matches domain.
type pwmDriver interface {
	SetDutyPercent(p float64) error
	Close() error
}

// ChannelSetter is the part of a shared PCA9685 the fan needs.
// *pca9685.Locked satisfies it.
type ChannelSetter interface {
	SetDuty(ch int, value uint16, invert bool) error
}

// channelDriver runs a fan from one PCA9685 output, typically through a
// MOSFET on a 4-pin fan's PWM line or a 2-wire fan's low side.
type channelDriver struct {
	chip    ChannelSetter
	channel int
	invert  bool
}

func newChannelDriver(chip ChannelSetter, channel int, invert bool) pwmDriver {
	return &channelDriver{chip: chip, channel: channel, invert: invert}
}

func (d *channelDriver) SetDutyPercent(p float64) error {
	return d.chip.SetDuty(d.channel, percentToDuty(p), d.invert)
}

func (d *channelDriver) Close() error {
	return d.chip.SetDuty(d.channel, 0, d.invert)
}

func percentToDuty(p float64) uint16 {
	p = clamp(p, 0, 100)
	return uint16(math.Round(p / 100 * pca9685.MaxDuty))
}
