package pca9685

// rawTicks reads ON_L, ON_H, OFF_L, OFF_H one register at a time.
func (c *Controller) rawTicks(ch int) (on, off uint16, err error) {
	if err := checkChannel(ch); err != nil {
		return 0, 0, err
	}
	base := channelBase(ch)
	var b [4]byte
	for i := range b {
		v, err := c.read8(base + byte(i))
		if err != nil {
			return 0, 0, err
		}
		b[i] = v
	}
	on = uint16(b[1]&tickHighMask)<<8 | uint16(b[0])
	off = uint16(b[3]&tickHighMask)<<8 | uint16(b[2])
	return on, off, nil
}

// Ticks returns a channel's on tick and its off tick adjusted for cycle
// wraparound: when the raw off tick precedes the on tick, off is reported
// as FullScale+off-on, so callers can treat off-on as the high time.
// Values carrying a full-on or full-off flag are returned as read.
func (c *Controller) Ticks(ch int) (on, off uint16, err error) {
	on, off, err = c.rawTicks(ch)
	if err != nil {
		return 0, 0, err
	}
	return on, wrapOff(on, off), nil
}

// Duty returns the number of high ticks per cycle, 0..4096. The full-off
// flag wins over full-on, as on the chip.
func (c *Controller) Duty(ch int) (uint16, error) {
	on, off, err := c.rawTicks(ch)
	if err != nil {
		return 0, err
	}
	return dutyOf(on, off), nil
}

// Channel reads one channel's registers as a ChannelState.
func (c *Controller) Channel(ch int) (ChannelState, error) {
	on, off, err := c.rawTicks(ch)
	if err != nil {
		return ChannelState{}, err
	}
	return ChannelState{Channel: ch, On: on, Off: wrapOff(on, off), Duty: dutyOf(on, off)}, nil
}

func wrapOff(on, off uint16) uint16 {
	if (on|off)&FullScale != 0 {
		return off
	}
	if off < on {
		return FullScale + off - on
	}
	return off
}

func dutyOf(on, off uint16) uint16 {
	switch {
	case off&FullScale != 0:
		return 0
	case on&FullScale != 0:
		return FullScale
	case off < on:
		return FullScale + off - on
	}
	return off - on
}

// SetTicks overwrites all four channel registers. on and off are tick
// positions in [0, 4095], or FullScale to set the full-on / full-off flag.
func (c *Controller) SetTicks(ch int, on, off uint16) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if on > FullScale || off > FullScale {
		return errInvalidf("channel %d ticks on=%d off=%d exceed %d", ch, on, off, FullScale)
	}
	base := channelBase(ch)
	vals := [4]byte{byte(on), byte(on >> 8), byte(off), byte(off >> 8)}
	for i, v := range vals {
		if err := c.write8(base+byte(i), v); err != nil {
			return err
		}
	}
	c.emit(Event{Kind: EventTicks, Channel: ch, On: on, Off: off})
	return nil
}

// DutyTicks maps a 0..4095 duty value to the (on, off) pair SetDuty writes.
// 0 and 4095 select the full-off / full-on flags (swapped when invert is
// set); everything in between rises at the start of the cycle.
func DutyTicks(value uint16, invert bool) (on, off uint16) {
	if value > MaxDuty {
		value = MaxDuty
	}
	full, none := uint16(MaxDuty), uint16(0)
	if invert {
		full, none = none, full
	}
	switch value {
	case full:
		return FullScale, 0
	case none:
		return 0, FullScale
	}
	if invert {
		return 0, MaxDuty - value
	}
	return 0, value
}

// SetDuty drives a channel high for value/4096 of each cycle. Values above
// 4095 are clamped. With invert set the output is low for that fraction
// instead, for loads sinking to ground.
func (c *Controller) SetDuty(ch int, value uint16, invert bool) error {
	on, off := DutyTicks(value, invert)
	return c.SetTicks(ch, on, off)
}

// SetPulseMicroseconds sets a high pulse of roughly us microseconds at the
// start of each cycle, the usual way to position a hobby servo.
//
// The tick length comes from the chip's current prescale and the assumed
// oscillator rate, and the tick count is truncated, so the pulse is short
// by up to one tick (~4.9 us at 50 Hz).
func (c *Controller) SetPulseMicroseconds(ch int, us uint16) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	prescale, err := c.ReadPrescale()
	if err != nil {
		return err
	}
	tickUs := 1_000_000 * float64(int(prescale)+1) / float64(c.oscHz)
	ticks := float64(us) / tickUs
	if ticks >= FullScale {
		return errInvalidf("pulse %dus is %.0f ticks at prescale %d, cycle is %d", us, ticks, prescale, FullScale)
	}
	if err := c.SetTicks(ch, 0, uint16(ticks)); err != nil {
		return err
	}
	c.emit(Event{Kind: EventPulse, Channel: ch, Micros: us, Prescale: prescale, TickMicros: tickUs, Off: uint16(ticks)})
	return nil
}

type ChannelState struct {
	Channel int    `json:"channel"`
	On      uint16 `json:"on"`
	Off     uint16 `json:"off"`
	Duty    uint16 `json:"duty"`
}

// State is a point-in-time view of the chip's registers.
type State struct {
	Address      uint16         `json:"address"`
	OscillatorHz uint32         `json:"oscillator_hz"`
	Prescale     byte           `json:"prescale"`
	FrequencyHz  float64        `json:"frequency_hz"`
	Mode1        byte           `json:"mode1"`
	Mode2        byte           `json:"mode2"`
	Sleeping     bool           `json:"sleeping"`
	ExtClock     bool           `json:"ext_clock"`
	TotemPole    bool           `json:"totem_pole"`
	Channels     []ChannelState `json:"channels"`
}

func (c *Controller) ReadState() (State, error) {
	st := State{Address: c.addr, OscillatorHz: c.oscHz}
	var err error
	if st.Mode1, err = c.read8(regMode1); err != nil {
		return State{}, err
	}
	if st.Mode2, err = c.read8(regMode2); err != nil {
		return State{}, err
	}
	if st.Prescale, err = c.ReadPrescale(); err != nil {
		return State{}, err
	}
	st.FrequencyHz = PrescaleFrequency(c.oscHz, st.Prescale)
	st.Sleeping = st.Mode1&mode1Sleep != 0
	st.ExtClock = st.Mode1&mode1ExtClk != 0
	st.TotemPole = st.Mode2&mode2OutDrv != 0

	st.Channels = make([]ChannelState, 0, NumChannels)
	for ch := 0; ch < NumChannels; ch++ {
		cs, err := c.Channel(ch)
		if err != nil {
			return State{}, err
		}
		st.Channels = append(st.Channels, cs)
	}
	return st, nil
}
