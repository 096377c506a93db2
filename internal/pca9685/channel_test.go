package pca9685

import (
	"errors"
	"math"
	"testing"
)

func TestDutyTicks_Table(t *testing.T) {
	cases := []struct {
		invert  bool
		value   uint16
		on, off uint16
	}{
		{false, 4095, 4096, 0},
		{false, 0, 0, 4096},
		{false, 1, 0, 1},
		{false, 2048, 0, 2048},
		{false, 4094, 0, 4094},
		{false, 5000, 4096, 0},
		{true, 0, 4096, 0},
		{true, 4095, 0, 4096},
		{true, 1, 0, 4094},
		{true, 2048, 0, 2047},
		{true, 4094, 0, 1},
		{true, 65535, 0, 4096},
	}
	for _, tc := range cases {
		on, off := DutyTicks(tc.value, tc.invert)
		if on != tc.on || off != tc.off {
			t.Fatalf("DutyTicks(%d, %v)=(%d,%d) want (%d,%d)", tc.value, tc.invert, on, off, tc.on, tc.off)
		}
	}
}

func TestSetDuty_TicksRoundTrip(t *testing.T) {
	cases := []struct {
		value   uint16
		invert  bool
		on, off uint16
	}{
		{0, false, 0, 4096},
		{4095, false, 4096, 0},
		{2048, false, 0, 2048},
		{0, true, 4096, 0},
		{4095, true, 0, 4096},
	}
	for _, tc := range cases {
		c, _ := openController(t)
		if err := c.SetDuty(7, tc.value, tc.invert); err != nil {
			t.Fatalf("SetDuty: %v", err)
		}
		on, off, err := c.Ticks(7)
		if err != nil {
			t.Fatalf("Ticks: %v", err)
		}
		if on != tc.on || off != tc.off {
			t.Fatalf("SetDuty(%d, %v) then Ticks=(%d,%d) want (%d,%d)", tc.value, tc.invert, on, off, tc.on, tc.off)
		}
	}
}

func TestSetTicks_WriteOrder(t *testing.T) {
	c, f := openController(t)
	if err := c.SetTicks(2, 0x123, 4096); err != nil {
		t.Fatalf("SetTicks: %v", err)
	}
	assertWrites(t, f.writes(), []regOp{
		w(0x0E, 0x23),
		w(0x0F, 0x01),
		w(0x10, 0x00),
		w(0x11, 0x10),
	})
	for _, o := range f.ops {
		if o.op == OpRead {
			t.Fatalf("SetTicks must not read, got %v", o)
		}
	}
}

func TestTicks_Wraparound(t *testing.T) {
	c, f := openController(t)
	base := channelBase(3)
	f.regs[base+0], f.regs[base+1] = 0xB8, 0x0B // on=3000
	f.regs[base+2], f.regs[base+3] = 0xE8, 0x03 // off=1000

	on, off, err := c.Ticks(3)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if on != 3000 || off != 2096 {
		t.Fatalf("Ticks=(%d,%d) want (3000,2096)", on, off)
	}
	d, err := c.Duty(3)
	if err != nil {
		t.Fatalf("Duty: %v", err)
	}
	if d != 2096 {
		t.Fatalf("Duty=%d want 2096", d)
	}
}

func TestTicks_FullOnFlagWithStrayBits(t *testing.T) {
	c, f := openController(t)
	base := channelBase(5)
	f.regs[base+0], f.regs[base+1] = 0x01, 0x10 // full-on flag plus on=1

	on, off, err := c.Ticks(5)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if on != 4097 || off != 0 {
		t.Fatalf("Ticks=(%d,%d) want (4097,0)", on, off)
	}
	d, err := c.Duty(5)
	if err != nil {
		t.Fatalf("Duty: %v", err)
	}
	if d != FullScale {
		t.Fatalf("Duty=%d want %d", d, FullScale)
	}
}

func TestTicks_IgnoresReservedHighBits(t *testing.T) {
	c, f := openController(t)
	base := channelBase(0)
	f.regs[base+1] = 0xE1 // reserved bits 5..7 set, value bits 0x1
	f.regs[base+2] = 0x00
	f.regs[base+3] = 0xE2

	on, off, err := c.Ticks(0)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if on != 0x100 || off != 0x200 {
		t.Fatalf("Ticks=(%d,%d) want (256,512)", on, off)
	}
}

func TestDuty_FullFlags(t *testing.T) {
	c, _ := openController(t)
	if err := c.SetDuty(1, 4095, false); err != nil {
		t.Fatalf("SetDuty: %v", err)
	}
	if d, _ := c.Duty(1); d != FullScale {
		t.Fatalf("full-on duty=%d want %d", d, FullScale)
	}
	if err := c.SetDuty(1, 0, false); err != nil {
		t.Fatalf("SetDuty: %v", err)
	}
	if d, _ := c.Duty(1); d != 0 {
		t.Fatalf("full-off duty=%d want 0", d)
	}
	// Full-off wins when both flags are set.
	if err := c.SetTicks(1, 4096, 4096); err != nil {
		t.Fatalf("SetTicks: %v", err)
	}
	if d, _ := c.Duty(1); d != 0 {
		t.Fatalf("both flags duty=%d want 0", d)
	}
}

func TestChannelValidation(t *testing.T) {
	c, f := openController(t)
	for _, ch := range []int{-1, 16, 100} {
		if err := c.SetTicks(ch, 0, 1); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("SetTicks(%d) err=%v", ch, err)
		}
		if err := c.SetDuty(ch, 1, false); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("SetDuty(%d) err=%v", ch, err)
		}
		if err := c.SetPulseMicroseconds(ch, 1500); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("SetPulseMicroseconds(%d) err=%v", ch, err)
		}
		if _, _, err := c.Ticks(ch); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("Ticks(%d) err=%v", ch, err)
		}
	}
	if len(f.ops) != 0 {
		t.Fatalf("invalid channels reached the bus: %v", f.ops)
	}
}

func TestSetTicks_RejectsOutOfRange(t *testing.T) {
	c, f := openController(t)
	if err := c.SetTicks(0, 4097, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if err := c.SetTicks(0, 0, 5000); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if len(f.ops) != 0 {
		t.Fatalf("unexpected bus traffic %v", f.ops)
	}
}

func TestSetPulseMicroseconds_ServoPulse(t *testing.T) {
	c, f := openController(t)
	f.regs[regPrescale] = 121
	events := recordEvents(c)

	if err := c.SetPulseMicroseconds(0, 1500); err != nil {
		t.Fatalf("SetPulseMicroseconds: %v", err)
	}
	// 1500 / (122e6/25e6) = 307.4, truncated.
	assertWrites(t, f.writes(), []regOp{
		w(0x06, 0x00),
		w(0x07, 0x00),
		w(0x08, 0x33),
		w(0x09, 0x01),
	})
	var pulse *Event
	for i := range *events {
		if (*events)[i].Kind == EventPulse {
			pulse = &(*events)[i]
		}
	}
	if pulse == nil {
		t.Fatalf("no pulse event in %v", *events)
	}
	if pulse.Off != 307 || pulse.Prescale != 121 || math.Abs(pulse.TickMicros-4.88) > 1e-9 {
		t.Fatalf("pulse event=%+v", *pulse)
	}
}

func TestSetPulseMicroseconds_UsesCalibration(t *testing.T) {
	c, f := openController(t)
	f.regs[regPrescale] = 121
	c.SetOscillatorFrequency(26_000_000)

	if err := c.SetPulseMicroseconds(4, 1000); err != nil {
		t.Fatalf("SetPulseMicroseconds: %v", err)
	}
	// tick = 122e6/26e6 = 4.692us, 1000/4.692 = 213.1
	_, off, err := c.Ticks(4)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if off != 213 {
		t.Fatalf("off=%d want 213", off)
	}
}

func TestSetPulseMicroseconds_LongerThanCycle(t *testing.T) {
	c, f := openController(t)
	f.regs[regPrescale] = 121

	err := c.SetPulseMicroseconds(0, 20000)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if len(f.writes()) != 0 {
		t.Fatalf("unexpected writes %v", f.writes())
	}
}

func TestReadState(t *testing.T) {
	c, f := openController(t)
	f.regs[regMode1] = 0xA0
	f.regs[regMode2] = mode2OutDrv
	f.regs[regPrescale] = 121
	if err := c.SetDuty(0, 2048, false); err != nil {
		t.Fatalf("SetDuty: %v", err)
	}
	if err := c.SetDuty(15, 4095, false); err != nil {
		t.Fatalf("SetDuty: %v", err)
	}

	st, err := c.ReadState()
	if err != nil {
		t.Fatalf("ReadState: %v", err)
	}
	if st.Address != DefaultAddress || st.Prescale != 121 || st.Sleeping || st.ExtClock || !st.TotemPole {
		t.Fatalf("state=%+v", st)
	}
	if math.Abs(st.FrequencyHz-50.03) > 0.01 {
		t.Fatalf("frequency=%v", st.FrequencyHz)
	}
	if len(st.Channels) != NumChannels {
		t.Fatalf("channels=%d", len(st.Channels))
	}
	if ch := st.Channels[0]; ch.On != 0 || ch.Off != 2048 || ch.Duty != 2048 {
		t.Fatalf("channel 0=%+v", ch)
	}
	if ch := st.Channels[15]; ch.On != 4096 || ch.Off != 0 || ch.Duty != FullScale {
		t.Fatalf("channel 15=%+v", ch)
	}
}
