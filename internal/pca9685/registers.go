package pca9685

// Register map (PCA9685 datasheet rev. 4, section 7.3).
const (
	regMode1    = 0x00
	regMode2    = 0x01
	regLED0OnL  = 0x06
	regPrescale = 0xFE
)

// MODE1 bits.
const (
	mode1Sleep   = 0x10
	mode1AI      = 0x20
	mode1ExtClk  = 0x40
	mode1Restart = 0x80
)

// MODE2 bits.
const (
	mode2OutDrv = 0x04
)

const (
	// NumChannels is the number of PWM outputs on one chip.
	NumChannels = 16

	// FullScale is the number of ticks in one PWM cycle. Written to an ON or
	// OFF register it sets the full-on / full-off flag (bit 4 of the high
	// byte) instead of a tick position.
	FullScale = 4096
	// MaxDuty is the largest proportional duty value accepted by SetDuty.
	MaxDuty = FullScale - 1

	// PrescaleMin is the smallest prescale the hardware honours; lower
	// writes are forced up to it.
	PrescaleMin = 3
	PrescaleMax = 255

	DefaultAddress      = 0x40
	DefaultOscillatorHz = 25_000_000
	// DefaultFrequencyHz is programmed by Initialize when no external clock
	// prescale is given.
	DefaultFrequencyHz = 1000

	MinFrequencyHz = 1
	// MaxFrequencyHz sits above the datasheet's ~3052 Hz ceiling; the
	// prescale clamp is what actually bounds the output.
	MaxFrequencyHz = 3500
)

const (
	// high bytes carry 4 value bits plus the full-on/off flag.
	tickHighMask = 0x1F
)

func channelBase(ch int) byte {
	return byte(regLED0OnL + 4*ch)
}

func withBit(v, mask byte, set bool) byte {
	if set {
		return v | mask
	}
	return v &^ mask
}

func withSleep(mode byte, on bool) byte         { return withBit(mode, mode1Sleep, on) }
func withRestart(mode byte, on bool) byte       { return withBit(mode, mode1Restart, on) }
func withExtClock(mode byte, on bool) byte      { return withBit(mode, mode1ExtClk, on) }
func withAutoIncrement(mode byte, on bool) byte { return withBit(mode, mode1AI, on) }
func withOutDrv(mode2 byte, totemPole bool) byte {
	return withBit(mode2, mode2OutDrv, totemPole)
}

// sleepFrom is the MODE1 value that puts the chip to sleep without
// triggering a restart.
func sleepFrom(mode byte) byte {
	return withSleep(withRestart(mode, false), true)
}

// runFrom is the MODE1 value that wakes the chip and restarts PWM with
// register auto-increment enabled.
func runFrom(mode byte) byte {
	return withAutoIncrement(withRestart(withSleep(mode, false), true), true)
}
