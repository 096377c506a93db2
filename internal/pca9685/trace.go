package pca9685

import (
	"fmt"
	"log"
)

type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventReset
	EventSleep
	EventWake
	EventExtClock
	EventFrequency
	EventOutputMode
	EventTicks
	EventPulse
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventReset:
		return "reset"
	case EventSleep:
		return "sleep"
	case EventWake:
		return "wake"
	case EventExtClock:
		return "extclk"
	case EventFrequency:
		return "frequency"
	case EventOutputMode:
		return "output_mode"
	case EventTicks:
		return "ticks"
	case EventPulse:
		return "pulse"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes one completed controller operation. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	Addr uint16
	// Mode is the last MODE1 (or MODE2 for EventOutputMode) value written.
	Mode byte

	Prescale    byte
	RequestedHz float64
	AppliedHz   float64 // after the [MinFrequencyHz, MaxFrequencyHz] clamp

	Channel    int
	On, Off    uint16
	Micros     uint16
	TickMicros float64

	TotemPole bool
}

// Tracer receives controller events. Implementations are called
// synchronously from the operation that produced the event.
type Tracer interface {
	Trace(Event)
}

type TracerFunc func(Event)

func (f TracerFunc) Trace(e Event) { f(e) }

// LogTracer prints events through a standard logger.
type LogTracer struct {
	Logger *log.Logger // nil uses the log package default
}

func (t LogTracer) Trace(e Event) {
	printf := log.Printf
	if t.Logger != nil {
		printf = t.Logger.Printf
	}
	switch e.Kind {
	case EventOpen:
		printf("pca9685: opened addr=0x%02X", e.Addr)
	case EventFrequency:
		printf("pca9685: frequency requested=%g applied=%g prescale=%d mode1=0x%02X", e.RequestedHz, e.AppliedHz, e.Prescale, e.Mode)
	case EventExtClock:
		printf("pca9685: external clock prescale=%d mode1=0x%02X", e.Prescale, e.Mode)
	case EventOutputMode:
		drive := "open_drain"
		if e.TotemPole {
			drive = "totem_pole"
		}
		printf("pca9685: output mode=%s mode2=0x%02X", drive, e.Mode)
	case EventTicks:
		printf("pca9685: channel=%d on=%d off=%d", e.Channel, e.On, e.Off)
	case EventPulse:
		printf("pca9685: channel=%d pulse_us=%d prescale=%d us_per_tick=%.3f ticks=%d", e.Channel, e.Micros, e.Prescale, e.TickMicros, e.Off)
	default:
		printf("pca9685: %s mode1=0x%02X", e.Kind, e.Mode)
	}
}
