package web

import (
	"sync/atomic"
	"time"

	"novaground/internal/fancontrol"
	"novaground/internal/pca9685"
)

// Status aggregates what /api/status and the websocket stream report.
type Status struct {
	startUnixNano int64
	telemetrySent uint64
	lastSendNano  int64

	backend   atomic.Value // string
	bus       atomic.Value // string
	telemDest atomic.Value // string
	fan       atomic.Value // func() fancontrol.Snapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.backend.Store("")
	s.bus.Store("")
	s.telemDest.Store("")
	s.fan.Store(func() fancontrol.Snapshot { return fancontrol.Snapshot{} })
	return s
}

func (s *Status) SetStatic(backend, bus, telemetryDest string) {
	if backend != "" {
		s.backend.Store(backend)
	}
	if bus != "" {
		s.bus.Store(bus)
	}
	if telemetryDest != "" {
		s.telemDest.Store(telemetryDest)
	}
}

// SetFanSource registers the fan service snapshot provider.
func (s *Status) SetFanSource(fn func() fancontrol.Snapshot) {
	if fn != nil {
		s.fan.Store(fn)
	}
}

// MarkTelemetry records one telemetry datagram sent at nowUTC.
func (s *Status) MarkTelemetry(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastSendNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.telemetrySent, 1)
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	Backend string         `json:"backend"`
	Bus     string         `json:"bus"`
	Chip    *pca9685.State `json:"chip,omitempty"`
	// ChipError is set when the register snapshot could not be read.
	ChipError string `json:"chip_error,omitempty"`

	Fan fancontrol.Snapshot `json:"fan"`

	TelemetryDest      string `json:"telemetry_dest,omitempty"`
	TelemetrySentTotal uint64 `json:"telemetry_sent_total"`
	LastTelemetryUTC   string `json:"last_telemetry_utc,omitempty"`
}

// Snapshot builds a status view. ctl may be nil when no chip is attached.
func (s *Status) Snapshot(nowUTC time.Time, ctl Controller) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	fan := s.fan.Load().(func() fancontrol.Snapshot)

	snap := StatusSnapshot{
		Service:            "novaground",
		NowUTC:             nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:          int64(nowUTC.Sub(start).Seconds()),
		Backend:            s.backend.Load().(string),
		Bus:                s.bus.Load().(string),
		Fan:                fan(),
		TelemetryDest:      s.telemDest.Load().(string),
		TelemetrySentTotal: atomic.LoadUint64(&s.telemetrySent),
	}
	if last := atomic.LoadInt64(&s.lastSendNano); last != 0 {
		snap.LastTelemetryUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	if ctl != nil {
		st, err := ctl.ReadState()
		if err != nil {
			snap.ChipError = err.Error()
		} else {
			snap.Chip = &st
		}
	}
	return snap
}
