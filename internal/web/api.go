package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"novaground/internal/pca9685"
)

type commandAPI struct {
	ctl Controller
}

type frequencyRequest struct {
	Hz *float64 `json:"hz"`
}

type outputModeRequest struct {
	Mode string `json:"mode"` // "totem_pole" or "open_drain"
}

type dutyRequest struct {
	Value  *uint16 `json:"value"`
	Invert bool    `json:"invert"`
}

type pulseRequest struct {
	Us *uint16 `json:"us"`
}

type ticksRequest struct {
	On  *uint16 `json:"on"`
	Off *uint16 `json:"off"`
}

type okResponse struct {
	OK      bool                  `json:"ok"`
	Channel *pca9685.ChannelState `json:"channel,omitempty"`
	State   *pca9685.State        `json:"state,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *commandAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/frequency", a.frequency)
	mux.HandleFunc("POST /api/output-mode", a.outputMode)
	mux.HandleFunc("POST /api/sleep", a.simple(func(c Controller) error { return c.Sleep() }))
	mux.HandleFunc("POST /api/wake", a.simple(func(c Controller) error { return c.Wake() }))
	mux.HandleFunc("GET /api/channels/{n}", a.channel)
	mux.HandleFunc("POST /api/channels/{n}/duty", a.duty)
	mux.HandleFunc("POST /api/channels/{n}/pulse", a.pulse)
	mux.HandleFunc("POST /api/channels/{n}/ticks", a.ticks)
}

func (a *commandAPI) available(w http.ResponseWriter) bool {
	if a.ctl == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "pca9685 unavailable"})
		return false
	}
	return true
}

func (a *commandAPI) frequency(w http.ResponseWriter, r *http.Request) {
	var req frequencyRequest
	if !decodeBody(w, r, &req) || !a.available(w) {
		return
	}
	if req.Hz == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "hz is required"})
		return
	}
	if err := a.ctl.SetFrequency(*req.Hz); err != nil {
		writeCommandError(w, err)
		return
	}
	a.respondState(w)
}

func (a *commandAPI) outputMode(w http.ResponseWriter, r *http.Request) {
	var req outputModeRequest
	if !decodeBody(w, r, &req) || !a.available(w) {
		return
	}
	var totemPole bool
	switch req.Mode {
	case "totem_pole":
		totemPole = true
	case "open_drain":
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `mode must be "totem_pole" or "open_drain"`})
		return
	}
	if err := a.ctl.SetOutputMode(totemPole); err != nil {
		writeCommandError(w, err)
		return
	}
	a.respondState(w)
}

func (a *commandAPI) simple(fn func(Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.available(w) {
			return
		}
		if err := fn(a.ctl); err != nil {
			writeCommandError(w, err)
			return
		}
		a.respondState(w)
	}
}

func (a *commandAPI) channel(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok || !a.available(w) {
		return
	}
	cs, err := a.ctl.Channel(ch)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (a *commandAPI) duty(w http.ResponseWriter, r *http.Request) {
	var req dutyRequest
	ch, ok := channelParam(w, r)
	if !ok || !decodeBody(w, r, &req) || !a.available(w) {
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value is required"})
		return
	}
	a.channelCommand(w, ch, a.ctl.SetDuty(ch, *req.Value, req.Invert))
}

func (a *commandAPI) pulse(w http.ResponseWriter, r *http.Request) {
	var req pulseRequest
	ch, ok := channelParam(w, r)
	if !ok || !decodeBody(w, r, &req) || !a.available(w) {
		return
	}
	if req.Us == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "us is required"})
		return
	}
	a.channelCommand(w, ch, a.ctl.SetPulseMicroseconds(ch, *req.Us))
}

func (a *commandAPI) ticks(w http.ResponseWriter, r *http.Request) {
	var req ticksRequest
	ch, ok := channelParam(w, r)
	if !ok || !decodeBody(w, r, &req) || !a.available(w) {
		return
	}
	if req.On == nil || req.Off == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "on and off are required"})
		return
	}
	a.channelCommand(w, ch, a.ctl.SetTicks(ch, *req.On, *req.Off))
}

func (a *commandAPI) channelCommand(w http.ResponseWriter, ch int, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	cs, err := a.ctl.Channel(ch)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Channel: &cs})
}

func (a *commandAPI) respondState(w http.ResponseWriter) {
	st, err := a.ctl.ReadState()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, State: &st})
}

func channelParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 || n >= pca9685.NumChannels {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("channel must be an integer in [0,%d]", pca9685.NumChannels-1)})
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

// writeCommandError maps driver errors onto HTTP status codes.
func writeCommandError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var ioErr *pca9685.BusIoError
	switch {
	case errors.Is(err, pca9685.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, pca9685.ErrNotOpen):
		code = http.StatusServiceUnavailable
	case errors.As(err, &ioErr):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
