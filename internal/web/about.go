package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

type AboutResponse struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	Module    string `json:"module,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	// Deps lists the hardware-facing modules the binary was built with.
	Deps map[string]string `json:"deps,omitempty"`
}

var readBuildInfo = debug.ReadBuildInfo

// hardwareDeps are module path prefixes worth reporting when debugging a
// board: transport and GPIO drivers.
var hardwareDeps = []string{"periph.io/", "github.com/warthog618/", "golang.org/x/sys"}

func about(now time.Time) AboutResponse {
	resp := AboutResponse{
		Service:   "novaground",
		NowUTC:    now.UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
	}
	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return resp
	}
	resp.Module = bi.Main.Path
	resp.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Commit = s.Value
		case "vcs.modified":
			resp.Dirty = s.Value == "true"
		case "vcs.time":
			resp.BuildTime = s.Value
		}
	}
	for _, d := range bi.Deps {
		for _, prefix := range hardwareDeps {
			if strings.HasPrefix(d.Path, prefix) {
				if resp.Deps == nil {
					resp.Deps = make(map[string]string)
				}
				resp.Deps[d.Path] = d.Version
			}
		}
	}
	return resp
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, about(time.Now()))
	})
}
