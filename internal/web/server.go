package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"novaground/internal/pca9685"
)

// Controller is the chip surface the API drives. *pca9685.Locked satisfies
// it; implementations must be safe for concurrent use.
type Controller interface {
	SetFrequency(hz float64) error
	SetOutputMode(totemPole bool) error
	SetDuty(ch int, value uint16, invert bool) error
	SetPulseMicroseconds(ch int, us uint16) error
	SetTicks(ch int, on, off uint16) error
	Sleep() error
	Wake() error
	Channel(ch int) (pca9685.ChannelState, error)
	ReadState() (pca9685.State, error)
}

type Options struct {
	// StreamInterval is the websocket state push period.
	StreamInterval time.Duration
}

func Handler(status *Status, ctl Controller, logs *LogBuffer, opts Options) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = time.Second
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl))
	})

	api := &commandAPI{ctl: ctl}
	api.register(mux)

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("GET /api/about", AboutHandler())
	mux.Handle("GET /api/ws", newStateStream(status, ctl, opts.StreamInterval))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("novaground: see /api/status, /api/about, /api/logs, /api/ws\n"))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
		// No WriteTimeout: websocket streams are long-lived. They end when
		// ctx does, through the request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
