/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/quizbox/quiz"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "kMGTPE"[exp])
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("quizbox v" + releaseVersion + "\n"))
		if err != nil {
			reportError(errs, err)
			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

type healthBody struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func serveHealthCheck(cfg *Config, st *quiz.Store, started time.Time, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, err := writeJSON(cfg, w, http.StatusOK, healthBody{
			Status:   "ok",
			Sessions: st.Len(),
			Uptime:   time.Since(started).Round(time.Second).String(),
		})
		if err != nil {
			reportError(errs, err)
		}
	}
}

func servePing(cfg *Config, st *quiz.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, err := writeJSON(cfg, w, http.StatusOK, map[string]int64{
			"pong": st.Clock().Now().UnixMilli(),
		})
		if err != nil {
			reportError(errs, err)
		}
	}
}

func serveSessions(cfg *Config, st *quiz.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		sessions := st.Sessions()
		out := make([]quiz.Summary, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, s.Summary())
		}

		written, err := writeJSON(cfg, w, http.StatusOK, out)
		if err != nil {
			reportError(errs, err)
			return
		}

		logf(cfg, "SERVE: Session list (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler(http.MethodGet, cfg.prefix+"/pprof/"+name, pprof.Handler(name))
	}
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/trace", pprof.Trace)
}

// reportError hands err to the drain goroutine without ever blocking a
// handler; errors beyond the buffer are dropped.
func reportError(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

type infoBody struct {
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
	Sessions  int               `json:"sessions"`
	Timestamp time.Time         `json:"timestamp"`
}

func serveInfo(cfg *Config, st *quiz.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, err := writeJSON(cfg, w, http.StatusOK, infoBody{
			Name:    "quizbox",
			Status:  "running",
			Version: releaseVersion,
			Endpoints: map[string]string{
				"health":  cfg.prefix + "/healthz",
				"ping":    cfg.prefix + "/ping",
				"version": cfg.prefix + "/version",
				"ws":      cfg.prefix + "/ws",
			},
			Sessions:  st.Len(),
			Timestamp: st.Clock().Now().UTC(),
		})
		if err != nil {
			reportError(errs, err)
		}
	}
}

func newCORS(cfg *Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: cfg.corsOrigins,
		AllowedHeaders: []string{"*"},
	})
}

func newRouter(cfg *Config, st *quiz.Store, gw *Gateway, origins *cors.Cors, errs chan<- error) http.Handler {
	mux := httprouter.New()
	mux.PanicHandler = serverError(cfg)

	started := time.Now()

	mux.GET(cfg.prefix+"/", serveInfo(cfg, st, errs))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, st, started, errs))
	mux.GET(cfg.prefix+"/ping", servePing(cfg, st, errs))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))
	mux.GET(cfg.prefix+"/ws", gw.serveWS())
	mux.GET(cfg.prefix+"/sessions/:code/qr", serveQR(cfg, st, errs))

	if cfg.listSessions {
		mux.GET(cfg.prefix+"/sessions", serveSessions(cfg, st, errs))
	}

	if cfg.metrics {
		mux.Handler(http.MethodGet, cfg.prefix+"/metrics", promhttp.Handler())
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return origins.Handler(mux)
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log.Info().Str("version", releaseVersion).Msg("starting quizbox")

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	origins := newCORS(cfg)

	gw := newGateway(cfg, origins, log.With().Str("component", "gateway").Logger())

	var broadcaster quiz.Broadcaster = gw
	if cfg.natsURL != "" {
		nc, err := connectNATS(cfg.natsURL, log.With().Str("component", "nats").Logger())
		if err != nil {
			return err
		}
		defer nc.Close()

		broadcaster = newMirror(gw, nc, cfg.natsSubject, log.With().Str("component", "mirror").Logger())

		log.Info().Str("url", nc.ConnectedUrl()).Str("subject", cfg.natsSubject).Msg("mirroring session events to NATS")
	}

	st := quiz.NewStore(broadcaster, quiz.Options{
		Logger:        log.With().Str("component", "quiz").Logger(),
		Codes:         quiz.NewCodeGenerator(cfg.codeLength),
		RevealDelay:   cfg.revealDelay,
		DeadlineGrace: cfg.deadlineGrace,
		MaxNameLength: cfg.maxNameLength,
	})
	gw.store = st

	reaper := quiz.NewReaper(st, cfg.reapInterval, cfg.reapInterval, log.With().Str("component", "reaper").Logger())
	go reaper.Run(ctx)

	errs := make(chan error, 64)
	drained := make(chan struct{})
	defer close(drained)
	go func() {
		for {
			select {
			case <-drained:
				return
			case err := <-errs:
				log.Debug().Err(err).Msg("write response")
			}
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, st, gw, origins, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go func() {
		var err error

		log.Info().Msgf("listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()

	log.Info().Int("sessions", st.Len()).Msg("shutting down")

	st.Shutdown()
	gw.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
