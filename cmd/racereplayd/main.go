// Command racereplayd serves cached race sessions over websocket
// connections, pacing frames to connected clients per the dispatcher's
// 60Hz tick (internal/dispatch).
//
// Usage:
//
//	go run ./cmd/racereplayd [flags]
//
// Flags:
//
//	-config   Path to a JSON ServerConfig file (optional; defaults apply)
//	-fixtures Path to a JSON fixture file feeding the synthetic fetcher
//	-listen   Override the configured listen address
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/raceplay.report/internal/cache"
	"github.com/banshee-data/raceplay.report/internal/config"
	"github.com/banshee-data/raceplay.report/internal/debugviz"
	"github.com/banshee-data/raceplay.report/internal/dispatch"
	"github.com/banshee-data/raceplay.report/internal/framebuilder"
	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
	"github.com/banshee-data/raceplay.report/internal/version"
)

var log = obslog.For(obslog.ComponentServer)

var (
	configPath   = flag.String("config", "", "Path to a JSON ServerConfig file")
	fixturesPath = flag.String("fixtures", "", "Path to a JSON fixture file for the synthetic fetcher (required: no production upstream adapter ships in this module, see internal/adapter)")
	listenAddr   = flag.String("listen", "", "Override the configured listen address")
)

func main() {
	flag.Parse()

	log.Info().Str("version", version.Version).Str("git_sha", version.GitSHA).Str("built", version.BuildTime).Msg("racereplayd starting")

	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	if *fixturesPath == "" {
		log.Fatal().Msg("-fixtures is required: this server has no production timing-feed adapter, only the fixture-backed synthetic one (see internal/adapter doc comment)")
	}
	fetcher, err := loadFixtureFetcher(*fixturesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *fixturesPath).Msg("failed to load fixtures")
	}

	c, err := cache.New(cfg.GetCacheDir())
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.GetCacheDir()).Msg("failed to open cache")
	}
	defer c.Close()

	opts := framebuilder.DefaultOptions()
	opts.GridStep = cfg.GetGridStepSeconds()
	opts.CoverageThreshold = cfg.GetCoverageThreshold()
	opts.HysteresisNormalSeconds = cfg.GetHysteresisNormalSeconds()
	opts.HysteresisCautionSeconds = cfg.GetHysteresisCautionSeconds()

	st := store.New(fetcher, c, opts)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", newWSHandler(st))
	mux.HandleFunc("/healthz", handleHealthz)

	if cfg.GetEnableDebugViz() {
		debugviz.New(st).Routes(mux)
		log.Info().Msg("debug visualisation routes enabled under /debug/session")
	}
	if cfg.GetEnableSQLConsole() {
		attachSQLConsole(mux, c)
	}

	srv := &http.Server{
		Addr:    cfg.GetListenAddr(),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.GetListenAddr()).Msg("starting websocket server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown timed out, forcing close")
		_ = srv.Close()
	}
	wg.Wait()
	log.Info().Msg("server stopped")
}

// newWSHandler upgrades a client connection and runs a dispatcher over it
// until the client disconnects or the dispatcher errors.
func newWSHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := keyFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket accept failed")
			return
		}
		defer c.CloseNow()

		connID := uuid.NewString()
		log.Info().Str("conn", connID).Str("session", key.String()).Msg("client connected")

		d := dispatch.New(c, st, key)
		if err := d.Run(r.Context()); err != nil {
			log.Debug().Err(err).Str("conn", connID).Str("session", key.String()).Msg("dispatcher exited")
			return
		}
		_ = c.Close(websocket.StatusNormalClosure, "session ended")
	}
}

func keyFromRequest(r *http.Request) (session.Key, error) {
	q := r.URL.Query()
	var year, round int
	if _, err := fmt.Sscanf(q.Get("year"), "%d", &year); err != nil {
		return session.Key{}, fmt.Errorf("missing or invalid year query parameter")
	}
	if _, err := fmt.Sscanf(q.Get("round"), "%d", &round); err != nil {
		return session.Key{}, fmt.Errorf("missing or invalid round query parameter")
	}
	sessionType := session.Type(q.Get("session_type"))
	if !sessionType.Valid() {
		return session.Key{}, fmt.Errorf("missing or unrecognised session_type query parameter %q", sessionType)
	}
	return session.Key{Year: year, Round: round, SessionType: sessionType}, nil
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "ok version=%s git_sha=%s\n", version.Version, version.GitSHA)
}

// attachSQLConsole mounts a read-only tailsql console over the cache
// index, grounded on the teacher's internal/db.AttachAdminRoutes.
func attachSQLConsole(mux *http.ServeMux, c *cache.Cache) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create tailsql server; SQL console disabled")
		return
	}
	tsql.SetDB("sqlite://cache-index", c.DB(), &tailsql.DBOptions{
		Label: "Session Cache Index",
	})
	debug.Handle("tailsql/", "SQL console over the session cache index", tsql.NewMux())
	log.Info().Msg("SQL console enabled under /debug/tailsql/")
}
