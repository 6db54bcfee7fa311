package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/gyre/internal/app"
	"github.com/ayusman/gyre/internal/config"
	"github.com/ayusman/gyre/internal/display"
	"github.com/ayusman/gyre/internal/hook"
	"github.com/ayusman/gyre/internal/logger"
	"github.com/ayusman/gyre/internal/metrics"
	"github.com/ayusman/gyre/internal/server"
	"github.com/ayusman/gyre/internal/store"
	"github.com/ayusman/gyre/internal/tray"
)

const (
	shutdownTimeout = 10 * time.Second
	hookTimeout     = 5 * time.Second
	hookQueue       = 64
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gyre failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	met := metrics.New()

	hooks := hook.NewManager(cfg.PluginDir, log)
	if err := hooks.Discover(); err != nil {
		log.Warn("hook discovery failed", "dir", cfg.PluginDir, "error", err)
	}
	dispatcher := hook.NewDispatcher(hooks, hook.NewExecutor(hookTimeout), hookQueue, log)

	engine, err := app.New(app.Options{
		Config:  cfg,
		Store:   st,
		Hooks:   dispatcher,
		Metrics: met,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	webDir := findWebDir(cfg.DataDir)
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}
	srv := server.New(server.Config{
		Store:     st,
		Engine:    engine,
		Hooks:     hooks,
		Metrics:   met,
		Logger:    log,
		StaticDir: webDir,
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("gyre starting",
		"addr", cfg.HTTPAddr,
		"source", cfg.VisionSource,
		"canvas", []int{cfg.CanvasWidth, cfg.CanvasHeight},
		"headless", cfg.Headless,
		"hooks", len(hooks.List()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var t *tray.Tray
	if cfg.Headless && cfg.Tray {
		t = tray.New(engine.Enabled())
		t.OnToggle(engine.SetEnabled)
		t.OnOpen(func() { openBrowser(panelURL(cfg.HTTPAddr), log) })
		t.OnQuit(stop)
		engine.OnEvent = t.SetLastEvent
	}

	engine.Start(ctx)

	var runErr error
	if cfg.Headless {
		runErr = runHeadless(ctx, stop, engine, t)
	} else {
		win := display.New(engine, display.Config{FPS: cfg.DisplayFPS}, log)
		runErr = win.Run(ctx)
	}
	stop()

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	srv.Close()

	if err := engine.Close(); err != nil {
		log.Error("engine close error", "error", err)
	}

	log.Info("gyre stopped")
	return runErr
}

// runHeadless ticks the engine from a timer. A non-nil tray owns the main
// goroutine until quit.
func runHeadless(ctx context.Context, stop context.CancelFunc, engine *app.Engine, t *tray.Tray) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(ctx)
	}()

	if t != nil {
		go trackStatus(ctx, t, engine)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	err := <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// trackStatus mirrors the engine status line into the tray.
func trackStatus(ctx context.Context, t *tray.Tray, engine *app.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s := engine.State().Status; s != last && s != "" {
			t.SetStatus(s)
			last = s
		}
	}
}

func panelURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func openBrowser(url string, log *slog.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("open browser failed", "url", url, "error", err)
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the control panel in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
