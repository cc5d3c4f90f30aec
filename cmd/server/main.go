// Command server runs the WalletFit web front-end.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/app"
	"github.com/AneeshNi47/walletfit-ui/internal/config"
	"github.com/AneeshNi47/walletfit-ui/internal/handlers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the WalletFit web front-end",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	// The stored session is resolved before the listener opens, so guards
	// never see an unknown state.
	a, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	defer a.Close()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = a.Registry
	}
	h := handlers.NewHandlers(a, cfg.Server.Templates)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           securityHeaders(cfg.Server.Secure, protect(allowedHosts(cfg.Server), setupRouter(h, cfg.Server.Static, reg))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "api", cfg.API.BaseURL, "session", a.Session.State().String())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// setupRouter mounts every page. reg may be nil, which leaves /metrics unmounted.
func setupRouter(h *handlers.Handlers, staticDir string, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	public := func(fn http.HandlerFunc) http.Handler { return h.PublicOnly(fn) }
	mux.Handle("GET /{$}", public(h.Landing))
	mux.Handle("GET /login", public(h.LoginForm))
	mux.Handle("POST /login", public(h.Login))
	mux.Handle("GET /register", public(h.RegisterForm))
	mux.Handle("POST /register", public(h.Register))
	mux.HandleFunc("POST /logout", h.Logout)

	private := func(fn http.HandlerFunc) http.Handler { return h.RequireSession(fn) }
	mux.Handle("GET /dashboard", private(h.Dashboard))
	mux.Handle("GET /accounts", private(h.ListAccounts))
	mux.Handle("POST /accounts", private(h.CreateAccount))
	mux.Handle("GET /accounts/{id}/activity", private(h.AccountActivity))
	mux.Handle("GET /transactions", private(h.ListTransactions))
	mux.Handle("POST /transactions", private(h.CreateTransaction))
	mux.Handle("POST /categories", private(h.CreateCategory))
	mux.Handle("GET /transfers/new", private(h.TransferForm))
	mux.Handle("POST /transfers", private(h.Transfer))
	mux.Handle("GET /topups/new", private(h.TopUpForm))
	mux.Handle("POST /topups", private(h.TopUp))
	mux.Handle("GET /household", private(h.Household))
	mux.Handle("POST /household", private(h.CreateHousehold))
	mux.Handle("GET /reports", private(h.Reports))
	mux.Handle("POST /reports/saved", private(h.SaveReport))
	mux.Handle("POST /reports/saved/{id}/delete", private(h.DeleteSavedReport))
	mux.Handle("GET /reports/export/{format}", private(h.ExportReport))

	return h.Navigation(mux)
}

func securityHeaders(secure bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		if secure {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}

// allowedHosts lists the Host names the server answers to: loopback, the
// listen address host, and any configured extras.
func allowedHosts(cfg config.ServerConfig) []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if host, _, err := net.SplitHostPort(cfg.Addr); err == nil && host != "" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
			hosts = append(hosts, host)
		}
	}
	return append(hosts, cfg.Hosts...)
}

// protect rejects cross-origin unsafe requests and requests whose Host is not
// one of hosts. The Host check stops DNS rebinding, where a foreign name
// resolves to this server and the browser treats it as same-origin.
func protect(hosts []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(strings.Trim(h, "[]"))] = true
	}
	cop := http.NewCrossOriginProtection()
	guarded := cop.Handler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if !allowed[strings.ToLower(strings.Trim(host, "[]"))] {
			http.Error(w, "Unknown host", http.StatusMisdirectedRequest)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}
