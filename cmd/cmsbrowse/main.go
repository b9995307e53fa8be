// cmsbrowse opens one asset browser modal in the terminal and prints the
// submitted selection as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cms-browser/internal/browse"
	"cms-browser/internal/config"
	"cms-browser/internal/connector"
	"cms-browser/internal/infra/logx"
	"cms-browser/internal/metrics"
	"cms-browser/internal/provider"
	connprovider "cms-browser/internal/provider/connector"
	"cms-browser/internal/provider/s3store"
	"cms-browser/internal/store"
	"cms-browser/internal/ui"
)

var errCancelled = errors.New("cancelled")

func main() {
	modalName := flag.String("modal", browse.AttachmentModal.Name, "modal to open: "+strings.Join(modalNames(), ", "))
	contextID := flag.String("context", "", "browse context document id")
	selectedID := flag.String("selected", "", "id of the initially selected item")
	providerName := flag.String("provider", "", "data provider name, overrides the modal default")
	configPath := flag.String("config", config.DefaultPath(), "path of the KEY=VALUE config file")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	verbose := flag.Bool("verbose", false, "do not truncate long log lines")
	flag.Parse()
	logx.SetVerbose(*verbose)

	// Enable debug logging when DEBUG environment variable is set
	if len(os.Getenv("DEBUG")) > 0 {
		f, err := tea.LogToFile("debug.log", "debug")
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		defer f.Close()
		// route bubbletea's own log lines through the JSON logger
		log.SetOutput(logx.StdlogWriter(logx.LevelDebug, f))
		logx.SetOutput(f)
		logx.SetMinLevel(logx.LevelDebug)
	}

	err := run(*configPath, *modalName, *providerName, *contextID, *selectedID, *metricsAddr)
	if errors.Is(err, errCancelled) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func modalNames() []string {
	names := make([]string, 0, len(browse.Modals))
	for n := range browse.Modals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func run(configPath, modalName, providerName, contextID, selectedID, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if os.Getenv("DEBUG") == "" {
		logx.SetMinLevel(logx.ParseLevel(cfg.LogLevel))
	}
	logx.RegisterSecrets([]string{cfg.Token, cfg.S3AccessKey, cfg.S3SecretKey})

	modal, ok := browse.Modals[modalName]
	if !ok {
		return fmt.Errorf("unknown modal %q (want one of %s)", modalName, strings.Join(modalNames(), ", "))
	}

	st, closeStore := openStore(cfg.StatePath)
	defer closeStore()

	promReg := prometheus.NewRegistry()
	rec := metrics.New(promReg)

	reg, err := buildRegistry(context.Background(), cfg, st, promReg)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logx.Errorw("metrics server stopped", zap.Error(err))
			}
		}()
	}

	coord, initial, err := browse.Open(reg, modal, browse.OpenOptions{
		BrowseContextID: contextID,
		SelectedID:      selectedID,
		ProviderName:    providerName,
		Metrics:         rec,
	})
	if err != nil {
		return err
	}

	final, runErr := tea.NewProgram(
		ui.New(coord, modal.Name, initial),
		tea.WithAltScreen(),
	).Run()
	if err := coord.Teardown(); err != nil {
		logx.Warnw("teardown", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	m, ok := final.(ui.Model)
	if !ok {
		return errCancelled
	}
	data, ok := m.Submitted()
	if !ok {
		return errCancelled
	}
	return json.NewEncoder(os.Stdout).Encode(data)
}

// openStore opens the sqlite state database, falling back to memory when
// it cannot be opened.
func openStore(path string) (store.Store, func()) {
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return store.NewMemory(), func() {}
		}
		path = filepath.Join(dir, "cmsbrowse", "state.db")
	}
	db, err := store.OpenSQLite(path)
	if err != nil {
		logx.Warnw("last opened state kept in memory", zap.String("path", path), zap.Error(err))
		return store.NewMemory(), func() {}
	}
	return db, func() { _ = db.Close() }
}

func buildRegistry(ctx context.Context, cfg config.Config, st store.Store, promReg prometheus.Registerer) (*provider.Registry, error) {
	configs, err := provider.LoadConfigs(cfg.ProvidersPath)
	if err != nil {
		return nil, err
	}
	reg := provider.NewRegistry()

	switch cfg.Backend {
	case config.BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required for the s3 backend")
		}
		client, err := s3store.NewClient(ctx, s3store.ClientConfig{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range configs {
			reg.Set(c.Name, s3store.New(client, cfg.S3Bucket, c, st))
		}
	case config.BackendConnector, "":
		if cfg.Endpoint == "" {
			return nil, errors.New("CMS_ENDPOINT is required for the connector backend")
		}
		client := connector.New(cfg.Endpoint, cfg.Token)
		if err := promReg.Register(client.Metrics()); err != nil {
			return nil, fmt.Errorf("register connector metrics: %w", err)
		}
		for _, c := range configs {
			reg.Set(c.Name, connprovider.New(client, c, st))
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	logx.Debugw("registry ready", zap.String("backend", cfg.Backend), zap.Strings("providers", reg.Names()))
	return reg, nil
}
