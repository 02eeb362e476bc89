package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/provision/pkg/catalog"
	"github.com/openfroyo/provision/pkg/config"
	"github.com/openfroyo/provision/pkg/policy"
	"github.com/openfroyo/provision/pkg/runtime"
	"github.com/openfroyo/provision/pkg/scanner"
	"github.com/openfroyo/provision/pkg/stores"
	"github.com/openfroyo/provision/pkg/telemetry"
	"github.com/openfroyo/provision/pkg/transports/fetch"
)

// app holds the components a command needs. Build it with newApp and
// release it with Close.
type app struct {
	opts       *globalOptions
	cfg        *config.Config
	logger     zerolog.Logger
	telemetry  *telemetry.Telemetry
	fetcher    *fetch.Mux
	dispatcher *scanner.Dispatcher

	store   stores.Store
	metrics *http.Server
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	tel, err := newTelemetry(opts)
	if err != nil {
		return nil, err
	}

	a := &app{
		opts:      opts,
		cfg:       cfg,
		logger:    log.Logger,
		telemetry: tel,
		fetcher:   fetch.NewDefault(cfg.FetchOptions(), log.Logger),
	}

	a.dispatcher, err = scanner.NewDefaultDispatcher(scanner.Dependencies{
		Fetcher:   a.fetcher,
		Lister:    a.fetcher,
		Catalogs:  catalog.NewLoader(a.fetcher, a.logger),
		Validator: catalog.LDAPFilterValidator{},
		OBR:       cfg.OBRConfig(),
	}, a.logger, tel)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.dispatcher.SetDefaults(cfg.EngineDefaults())
	a.dispatcher.SetProperties(cfg.Properties)

	if srv := tel.Metrics.NewMetricsServer(); srv != nil {
		a.metrics = srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		a.logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
	}

	return a, nil
}

func newTelemetry(opts *globalOptions) (*telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	if opts.verbose {
		tcfg.Logging.Level = "debug"
	}
	tcfg.Metrics.Enabled = opts.metricsAddr != ""
	tcfg.Metrics.ListenAddress = opts.metricsAddr

	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	tel.Logger = telemetry.NewLoggerFrom(log.Logger)
	return tel, nil
}

// openStore opens and migrates the configured store and starts recording
// events into it.
func (a *app) openStore(ctx context.Context) (stores.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := stores.NewSQLiteStore(stores.Config{Path: a.cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	stores.NewEventRecorder(s, a.logger).Attach(a.telemetry.EventsOrNil(), nil)
	a.store = s
	return s, nil
}

// newRuntime returns the local runtime over the opened store.
func (a *app) newRuntime(ctx context.Context) (*runtime.Local, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt := runtime.NewLocal(s, a.fetcher, a.logger)
	rt.SetDefaults(a.cfg.EngineDefaults())
	return rt, nil
}

// newGate builds the admission gate from the built-in and configured policies.
func (a *app) newGate(ctx context.Context) (*policy.Gate, error) {
	eng, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	if len(a.cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return policy.NewGate(eng, a.logger, a.telemetry), nil
}

func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close resolvers")
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.fetcher.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
