package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
	webhttp "github.com/go-go-golems/opendocs/pkg/opendocs/http"
	"github.com/go-go-golems/opendocs/pkg/redisstream"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

type ServeSettings struct {
	Addr string `glazed:"addr"`
}

func NewServeCommand() (*ServeCommand, error) {
	appSection, err := NewAppSection()
	if err != nil {
		return nil, err
	}
	redisSection, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, err
	}
	return &ServeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"serve",
			cmds.WithShort("Serve the recent documents list and accept record events over HTTP"),
			cmds.WithFlags(
				fields.New(
					"addr",
					fields.TypeString,
					fields.WithDefault(configString("addr", ":8080")),
					fields.WithHelp("HTTP listen address"),
				),
			),
			cmds.WithSections(appSection, redisSection),
		),
	}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &ServeSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	appSettings, err := decodeAppSettings(parsedLayers)
	if err != nil {
		return err
	}
	redisSettings := redisstream.Settings{}
	if err := parsedLayers.DecodeSectionInto(redisstream.RedisSlug, &redisSettings); err != nil {
		return errors.Wrap(err, "init redis settings")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, appSettings, s.Addr, redisSettings)
}

var _ cmds.BareCommand = &ServeCommand{}

func newServeMux(a *app, updates opendocs.UpdateSignal) (*http.ServeMux, error) {
	enricher, err := a.enricher()
	if err != nil {
		return nil, errors.Wrap(err, "build enricher")
	}
	listener, err := opendocs.NewListener(a.repo,
		opendocs.WithLiveIDResolver(a.liveIDs()),
		opendocs.WithUpdateSignal(updates),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build listener")
	}

	mux := http.NewServeMux()
	webhttp.Mount(mux, webhttp.Handlers{
		List:     a.repo,
		Enricher: enricher,
		Observer: listener,
		Users:    webhttp.HeaderUser(a.settings.UserHeader),
		Logger:   log.Logger,
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux, nil
}

func serve(ctx context.Context, s AppSettings, addr string, redisSettings redisstream.Settings) error {
	a, err := openApp(s)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	bus, err := redisstream.BuildBus(redisSettings)
	if err != nil {
		return errors.Wrap(err, "build signal bus")
	}
	defer func() { _ = bus.Close() }()

	updates, err := redisstream.NewPublisherSignal(bus.Publisher, bus.Topic)
	if err != nil {
		return err
	}
	mux, err := newServeMux(a, updates)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		return nil
	})
	eg.Go(func() error {
		log.Info().
			Str("addr", addr).
			Str("session_dsn_scheme", dsnScheme(s.SessionDSN)).
			Bool("redis", redisSettings.Enabled).
			Msg("starting opendocs server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})
	return eg.Wait()
}

// dsnScheme keeps credentials out of the logs.
func dsnScheme(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme
	}
	return "sqlite"
}
