package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aaronromeo/mailherald/handlers"
	"github.com/aaronromeo/mailherald/internal/chat"
	"github.com/aaronromeo/mailherald/internal/chat/discord"
	"github.com/aaronromeo/mailherald/internal/classify"
	"github.com/aaronromeo/mailherald/internal/config"
	"github.com/aaronromeo/mailherald/internal/poller"
	"github.com/aaronromeo/mailherald/internal/relay"
	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/internal/source/gmailsource"
	"github.com/aaronromeo/mailherald/internal/source/imapsource"
	"github.com/aaronromeo/mailherald/internal/storage"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
)

var tracer = otel.Tracer("mailherald")

const (
	sourceIMAP  = "imap"
	sourceGmail = "gmail"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %s", err)
	}

	app := &cli.App{
		Name:  "mailherald",
		Usage: "relay mailbox events into chat channels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "mailherald.yaml",
				Usage:   "path to the YAML configuration file",
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "enable the OpenTelemetry pipeline",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll all sources on their timers until interrupted",
				Action: runAction(false),
			},
			{
				Name:   "serve",
				Usage:  "run the pollers and the HTTP status surface",
				Action: runAction(true),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address, overrides listen_addr from config",
					},
				},
			},
			{
				Name:  "poll",
				Usage: "run a single poll cycle and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "poll only this source (imap or gmail)",
					},
				},
				Action: pollAction,
			},
			{
				Name:   "state",
				Usage:  "print the persisted session document",
				Action: stateAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runtime bundles everything a command needs once assembly is done.
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	state      *session.State
	store      *session.Store
	poller     *poller.Poller
	dispatcher *chat.Dispatcher
}

func setup(c *cli.Context) (*runtime, func(context.Context) error, error) {
	ctx := c.Context
	shutdown := func(context.Context) error { return nil }

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if c.Bool("otel") {
		otelShutdown, err := utils.SetupOTelSDK(ctx)
		if err != nil {
			return nil, shutdown, err
		}
		shutdown = otelShutdown
		logger = otelslog.NewLogger(base.UPTRACE_SERVICE)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, shutdown, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, shutdown, err
	}

	state := session.New(sessionOptions(cfg)...)

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, shutdown, err
	}
	if err := store.Load(ctx, state); err != nil {
		return nil, shutdown, err
	}

	discordEnv, err := config.DiscordEnvFromEnv()
	if err != nil {
		return nil, shutdown, err
	}
	chatClient, err := discord.New(discordEnv.Token, discord.WithBotUser(discordEnv.UserID))
	if err != nil {
		return nil, shutdown, err
	}

	rly, err := relay.New(
		relay.WithChatClient(chatClient),
		relay.WithState(state),
		relay.WithLogger(logger),
		relay.WithVenueLink(cfg.VenueLink),
	)
	if err != nil {
		return nil, shutdown, err
	}

	classifier, err := classify.New(classify.Config{
		BookingSender:   cfg.Patterns.BookingSender,
		CancelSubject:   cfg.Patterns.CancelSubject,
		BookedSubject:   cfg.Patterns.BookedSubject,
		CancelBodyRegex: cfg.Patterns.CancelBodyRegex,
		BookedBodyRegex: cfg.Patterns.BookedBodyRegex,
	})
	if err != nil {
		return nil, shutdown, err
	}

	p, err := newPoller(cfg, classifier, rly, state, store, logger)
	if err != nil {
		return nil, shutdown, err
	}

	if err := registerSources(p, logger); err != nil {
		return nil, shutdown, err
	}

	dispatcher, err := chat.NewDispatcher(
		chat.WithState(state),
		chat.WithStore(store),
		chat.WithPoller(p),
		chat.WithChatClient(chatClient),
		chat.WithLogger(logger),
	)
	if err != nil {
		return nil, shutdown, err
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		state:      state,
		store:      store,
		poller:     p,
		dispatcher: dispatcher,
	}, shutdown, nil
}

func sessionOptions(cfg config.Config) []session.Option {
	lookback, err := config.Duration(cfg.Lookback, session.DefaultLookback)
	if err != nil {
		lookback = session.DefaultLookback
	}
	return []session.Option{session.WithLookback(lookback)}
}

func newStore(cfg config.Config, logger *slog.Logger) (*session.Store, error) {
	var backend base.Storage
	switch cfg.State.Backend {
	case "s3":
		accessKey, secretKey := config.S3CredentialsFromEnv()
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.State.S3.Endpoint,
			Region:    cfg.State.S3.Region,
			Bucket:    cfg.State.S3.Bucket,
			Key:       cfg.State.S3.Key,
			AccessKey: accessKey,
			SecretKey: secretKey,
		})
		if err != nil {
			return nil, err
		}
		backend = s3Store
	default:
		fileStore, err := storage.NewFileStore(cfg.State.Path, utils.OSFileManager{})
		if err != nil {
			return nil, err
		}
		backend = fileStore
	}

	return session.NewStore(
		session.WithStorage(backend),
		session.WithLogger(logger),
	)
}

func newPoller(cfg config.Config, classifier *classify.Classifier, rly *relay.Relay, state *session.State, store *session.Store, logger *slog.Logger) (*poller.Poller, error) {
	interval, err := config.Duration(cfg.PollInterval, poller.DefaultInterval)
	if err != nil {
		return nil, err
	}
	refresh, err := config.Duration(cfg.RefreshInterval, poller.DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}

	return poller.New(
		poller.WithClassifier(classifier),
		poller.WithRelay(rly),
		poller.WithState(state),
		poller.WithStore(store),
		poller.WithLogger(logger),
		poller.WithInterval(interval),
		poller.WithRefreshInterval(refresh),
	)
}

func registerSources(p *poller.Poller, logger *slog.Logger) error {
	imapEnv, err := config.IMAPEnvFromEnv()
	if err != nil {
		return err
	}
	imapSrc, err := imapsource.New(
		imapsource.WithName(sourceIMAP),
		imapsource.WithTLSConfig(fmt.Sprintf("%s:%d", imapEnv.Host, imapEnv.Port), &tls.Config{MinVersion: tls.VersionTLS12}),
		imapsource.WithAuth(imapEnv.User, imapEnv.Pass),
		imapsource.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	p.RegisterSource(imapSrc)

	gmailToken, err := config.GmailTokenFromEnv()
	if err != nil {
		return err
	}
	gmailSrc, err := gmailsource.New(
		gmailsource.WithName(sourceGmail),
		gmailsource.WithTokenFunc(func(context.Context) (string, error) {
			return gmailToken, nil
		}),
		gmailsource.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	p.RegisterSource(gmailSrc)

	return nil
}

func runAction(serve bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, shutdown, err := setup(c)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				rt.logger.Error("OTel shutdown failed", slog.Any("error", err))
			}
		}()

		rt.poller.Start(ctx)
		defer rt.poller.Stop()

		if serve {
			addr := c.String("listen")
			if addr == "" {
				addr = rt.cfg.ListenAddr
			}
			if addr == "" {
				addr = ":8080"
			}
			app := handlers.NewApp(rt.poller, rt.state, rt.dispatcher)
			go func() {
				if err := app.Listen(addr); err != nil {
					rt.logger.Error("HTTP server stopped", slog.Any("error", err))
				}
			}()
			defer app.Shutdown() //nolint:errcheck
			rt.logger.InfoContext(ctx, "Status surface listening", slog.String("addr", addr))
		}

		rt.logger.InfoContext(ctx, "Watching the mailbox")
		<-ctx.Done()
		rt.logger.Info("Shutting down")
		return nil
	}
}

func pollAction(c *cli.Context) error {
	rt, shutdown, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			rt.logger.Error("OTel shutdown failed", slog.Any("error", err))
		}
	}()

	ctx, span := tracer.Start(c.Context, "poll")
	defer span.End()

	sources := []string{sourceIMAP, sourceGmail}
	if name := c.String("source"); name != "" {
		sources = []string{name}
	}
	span.SetAttributes(attribute.Int("sources.count", len(sources)))

	for _, name := range sources {
		if err := rt.poller.RunOnce(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func stateAction(c *cli.Context) error {
	rt, shutdown, err := setup(c)
	if err != nil {
		return err
	}
	defer shutdown(context.Background()) //nolint:errcheck

	encoded, err := rt.state.Serialize()
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
