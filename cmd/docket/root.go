package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xraph/grove"

	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/observability"
	"github.com/xraph/docket/queue"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/store/memory"
	mongostore "github.com/xraph/docket/store/mongo"
	pgstore "github.com/xraph/docket/store/postgres"
	redisstore "github.com/xraph/docket/store/redis"
)

// app carries global flags and the lazily opened backend. The memory
// backend lives as long as the app, so several commands executed on one
// app share it.
type app struct {
	backend    string
	uri        string
	database   string
	collection string
	queueName  string
	codec      string
	logLevel   string

	logger     *slog.Logger
	store      store.Store
	extensions *ext.Registry
}

func newApp() *app {
	return &app{}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docket",
		Short:         "Operate docket job queues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.backend, "backend", envOr("DOCKET_BACKEND", "mongo"), "storage backend: mongo, redis, postgres or memory")
	f.StringVar(&a.uri, "uri", envOr("DOCKET_URI", ""), "backend connection string")
	f.StringVar(&a.database, "database", envOr("DOCKET_DATABASE", "docket"), "mongo database name")
	f.StringVar(&a.collection, "collection", envOr("DOCKET_COLLECTION", mongostore.DefaultCollection), "mongo collection name")
	f.StringVar(&a.queueName, "queue", envOr("DOCKET_QUEUE", "default"), "queue name")
	f.StringVar(&a.codec, "codec", envOr("DOCKET_CODEC", redisstore.CodecNameMsgpack), "redis document codec: msgpack or json")
	f.StringVar(&a.logLevel, "log-level", envOr("DOCKET_LOG_LEVEL", "info"), "log level: debug, info, warn or error")

	root.AddCommand(
		a.createCmd(),
		a.addCmd(),
		a.statusCmd(),
		a.getCmd(),
		a.listCmd(),
		a.countCmd(),
		a.purgeCmd(),
		a.removeCmd(),
		a.statsCmd(),
		a.stalledCmd(),
		a.workCmd(),
		a.scheduleCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	a.store = s

	a.extensions = ext.NewRegistry(a.logger)
	a.extensions.Register(observability.NewMetricsExtension())
	return nil
}

// close releases the backend. The memory store survives so tests can
// inspect it between commands.
func (a *app) close() error {
	if a.store == nil || a.backend == "memory" {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) queue() *queue.Queue {
	return queue.New(a.queueName, a.store,
		queue.WithLogger(a.logger),
		queue.WithExtensions(a.extensions),
	)
}

func openStore(ctx context.Context, a *app) (store.Store, error) {
	switch strings.ToLower(a.backend) {
	case "memory":
		return memory.New(), nil

	case "mongo", "mongodb":
		dsn, err := mongoDSN(a.uri, a.database)
		if err != nil {
			return nil, err
		}
		db, err := grove.Open(ctx, "mongo", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		s := mongostore.New(db,
			mongostore.WithCollection(a.collection),
			mongostore.WithLogger(a.logger),
		)
		return &ownedStore{Store: s, release: db.Close}, nil

	case "redis":
		uri := a.uri
		if uri == "" {
			uri = "redis://localhost:6379/0"
		}
		opts, err := goredis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		client := goredis.NewClient(opts)
		s := redisstore.New(client,
			redisstore.WithCodec(redisstore.GetCodec(a.codec)),
			redisstore.WithLogger(a.logger),
		)
		return &ownedStore{Store: s, release: client.Close}, nil

	case "postgres", "postgresql":
		if a.uri == "" {
			return nil, errors.New("--uri is required for the postgres backend")
		}
		s, err := pgstore.New(ctx, a.uri, pgstore.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", a.backend)
	}
}

// mongoDSN fills in the database path of uri when it has none, so
// --database applies to a bare mongodb://host URI.
func mongoDSN(uri, database string) (string, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongo uri: %w", err)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = "/" + database
	}
	return u.String(), nil
}

// ownedStore closes the client the CLI created alongside the store.
type ownedStore struct {
	store.Store
	release func() error
}

func (s *ownedStore) Close() error {
	return errors.Join(s.Store.Close(), s.release())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
