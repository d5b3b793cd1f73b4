package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	mongoadapter "github.com/robertarktes/cinema-seat-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-seat-booking/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/cinema-seat-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-seat-booking/internal/catalog"
	"github.com/robertarktes/cinema-seat-booking/internal/config"
	"github.com/robertarktes/cinema-seat-booking/internal/domain"
	httphandler "github.com/robertarktes/cinema-seat-booking/internal/http"
	"github.com/robertarktes/cinema-seat-booking/internal/idempotency"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
	"github.com/robertarktes/cinema-seat-booking/internal/outbox"
	"github.com/robertarktes/cinema-seat-booking/internal/server"
)

const eventBuffer = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	flags := pflag.NewFlagSet("cinema-api", pflag.ExitOnError)
	catalogPath := flags.StringP("catalog", "c", "", "catalog file (json, jsonc or yaml)")
	catalogSource := flags.String("catalog-source", "file", "where to load the catalog from: file or mongo")
	listenAddr := flags.StringP("listen", "l", cfg.ListenAddr, "address to accept booking connections on")
	flags.Parse(os.Args[1:])
	if *catalogPath == "" && flags.NArg() > 0 {
		*catalogPath = flags.Arg(0)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics()

	var mongoDB *mongo.Database
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoDB = mongoClient.Database(cfg.MongoDB)
	}

	cat, err := loadCatalog(*catalogSource, *catalogPath, mongoDB, logger)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	logger.WithField("movies", cat.AllPlayingMovies()).WithField("theaters", len(cat.Theaters)).Info("catalog loaded")

	store := idempotency.Store(idempotency.NewMemoryStore())
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisIdemp := redisadapter.NewIdempotency(redisClient)
		if err := redisIdemp.Ping(context.Background()); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		store = redisIdemp
	}
	idemp := idempotency.NewIdempotency(store, cfg.IdempotencyTTL)

	var sinks []outbox.Sink
	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		defer rabbitPub.Close()
		sinks = append(sinks, rabbitPub)
	}
	if mongoDB != nil {
		sinks = append(sinks, mongoadapter.NewAuditLogger(mongoDB, logger))
	}
	events := outbox.NewPublisher(sinks, logger, eventBuffer)

	handlers := httphandler.NewHandlers(cat, idemp, events)
	r := httphandler.SetupRouter(handlers, logger)

	srv := server.New(server.Config{
		Workers:        cfg.Workers,
		IdleTimeout:    cfg.IdleTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, httphandler.NewDispatcher(r), logger)

	admin := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: httphandler.SetupAdminRouter(handlers),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Events outlive the listeners so bookings made while draining still
	// get published.
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	eventsDone := make(chan struct{})
	go func() {
		events.Run(eventsCtx, cfg.ShutdownTimeout)
		close(eventsDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", *listenAddr).WithField("workers", cfg.Workers).Info("booking server listening")
		if err := srv.ListenAndServe(*listenAddr); !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.AdminAddr).Info("admin server listening")
		if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "admin server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if adminErr := admin.Shutdown(shutdownCtx); adminErr != nil {
			err = errors.CombineErrors(err, adminErr)
		}
		return err
	})

	err = g.Wait()
	stopEvents()
	<-eventsDone
	if err != nil {
		logger.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	logger.Info("Server exiting")
}

func loadCatalog(source, path string, db *mongo.Database, logger observability.Logger) (*domain.Catalog, error) {
	switch source {
	case "file":
		if path == "" {
			return nil, errors.New("no catalog file given")
		}
		logger.WithField("path", path).Info("loading catalog file")
		return catalog.Load(path)
	case "mongo":
		if db == nil {
			return nil, errors.New("catalog source mongo needs MONGO_URI")
		}
		def, err := mongoadapter.NewCatalogRepository(db, logger).LoadDefinition(context.Background())
		if err != nil {
			return nil, err
		}
		return catalog.Build(def)
	default:
		return nil, errors.Newf("unknown catalog source %q", source)
	}
}
