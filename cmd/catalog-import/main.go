// Command catalog-import validates a catalog file and upserts its theaters
// into MongoDB, where the api can load them with --catalog-source=mongo.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/robertarktes/cinema-seat-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-seat-booking/internal/catalog"
	"github.com/robertarktes/cinema-seat-booking/internal/config"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	flags := pflag.NewFlagSet("catalog-import", pflag.ExitOnError)
	mongoURI := flags.String("mongo-uri", cfg.MongoURI, "MongoDB connection string")
	dbName := flags.String("db", cfg.MongoDB, "MongoDB database")
	dryRun := flags.Bool("dry-run", false, "validate the file without writing")
	timeout := flags.Duration("timeout", 30*time.Second, "time limit for the import")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: catalog-import [flags] <catalog file>\n")
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])
	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(2)
	}
	path := flags.Arg(0)

	logger := observability.NewLogger(cfg.LogLevel)

	def, err := catalog.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read catalog: %v", err)
	}
	c, err := catalog.Build(def)
	if err != nil {
		log.Fatalf("invalid catalog: %v", err)
	}
	logger.WithField("theaters", len(c.Theaters)).WithField("movies", c.AllPlayingMovies()).Info("catalog is valid")
	if *dryRun {
		return
	}
	if *mongoURI == "" {
		log.Fatal("no MongoDB URI: set MONGO_URI or --mongo-uri")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer client.Disconnect(context.Background())

	repo := mongoadapter.NewCatalogRepository(client.Database(*dbName), logger)
	if err := repo.SaveDefinition(ctx, def); err != nil {
		log.Fatalf("failed to import catalog: %v", err)
	}
	logger.WithField("db", *dbName).Info("catalog imported")
}
