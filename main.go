package main

import (
	"context"
	"errors"
	"flag"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"forkChan/crud"
	"forkChan/database"
	"forkChan/database/memory"
	"forkChan/database/mongodb"
	"forkChan/domain"
	"forkChan/feed"
	"forkChan/http"
	"forkChan/monitoring"
	"forkChan/realtime"
)

// main is the app's entry point.
func main() {
	// Check if the flag "-prod" has been provided. It means that we're running in production.
	productionBool := flag.Bool("prod", false, "Provide this flag in production to ensure that a .config.json file is provided before the application starts.")
	resetBool := flag.Bool("reset", false, "Drop and recreate the documents table before starting (postgres store only).")
	flag.Parse()

	// Load configuration from a .config.json file if present, otherwise use the default dev setup.
	// If *productionBool evaluates to true, that means we're in production. In that case the
	// .config.json file is required and the app will panic if no file is found.
	config := LoadConfig(*productionBool)
	setUpLogging(config)

	// Open the remote store the app syncs against.
	store, closeStore := openStore(config, *resetBool)
	defer closeStore()

	// Give stores that can't push updates a change feed over Redis.
	if config.Redis.Host != "" {
		if _, ok := store.(domain.Subscriber); !ok {
			client := redis.NewClient(&redis.Options{
				Addr:     config.Redis.Addr(),
				Password: config.Redis.Password,
				DB:       config.Redis.DB,
			})
			defer client.Close()
			store = realtime.NewStore(store, realtime.NewRedisBus(client), "forkchan:")
		}
	}

	// Count and time every remote operation.
	monitoring.Register()
	store = monitoring.NewStore(store)

	// Start the crud services.
	services, err := crud.NewServices(
		store,
		crud.WithAll(config.HMACKey, config.Pepper, config.MaxImageBytes),
	)
	must(err)

	// Set up a webserver.
	server, err := http.NewServer(services, http.Config{
		MaxSessions: config.MaxSessions,
		FeedOptions: []feed.Option{feed.WithLogger(log.StandardLogger())},
	})
	must(err)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}()

	// Serve the app.
	err = server.Run(":" + strconv.Itoa(config.Port))
	if !errors.Is(err, stdhttp.ErrServerClosed) {
		log.WithError(err).Fatal("http server stopped")
	}
}

// setUpLogging configures the standard logrus logger.
func setUpLogging(config Config) {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if config.IsProd() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// openStore opens the configured remote store and returns it together with
// a function releasing it.
func openStore(config Config, reset bool) (domain.RemoteStore, func()) {
	switch config.Store {
	case "postgres":
		// Open a database connection and execute migrations.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db := NewDB(config.Database)
		must(Open(ctx, db, config.IsProd()))
		must(AutoMigrate(db, reset))
		log.WithField("db", config.Database.Name).Info("using the postgres store")
		return database.NewStore(db.Gorm, database.WithMaxRetries(config.TxRetries)), func() {
			if err := Close(db); err != nil {
				log.WithError(err).Warn("closing postgres")
			}
		}
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := mongodb.Connect(ctx, config.Mongo.URI, config.Mongo.Name)
		must(err)
		log.WithField("db", config.Mongo.Name).Info("using the mongodb store")
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				log.WithError(err).Warn("closing mongodb")
			}
		}
	case "memory", "":
		log.Warn("using the in-memory store, nothing is persisted")
		return memory.NewStore(memory.WithMaxRetries(config.TxRetries)), func() {}
	}
	log.WithField("store", config.Store).Fatal("unknown store")
	return nil, nil
}

// must is a little helper for shortening the panic instruction.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
