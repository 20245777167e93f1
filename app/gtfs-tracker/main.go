package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitTools/transittrack/app/gtfs-tracker/tracker"
	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/feedcache"
	"github.com/OpenTransitTools/transittrack/foundation/database"
	"github.com/OpenTransitTools/transittrack/foundation/metrics"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "GTFS_TRACKER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,noprint"`
			Host         string `conf:"default:0.0.0.0"`
			Name         string `conf:"default:postgres"`
			DisableTLS   bool   `conf:"default:true"`
			MaxOpenConns int    `conf:"default:10"`
		}
		NATS struct {
			Url             string `conf:"default:nats://localhost:4222"`
			Disabled        bool   `conf:"default:false"`
			EstimateSubject string `conf:"default:tracker.estimates"`
			LogSubjects     bool   `conf:"default:false"`
		}
		Feed struct {
			TripUpdatesUrl string        `conf:"default:https://developer.trimet.org/ws/V1/TripUpdate"`
			Timeout        time.Duration `conf:"default:10s"`
			ApiKeyHeader   string
			ApiKey         string `conf:"noprint"`
		}
		Cache struct {
			Bucket      string        `conf:"default:gtfs_realtime"`
			LockBucket  string        `conf:"default:gtfs_realtime_lock"`
			TTL         time.Duration `conf:"default:120s"`
			LockTTL     time.Duration `conf:"default:15s"`
			WaitRetries int           `conf:"default:10"`
			WaitDelay   time.Duration `conf:"default:300ms"`
			MemorySize  int           `conf:"default:20000"`
		}
		Tracker struct {
			TickInterval     time.Duration `conf:"default:500ms"`
			MaxSessions      int           `conf:"default:2000"`
			SessionExpire    time.Duration `conf:"default:10m"`
			MaxSegmentMeters float64       `conf:"default:20"`
			SliceCacheSize   int           `conf:"default:64"`
			Disabled         bool          `conf:"default:false"`
			Timezone         string        `conf:"default:America/Los_Angeles"`
		}
		Web struct {
			HttpPort int `conf:"default:8080"`
		}
	}
	// values in an optional .env file are read as environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Track vehicle positions along realtime adjusted gtfs trips"
	const prefix = "TRACKER"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// schedule times are read in the agency's timezone, not the host's
	location, err := time.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", cfg.Tracker.Timezone, err)
	}

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		DisableTLS:   cfg.DB.DisableTLS,
		MaxOpenConns: cfg.DB.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()
	if err = database.StatusCheck(context.Background(), db); err != nil {
		return fmt.Errorf("checking db status: %w", err)
	}

	collector := metrics.NewCollector()

	// =========================================================================
	// Start NATS and the realtime cache store

	var natsConn *nats.Conn
	var store feedcache.Store
	var lockStore feedcache.Store
	if cfg.NATS.Disabled {
		log.Println("main: NATS disabled, realtime cache is local to this instance")
		store = feedcache.NewMemoryStore(cfg.Cache.MemorySize, cfg.Cache.TTL, nil)
	} else {
		log.Printf("main: Connecting to NATS : %s", cfg.NATS.Url)
		natsConn, err = nats.Connect(cfg.NATS.Url,
			nats.Name("gtfs-tracker"),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Printf("nats reconnected to %s", nc.ConnectedUrl())
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				log.Printf("nats closed")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer func() {
			log.Printf("main: NATS Stopping : %s", cfg.NATS.Url)
			if err := natsConn.Drain(); err != nil {
				log.Printf("main: error draining nats connection: %v", err)
			}
		}()

		js, err := jetstream.New(natsConn)
		if err != nil {
			return fmt.Errorf("creating jetstream context: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err = feedcache.NewNATSStore(ctx, js, cfg.Cache.Bucket, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		// a short expiry on the lock bounds how long a crashed instance blocks fetching
		lockStore, err = feedcache.NewNATSStore(ctx, js, cfg.Cache.LockBucket, cfg.Cache.LockTTL)
		if err != nil {
			return err
		}
	}

	source := feedcache.NewHTTPSource(log, cfg.Feed.TripUpdatesUrl, cfg.Feed.Timeout, cfg.Feed.ApiKeyHeader,
		cfg.Feed.ApiKey)
	cache := feedcache.New(log, source, store, feedcache.Config{
		TTL:         cfg.Cache.TTL,
		WaitRetries: cfg.Cache.WaitRetries,
		WaitDelay:   cfg.Cache.WaitDelay,
		LockStore:   lockStore,
		Recorder:    collector,
	})

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	tracker.StartServices(log, tracker.Config{
		HttpPort:         cfg.Web.HttpPort,
		TickInterval:     cfg.Tracker.TickInterval,
		FetchTimeout:     cfg.Feed.Timeout,
		MaxSessions:      cfg.Tracker.MaxSessions,
		SessionExpire:    cfg.Tracker.SessionExpire,
		MaxSegmentMeters: cfg.Tracker.MaxSegmentMeters,
		SliceCacheSize:   cfg.Tracker.SliceCacheSize,
		Location:         location,
		Disabled:         cfg.Tracker.Disabled,
		EstimateSubject:  cfg.NATS.EstimateSubject,
		LogSubjects:      cfg.NATS.LogSubjects,
	}, cache, gtfs.MakeDBStore(db), natsConn, collector, shutdown)
	return nil
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
