// Package tracker serves reconciled trip status and estimated vehicle positions over http, and publishes
// the estimates of tracked trips over NATS
package tracker

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/feedcache"
	"github.com/OpenTransitTools/transittrack/foundation/metrics"
	"github.com/nats-io/nats.go"
)

// Config holds the settings of the tracker services
type Config struct {
	HttpPort         int
	TickInterval     time.Duration
	FetchTimeout     time.Duration
	MaxSessions      int
	SessionExpire    time.Duration
	MaxSegmentMeters float64
	SliceCacheSize   int
	// Location is the timezone schedule times are read in, time.Local when nil
	Location *time.Location
	// Disabled keeps serving status while reporting every position estimate as idle
	Disabled bool
	// EstimateSubject is the subject prefix estimates are published on, nothing is published without a
	// nats connection
	EstimateSubject string
	LogSubjects     bool
}

//StartServices brings up the tracking loop and webservice. Exits on shutdown signal
func StartServices(log *logger.Logger,
	cfg Config,
	cache *feedcache.Cache,
	store gtfs.Store,
	natsConn *nats.Conn,
	collector *metrics.Collector,
	shutdownSignal chan os.Signal) {

	wg := sync.WaitGroup{}

	sessions := makeSessionCollection(log, store, cfg.MaxSessions, cfg.SessionExpire, cfg.MaxSegmentMeters,
		cfg.SliceCacheSize, cfg.Disabled, nil)

	now := serviceClock(cfg.Location)
	loop := &trackingLoop{
		log:          log,
		cache:        cache,
		sessions:     sessions,
		metrics:      collector,
		fetchTimeout: cfg.FetchTimeout,
		now:          now,
	}
	if natsConn != nil {
		loop.publisher = makeNatsEstimatePublisher(log, natsConn, cfg.EstimateSubject, cfg.LogSubjects, collector)
	}
	handler := &trackerHandler{
		log:      log,
		cache:    cache,
		store:    store,
		sessions: sessions,
		now:      now,
	}

	//create shutdown channels
	trackingLoopShutdown := make(chan bool, 1)
	webServiceShutdown := make(chan bool, 1)

	//start all child services
	wg.Add(2)
	go runTrackingLoop(log, &wg, loop, cfg.TickInterval, trackingLoopShutdown)
	go runWebService(log, &wg, handler, collector.Handler(), cfg.HttpPort, webServiceShutdown)

	<-shutdownSignal
	log.Printf("Exiting on shutdown signal, shutting down subroutines")
	trackingLoopShutdown <- true
	webServiceShutdown <- true
	wg.Wait()
	log.Printf("Subroutines shut down, exiting tracker")
}

// serviceClock returns the current time read in location
func serviceClock(location *time.Location) func() time.Time {
	if location == nil {
		location = time.Local
	}
	return func() time.Time {
		return time.Now().In(location)
	}
}
