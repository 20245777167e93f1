package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/OpenTransitTools/transittrack/business/feedcache"
)

// trackingMetrics receives measurements of the tracking loop
type trackingMetrics interface {
	SetTrackedTrips(n int)
	EstimateObserved(state string)
	TickObserve(d time.Duration)
}

// trackingLoop re-estimates the position of every tracked trip
type trackingLoop struct {
	log          *log.Logger
	cache        *feedcache.Cache
	sessions     *sessionCollection
	publisher    estimatePublisher
	metrics      trackingMetrics
	fetchTimeout time.Duration
	// now reads the time in the timezone of the schedule
	now func() time.Time
}

// tick estimates every tracked trip at now against the latest realtime snapshot, returning the number of
// estimates published
func (t *trackingLoop) tick(ctx context.Context, now time.Time) int {
	sessions := t.sessions.sessions()
	t.metrics.SetTrackedTrips(len(sessions))
	if len(sessions) == 0 {
		return 0
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()
	snapshot, err := t.cache.Get(fetchCtx, tripIds(sessions)...)
	if err != nil {
		t.log.Printf("error retrieving realtime snapshot for %d tracked trips. error:%v\n", len(sessions), err)
		return 0
	}

	published := 0
	for _, session := range sessions {
		estimate := session.Tick(snapshot, now)
		t.metrics.EstimateObserved(estimate.Position.State.String())
		if !estimate.Position.Available() || t.publisher == nil {
			continue
		}
		if err = t.publisher.publish(&estimate); err != nil {
			t.log.Printf("error publishing estimate for trip %s. error:%v\n", estimate.TripId, err)
			continue
		}
		published++
	}
	return published
}

// runTrackingLoop ticks every tickInterval until shutdownSignal. The caller adds to wg before starting it
func runTrackingLoop(log *log.Logger,
	wg *sync.WaitGroup,
	loop *trackingLoop,
	tickInterval time.Duration,
	shutdownSignal chan bool) {
	defer wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleepChan := make(chan bool, 1)
	sleep := time.Duration(0) //tick immediately the first time
	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting tracking loop on shutdown signal")
			return
		case <-sleepChan:
		}

		start := time.Now()
		published := loop.tick(ctx, loop.now())
		workTook := time.Since(start)
		loop.metrics.TickObserve(workTook)
		if published > 0 {
			log.Printf("published %d estimates in %s\n", published, workTook)
		}

		// keep ticks tickInterval apart by subtracting the time the work took
		if workTook >= tickInterval {
			sleep = time.Duration(0)
		} else {
			sleep = tickInterval - workTook
		}
	}
}
