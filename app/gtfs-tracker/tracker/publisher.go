package tracker

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/OpenTransitTools/transittrack/business/position"
	"github.com/nats-io/nats.go"
)

// estimatePublisher sends position estimates to their destination
type estimatePublisher interface {
	publish(estimate *position.Estimate) error
}

// publishMetrics receives the outcome of every publish
type publishMetrics interface {
	PublishObserved(err error)
}

// natsEstimatePublisher publishes estimates as json on <subjectPrefix>.<route>.<trip>
type natsEstimatePublisher struct {
	log           *log.Logger
	natsConn      *nats.Conn
	subjectPrefix string
	logSubjects   bool
	metrics       publishMetrics
}

func makeNatsEstimatePublisher(log *log.Logger,
	natsConn *nats.Conn,
	subjectPrefix string,
	logSubjects bool,
	metrics publishMetrics) *natsEstimatePublisher {
	return &natsEstimatePublisher{
		log:           log,
		natsConn:      natsConn,
		subjectPrefix: subjectPrefix,
		logSubjects:   logSubjects,
		metrics:       metrics,
	}
}

func (n *natsEstimatePublisher) publish(estimate *position.Estimate) error {
	subject := estimateSubject(n.subjectPrefix, estimate.RouteId, estimate.TripId)
	data, err := json.Marshal(estimate)
	if err != nil {
		return fmt.Errorf("unable to marshal estimate for trip %s: %w", estimate.TripId, err)
	}
	if n.logSubjects {
		n.log.Printf("nats publish subject=%s", subject)
	}
	err = n.natsConn.Publish(subject, data)
	if n.metrics != nil {
		n.metrics.PublishObserved(err)
	}
	if err != nil {
		return fmt.Errorf("unable to publish estimate on %s: %w", subject, err)
	}
	return nil
}

// estimateSubject builds the subject an estimate is published on
func estimateSubject(prefix string, routeId string, tripId string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(routeId), subjectToken(tripId))
}

// subjectToken replaces characters a nats subject token cannot contain
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
