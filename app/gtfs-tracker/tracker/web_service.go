package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/business/feedcache"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"github.com/OpenTransitTools/transittrack/business/reconcile"
	"github.com/gorilla/mux"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//trackerHandler holds everything needed to respond to realtime, status and position requests
type trackerHandler struct {
	log      *logger.Logger
	cache    *feedcache.Cache
	store    gtfs.Store
	sessions *sessionCollection
	now      func() time.Time
}

//serveRealtime responds with the cached realtime records of the trip_id parameters, or every added trip
func (t *trackerHandler) serveRealtime(w http.ResponseWriter, r *http.Request) {
	tripIds := r.URL.Query()["trip_id"]
	snapshot, err := t.cache.Get(r.Context(), tripIds...)
	if err != nil {
		t.writeError(w, err)
		return
	}
	t.writeJSON(w, snapshot)
}

//tripStatusResponse is the reconciled schedule of one trip
type tripStatusResponse struct {
	TripId           string                       `json:"trip_id"`
	RouteId          string                       `json:"route_id"`
	Status           reconcile.Status             `json:"status"`
	Delay            *int                         `json:"delay"`
	DelayDescription string                       `json:"delay_description,omitempty"`
	Stops            []reconcile.AdjustedStopTime `json:"stops"`
}

//serveTripStatus responds with the trip's stop times adjusted by its realtime record, without tracking the trip.
//the optional stop_sequence parameter selects the stop status is reported for
func (t *trackerHandler) serveTripStatus(w http.ResponseWriter, r *http.Request) {
	tripId := mux.Vars(r)["tripId"]
	var selected *uint32
	if value := r.FormValue("stop_sequence"); value != "" {
		stopSequence, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			http.Error(w, "invalid stop_sequence", http.StatusBadRequest)
			return
		}
		sequence := uint32(stopSequence)
		selected = &sequence
	}
	instance, err := t.sessions.instance(r.Context(), tripId)
	if err != nil {
		t.writeError(w, err)
		return
	}
	record, err := t.tripRecord(r.Context(), tripId)
	if err != nil {
		t.writeError(w, err)
		return
	}
	result := reconcile.Reconcile(instance.StopTimes, record, selected)
	response := tripStatusResponse{
		TripId:  tripId,
		RouteId: instance.RouteId,
		Status:  result.Status,
		Delay:   result.Delay,
		Stops:   result.Stops,
	}
	if result.Delay != nil {
		response.DelayDescription = reconcile.DelayDescription(*result.Delay)
	}
	t.writeJSON(w, response)
}

//serveTripPosition responds with the estimated position of the trip's vehicle, and begins tracking the trip
func (t *trackerHandler) serveTripPosition(w http.ResponseWriter, r *http.Request) {
	tripId := mux.Vars(r)["tripId"]
	session, err := t.sessions.get(r.Context(), tripId)
	if err != nil {
		t.writeError(w, err)
		return
	}
	record, err := t.tripRecord(r.Context(), tripId)
	if err != nil {
		t.writeError(w, err)
		return
	}
	t.writeJSON(w, session.Evaluate(record, t.now()))
}

func (t *trackerHandler) tripRecord(ctx context.Context, tripId string) (realtime.TripRecord, error) {
	snapshot, err := t.cache.Get(ctx, tripId)
	if err != nil {
		return nil, err
	}
	return snapshot.TripUpdates[tripId], nil
}

//addedTripsResponse lists the added trips on a route
type addedTripsResponse struct {
	RouteId string                `json:"route_id"`
	Trips   []*realtime.AddedTrip `json:"trips"`
}

//serveAddedTrips responds with the added trips on the route with routeId, which may also be its short name
func (t *trackerHandler) serveAddedTrips(w http.ResponseWriter, r *http.Request) {
	routeId := mux.Vars(r)["routeId"]
	route, err := t.store.GetRouteById(r.Context(), routeId)
	if errors.Is(err, gtfs.ErrNotFound) {
		route, err = t.store.GetRouteByShortName(r.Context(), routeId)
	}
	if err != nil {
		t.writeError(w, err)
		return
	}
	snapshot, err := t.cache.Get(r.Context())
	if err != nil {
		t.writeError(w, err)
		return
	}
	t.writeJSON(w, addedTripsResponse{
		RouteId: route.RouteId,
		Trips:   reconcile.AddedTripsForRoute(route.RouteId, snapshot.AddedTrips),
	})
}

//serveVehicles responds with the vehicles within radius_km of lat and lon
func (t *trackerHandler) serveVehicles(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.FormValue("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.FormValue("lon"), 64)
	if latErr != nil || lonErr != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	radiusKm := 1.0
	if value := r.FormValue("radius_km"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
		radiusKm = parsed
	}
	vehicles, err := t.cache.GetVehiclesNear(r.Context(), geo.Point{Lat: lat, Lon: lon}, radiusKm)
	if err != nil {
		t.writeError(w, err)
		return
	}
	if vehicles == nil {
		vehicles = make([]realtime.Vehicle, 0)
	}
	t.writeJSON(w, vehicles)
}

//writeJSON marshals response as json to http.ResponseWriter
func (t *trackerHandler) writeJSON(w http.ResponseWriter, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		t.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(jsonData)
	if err != nil {
		t.log.Printf("Error writing json response: %s", err)
	}
}

//writeError maps err to a response status, upstream feed failures are reported as rate limited or bad gateway
func (t *trackerHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var feedErr *feedcache.FeedError
	switch {
	case errors.Is(err, gtfs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feedcache.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.As(err, &feedErr) && feedErr.Retryable():
		status = http.StatusBadGateway
	}
	if status != http.StatusNotFound {
		t.log.Printf("Error serving request, responding %d. error:%v\n", status, err)
	}
	http.Error(w, fmt.Sprintf("%d %s", status, http.StatusText(status)), status)
}

//createRouter creates the mux.Router serving every tracker route
func createRouter(handler *trackerHandler, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.HandleFunc("/realtime", handler.serveRealtime).Methods(http.MethodGet)
	r.HandleFunc("/trips/{tripId}/status", handler.serveTripStatus).Methods(http.MethodGet)
	r.HandleFunc("/trips/{tripId}/position", handler.serveTripPosition).Methods(http.MethodGet)
	r.HandleFunc("/routes/{routeId}/added", handler.serveAddedTrips).Methods(http.MethodGet)
	r.HandleFunc("/vehicles", handler.serveVehicles).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

//createServer creates configured http.Server for tracker requests
func createServer(handler *trackerHandler, metricsHandler http.Handler, httpPort int) *http.Server {
	srv := &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      createRouter(handler, metricsHandler),
	}
	return srv
}

//runWebService starts up the tracker web service, and terminates on shutdown signal.
//the caller adds to wg before starting it
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	handler *trackerHandler,
	metricsHandler http.Handler,
	httpPort int,
	shutdownSignal chan bool,
) {
	defer wg.Done()
	srv := createServer(handler, metricsHandler, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
