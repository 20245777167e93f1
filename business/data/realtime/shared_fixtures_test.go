package realtime

import (
	"log"
	"testing"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type testLogWriter struct {
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "GTFS_TRACKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func uint32Ptr(u uint32) *uint32 {
	return &u
}

func int32Ptr(i int32) *int32 {
	return &i
}

func strPtr(s string) *string {
	return &s
}

// testFeedBytes builds and marshals a feed with a scheduled, a canceled and an added trip and two vehicles
func testFeedBytes(t *testing.T) []byte {
	feedMessage := gtfsrtproto.FeedMessage{
		Header: &gtfsrtproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1718038800),
		},
		Entity: []*gtfsrtproto.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfsrtproto.TripUpdate{
					Trip: &gtfsrtproto.TripDescriptor{
						TripId:               proto.String("1000"),
						RouteId:              proto.String("100"),
						DirectionId:          proto.Uint32(1),
						ScheduleRelationship: gtfsrtproto.TripDescriptor_SCHEDULED.Enum(),
					},
					Vehicle:   &gtfsrtproto.VehicleDescriptor{Id: proto.String("3501")},
					Timestamp: proto.Uint64(1718038790),
					StopTimeUpdate: []*gtfsrtproto.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(2),
							StopId:       proto.String("A2"),
							Arrival:      &gtfsrtproto.TripUpdate_StopTimeEvent{Delay: proto.Int32(60)},
						},
						{
							StopSequence:         proto.Uint32(3),
							ScheduleRelationship: gtfsrtproto.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
						},
					},
				},
			},
			{
				Id: proto.String("2"),
				TripUpdate: &gtfsrtproto.TripUpdate{
					Trip: &gtfsrtproto.TripDescriptor{
						TripId:               proto.String("2000"),
						RouteId:              proto.String("100"),
						ScheduleRelationship: gtfsrtproto.TripDescriptor_CANCELED.Enum(),
					},
				},
			},
			{
				Id: proto.String("3"),
				TripUpdate: &gtfsrtproto.TripUpdate{
					Trip: &gtfsrtproto.TripDescriptor{
						RouteId:              proto.String("200"),
						DirectionId:          proto.Uint32(0),
						StartDate:            proto.String("20240610"),
						StartTime:            proto.String("10:15:00"),
						ScheduleRelationship: gtfsrtproto.TripDescriptor_ADDED.Enum(),
					},
				},
			},
			{
				Id: proto.String("4"),
				Vehicle: &gtfsrtproto.VehiclePosition{
					Trip:    &gtfsrtproto.TripDescriptor{TripId: proto.String("1000"), RouteId: proto.String("100")},
					Vehicle: &gtfsrtproto.VehicleDescriptor{Id: proto.String("3501"), Label: proto.String("Blue")},
					Position: &gtfsrtproto.Position{
						Latitude:  proto.Float32(45.5),
						Longitude: proto.Float32(-122.68),
						Bearing:   proto.Float32(90),
					},
					CurrentStopSequence: proto.Uint32(2),
					CurrentStatus:       gtfsrtproto.VehiclePosition_IN_TRANSIT_TO.Enum(),
					Timestamp:           proto.Uint64(1718038795),
				},
			},
			{
				Id: proto.String("5"),
				Vehicle: &gtfsrtproto.VehiclePosition{
					Position: &gtfsrtproto.Position{
						Latitude:  proto.Float32(45.5),
						Longitude: proto.Float32(-122.68),
					},
				},
			},
		},
	}
	data, err := proto.Marshal(&feedMessage)
	if err != nil {
		t.Fatalf("unable to marshal test feed: %v", err)
	}
	return data
}
