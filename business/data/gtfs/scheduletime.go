package gtfs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxDelaySeconds is the largest delay magnitude accepted from a realtime feed. Anything larger is
	// treated as corrupt upstream data.
	MaxDelaySeconds = 60 * 60 * 12

	// MaximumScheduleSeconds limits how far past midnight a service day can run
	MaximumScheduleSeconds int = 60 * 60 * 30

	secondsPerDay = 60 * 60 * 24
)

// getDLSTransitionSeconds provides the number of seconds offset for a 12am date later in the day after day light saving time is done
func getDLSTransitionSeconds(timeAt12 time.Time) int {
	before := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 0, 0, 0, 0, timeAt12.Location())
	after := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 5, 0, 0, 0, timeAt12.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// MakeScheduleTime produces a time from by adding seconds to a 12am date. Takes into account day light saving time
func MakeScheduleTime(timeAt12 time.Time, scheduleSeconds int) time.Time {
	offset := getDLSTransitionSeconds(timeAt12)
	scheduleSeconds = scheduleSeconds + (0 - offset)
	return timeAt12.Add(time.Duration(scheduleSeconds) * time.Second)
}

func Get12AmTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// ParseScheduleSeconds converts a "HH:MM:SS" schedule string into seconds since the start of the service day.
// Hours may be 24 or more for trips that run past midnight. Returns false for empty or malformed strings.
func ParseScheduleSeconds(scheduleTime string) (int, bool) {
	scheduleTime = strings.TrimSpace(scheduleTime)
	if scheduleTime == "" {
		return 0, false
	}
	parts := strings.Split(scheduleTime, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var values [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0, false
		}
		values[i] = v
	}
	if values[1] > 59 || values[2] > 59 {
		return 0, false
	}
	return values[0]*3600 + values[1]*60 + values[2], true
}

// FormatScheduleSeconds renders seconds since the start of the service day as "HH:MM:SS".
// Hours are not wrapped at 24, negative values are rendered as 00:00:00
func FormatScheduleSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ScheduleStringToInstant returns the instant scheduleTime represents on the service day of referenceDate.
// hours of 24 or more roll into the following calendar day.
func ScheduleStringToInstant(scheduleTime string, referenceDate time.Time) (time.Time, bool) {
	seconds, ok := ParseScheduleSeconds(scheduleTime)
	if !ok {
		return time.Time{}, false
	}
	return MakeScheduleTime(Get12AmTime(referenceDate), seconds), true
}

// InstantToScheduleString formats the wall clock time of instant as "HH:MM:SS"
func InstantToScheduleString(instant time.Time) string {
	return instant.Format("15:04:05")
}

// sameCalendarDay is true when a and b fall on the same date in a's location
func sameCalendarDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsPastArrival reports whether scheduleTime, interpreted on the service day of referenceDate, has already passed.
// Only instants on the same calendar day as now can be in the past, so schedule strings of an unrelated
// service day never report past.
func IsPastArrival(scheduleTime string, referenceDate time.Time, now time.Time) bool {
	instant, ok := ScheduleStringToInstant(scheduleTime, referenceDate)
	if !ok {
		return false
	}
	return sameCalendarDay(instant, now) && instant.Before(now)
}

// ApplyDelay offsets scheduleTime by delaySeconds.
// returns false when scheduleTime is missing or malformed, or when the delay exceeds MaxDelaySeconds in either
// direction. Results earlier than the start of the service day are clamped to 00:00:00
func ApplyDelay(scheduleTime string, delaySeconds int) (string, bool) {
	if delaySeconds > MaxDelaySeconds || delaySeconds < -MaxDelaySeconds {
		return "", false
	}
	seconds, ok := ParseScheduleSeconds(scheduleTime)
	if !ok {
		return "", false
	}
	return FormatScheduleSeconds(seconds + delaySeconds), true
}

// PercentageElapsed returns the fraction between 0 and 1 of how far now is between begin and end.
// now before begin is 0, now at or after end is 1.
func PercentageElapsed(begin time.Time, end time.Time, now time.Time) float64 {
	if !now.Before(end) {
		return 1
	}
	if !now.After(begin) {
		return 0
	}
	total := end.Sub(begin)
	if total <= 0 {
		return 1
	}
	fraction := float64(now.Sub(begin)) / float64(total)
	return math.Min(1, math.Max(0, fraction))
}

// FormatDuration renders seconds as a "1h 5m 3s" style string, omitting zero components. The sign is ignored.
// When exact is false, durations under 30 seconds render as an empty string and seconds are dropped
// (rounded into minutes) once the duration reaches a minute.
// When exact is true every non-zero component is rendered and zero renders as "0s".
func FormatDuration(seconds int, exact bool) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if !exact {
		if seconds < 30 {
			return ""
		}
		seconds = int(math.Round(float64(seconds)/60)) * 60
	}
	if seconds == 0 {
		return "0s"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, strconv.Itoa(h)+"h")
	}
	if m > 0 {
		parts = append(parts, strconv.Itoa(m)+"m")
	}
	if s > 0 {
		parts = append(parts, strconv.Itoa(s)+"s")
	}
	return strings.Join(parts, " ")
}

// ServiceDateForTrip finds the 12am date of the service day a trip instance with stopTimes runs on.
// startDate is the realtime start date in YYYYMMDD form and is used when present and valid.
// Otherwise, today is used unless the trip is only in service at now when started on the previous day.
func ServiceDateForTrip(stopTimes []StopTime, startDate string, now time.Time) time.Time {
	if len(startDate) == 8 {
		parsed, err := time.ParseInLocation("20060102", startDate, now.Location())
		if err == nil {
			return parsed
		}
	}
	today := Get12AmTime(now)
	if len(stopTimes) == 0 {
		return today
	}
	lastSeconds, ok := ParseScheduleSeconds(stopTimes[len(stopTimes)-1].ArrivalTime)
	// a stop time beyond the longest service day can't have started yesterday
	if !ok || lastSeconds < secondsPerDay || lastSeconds > MaximumScheduleSeconds {
		return today
	}
	yesterday := today.AddDate(0, 0, -1)
	firstSeconds, ok := ParseScheduleSeconds(stopTimes[0].DepartureTime)
	if !ok {
		firstSeconds, ok = ParseScheduleSeconds(stopTimes[0].ArrivalTime)
	}
	if !ok {
		return today
	}
	// a trip running past midnight started yesterday if now is still before today's start and within
	// yesterday's run
	yesterdayEnd := MakeScheduleTime(yesterday, lastSeconds)
	todayStart := MakeScheduleTime(today, firstSeconds)
	if now.Before(todayStart) && !now.After(yesterdayEnd) {
		return yesterday
	}
	return today
}
