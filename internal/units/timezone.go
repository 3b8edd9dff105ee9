package units

import (
	"fmt"
	"time"
)

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts a UTC time to the specified timezone.
// Sessions are stored in UTC; reports convert them for display.
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "" || targetTimezone == "UTC" {
		return utcTime.UTC(), nil
	}
	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}
	return utcTime.In(loc), nil
}

// TimezoneLabel returns "<tz> (+hh:mm)" using the offset in force at t.
// Unknown zones are returned as given.
func TimezoneLabel(tz string, t time.Time) string {
	local, err := ConvertTime(t, tz)
	if err != nil {
		return tz
	}
	_, offset := local.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	name := tz
	if name == "" {
		name = "UTC"
	}
	return fmt.Sprintf("%s (%c%02d:%02d)", name, sign, offset/3600, (offset%3600)/60)
}
