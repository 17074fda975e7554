package cart

import (
	"fmt"
	"strings"
	"time"

	"bakery-orders/internal/models"
)

// HoursStatus is the structured answer of the opening-hours gate
type HoursStatus struct {
	IsOpen  bool   `json:"isOpen"`
	Message string `json:"message"`
}

// IsWithinOpeningHours maps the current weekday to the store's configured
// open/close window. Failing this check blocks order creation regardless of
// cart validity. A close time before the open time spans midnight.
func IsWithinOpeningHours(hours map[string]models.DayHours, now time.Time) HoursStatus {
	day := strings.ToLower(now.Weekday().String())

	dh, ok := hours[day]
	if !ok {
		return HoursStatus{IsOpen: false, Message: fmt.Sprintf("Opening hours are not configured for %s.", now.Weekday())}
	}
	if dh.Closed {
		return HoursStatus{IsOpen: false, Message: fmt.Sprintf("We are closed on %ss.", now.Weekday())}
	}

	openMin, err := minuteOfDay(dh.Open)
	if err != nil {
		return HoursStatus{IsOpen: false, Message: fmt.Sprintf("Opening hours for %s are misconfigured.", now.Weekday())}
	}
	closeMin, err := minuteOfDay(dh.Close)
	if err != nil {
		return HoursStatus{IsOpen: false, Message: fmt.Sprintf("Opening hours for %s are misconfigured.", now.Weekday())}
	}

	nowMin := now.Hour()*60 + now.Minute()

	var open bool
	if closeMin < openMin {
		open = nowMin >= openMin || nowMin < closeMin
	} else {
		open = nowMin >= openMin && nowMin < closeMin
	}

	if !open {
		return HoursStatus{
			IsOpen:  false,
			Message: fmt.Sprintf("We are currently closed. Today's hours are %s to %s.", dh.Open, dh.Close),
		}
	}
	return HoursStatus{IsOpen: true, Message: fmt.Sprintf("We are open until %s.", dh.Close)}
}

func minuteOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
