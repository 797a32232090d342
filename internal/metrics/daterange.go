package metrics

import (
	"strconv"
	"time"
)

// DateRange bounds a metrics query. Zero From/To mean unbounded on
// that side.
type DateRange struct {
	Label string    `json:"label"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// Canned presets used by dashboards.
func Last7Days() DateRange  { return lastNDays(7) }
func Last14Days() DateRange { return lastNDays(14) }
func Last30Days() DateRange { return lastNDays(30) }
func Last90Days() DateRange { return lastNDays(90) }

func AllTime() DateRange {
	return DateRange{Label: "all_time"}
}

func lastNDays(n int) DateRange {
	now := time.Now()
	return DateRange{
		Label: "last_" + strconv.Itoa(n) + "_days",
		From:  now.AddDate(0, 0, -n),
		To:    now,
	}
}

// Preset resolves a label to its range; unknown labels mean all-time.
func Preset(label string) DateRange {
	switch label {
	case "last_7_days":
		return Last7Days()
	case "last_14_days":
		return Last14Days()
	case "last_30_days":
		return Last30Days()
	case "last_90_days":
		return Last90Days()
	default:
		return AllTime()
	}
}
