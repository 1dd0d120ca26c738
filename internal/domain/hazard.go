package domain

import (
	"strings"
	"time"
)

// HazardType is the coarse category derived from an alert's event name.
type HazardType string

const (
	HazardHeat       HazardType = "heat"
	HazardFlood      HazardType = "flood"
	HazardAirQuality HazardType = "air_quality"
	HazardWeather    HazardType = "weather"
	HazardGeneral    HazardType = "general"
)

// Severity is the feed's severity label. Values outside the constants below
// are carried through verbatim.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
	SeverityExtreme  Severity = "Extreme"
	SeverityUnknown  Severity = "Unknown"
)

// Hazard is a normalized active alert at a single point.
type Hazard struct {
	HazardType     HazardType `json:"hazard_type"`
	Severity       Severity   `json:"severity"`
	EventName      string     `json:"event"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	RawDescription string     `json:"raw_description"`
}

// AlertProperties holds the alert fields the pipeline reads from one feed feature.
type AlertProperties struct {
	Event       string `json:"event"`
	Severity    string `json:"severity"`
	Effective   string `json:"effective"`
	Expires     string `json:"expires"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// NormalizeAlert builds a Hazard from raw alert properties. Unparseable
// timestamps become the zero time.
func NormalizeAlert(p AlertProperties) Hazard {
	return Hazard{
		HazardType:     ClassifyHazard(p.Event),
		Severity:       Severity(strings.TrimSpace(p.Severity)),
		EventName:      p.Event,
		StartTime:      parseTimeOrZero(p.Effective),
		EndTime:        parseTimeOrZero(p.Expires),
		RawDescription: p.Headline + ". " + p.Description,
	}
}

// ClassifyHazard maps an event name to a hazard type. Keywords are checked in
// priority order; names matching none of them are general.
func ClassifyHazard(eventName string) HazardType {
	e := strings.ToLower(eventName)
	switch {
	case strings.Contains(e, "heat"):
		return HazardHeat
	case strings.Contains(e, "flood"):
		return HazardFlood
	case strings.Contains(e, "air"):
		return HazardAirQuality
	case strings.Contains(e, "wind"), strings.Contains(e, "storm"):
		return HazardWeather
	default:
		return HazardGeneral
	}
}

// IsSevereOrWorse reports whether the severity is Severe or Extreme.
func (s Severity) IsSevereOrWorse() bool {
	return s == SeveritySevere || s == SeverityExtreme
}

// parseTimeOrZero parses an RFC 3339 timestamp, returning the zero time on failure.
func parseTimeOrZero(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
