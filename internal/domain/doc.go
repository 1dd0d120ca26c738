// Package domain models the records and decision rules of the
// location-to-advisory pipeline.
//
// # Data Sources
//
// Hazards come from the National Weather Service active-alerts feed
// (https://api.weather.gov/alerts/active?point=lat,lon). Each GeoJSON feature
// carries the alert in its properties:
//
//	event        "Excessive Heat Warning"
//	severity     "Minor" | "Moderate" | "Severe" | "Extreme" | "Unknown"
//	effective    RFC 3339 start of the alert
//	expires      RFC 3339 end of the alert
//	headline     one-line summary
//	description  free text
//
// Routes come from an OSRM directions feed as GeoJSON LineStrings, so every
// coordinate pair is ordered (longitude, latitude). Point keeps that order on
// the wire.
//
// # Hazard Classification
//
// The feed has no stable category field, so the hazard type is derived from
// the event name by a case-insensitive keyword match, first hit wins:
//
//	"heat"            → heat
//	"flood"           → flood
//	"air"             → air_quality
//	"wind" | "storm"  → weather
//	anything else     → general
//
// "Red Flag Warning" therefore classifies as general and "High Wind Warning"
// as weather. See [ClassifyHazard].
//
// # Trigger Rules
//
// A hazard is active when any of three independent predicates holds: a
// Severe/Extreme heat alert, a flood alert whose event name carries a
// warning/watch phrase, or any Severe/Extreme alert. The third rule overlaps
// the first for severe heat; the overlap is kept because the rules form a
// union. See [EvaluateTriggers].
//
// # Advice
//
// Advice is template-driven: one static template per hazard type, general as
// the fallback. Only the title depends on the hazard. Demo scenarios add a
// pre-baked avoid region, recommended actions and resource links.
package domain
