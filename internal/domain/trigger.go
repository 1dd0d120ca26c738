package domain

import "strings"

// floodTriggerPhrases are matched case-sensitively against the event name,
// as issued by the feed.
var floodTriggerPhrases = []string{"Flood Warning", "Flash Flood Warning", "Flood Watch"}

// TriggerResult is the outcome of evaluating a set of hazards.
type TriggerResult struct {
	Triggered     bool     `json:"triggered"`
	ActiveHazards []Hazard `json:"active_hazards,omitempty"`
}

// triggerRule is one independent predicate. A hazard is active when any rule holds.
type triggerRule func(Hazard) bool

var triggerRules = []triggerRule{
	severeHeat,
	floodWarning,
	severeAny,
}

func severeHeat(h Hazard) bool {
	return h.HazardType == HazardHeat && h.Severity.IsSevereOrWorse()
}

func floodWarning(h Hazard) bool {
	if h.HazardType != HazardFlood {
		return false
	}
	for _, phrase := range floodTriggerPhrases {
		if strings.Contains(h.EventName, phrase) {
			return true
		}
	}
	return false
}

// severeAny is the catch-all for severe hazards of every type. It overlaps
// severeHeat; both stay in the union.
func severeAny(h Hazard) bool {
	return h.Severity.IsSevereOrWorse()
}

// IsActive reports whether a hazard is consequential enough to trigger an advisory.
func IsActive(h Hazard) bool {
	for _, rule := range triggerRules {
		if rule(h) {
			return true
		}
	}
	return false
}

// EvaluateTriggers filters hazards down to the active ones, preserving input
// order so the first-listed active hazard leads the result.
func EvaluateTriggers(hazards []Hazard) TriggerResult {
	if len(hazards) == 0 {
		return TriggerResult{}
	}

	var active []Hazard
	for _, h := range hazards {
		if IsActive(h) {
			active = append(active, h)
		}
	}

	return TriggerResult{
		Triggered:     len(active) > 0,
		ActiveHazards: active,
	}
}
