package domain

import (
	"context"
	"time"
)

// Advisory is the structured, user-facing outcome for one triggering hazard.
type Advisory struct {
	Title      string     `json:"title"`
	Constraint string     `json:"constraint"`
	Reason     string     `json:"reason"`
	Avoid      []string   `json:"avoid"`
	Timing     string     `json:"timing,omitempty"`
	HazardType HazardType `json:"hazard_type"`
	// IssuedAt is stamped when the advisory is committed to a session.
	IssuedAt   time.Time  `json:"issued_at,omitzero"`

	// Demo enrichment, set only for synthetic locations.
	Region      *AvoidRegion `json:"region,omitempty"`
	Recommended []string     `json:"recommended,omitempty"`
	Resources   *Resources   `json:"resources,omitempty"`
}

type adviceTemplate struct {
	constraint string
	reason     string
	timing     string
	avoid      []string
}

var adviceTemplates = map[HazardType]adviceTemplate{
	HazardHeat: {
		constraint: "Outdoor movement is no longer viable for pedestrian or strenuous travel.",
		reason:     "Heat index levels exceed human safety thresholds for prolonged exposure.",
		timing:     "Until sunset",
		avoid:      []string{"Prolonged exposure", "Strenuous navigation"},
	},
	HazardFlood: {
		constraint: "Coastal roads and low-lying transit corridors are unavailable today.",
		reason:     "Flood risk exceeds safe travel thresholds due to environmental conditions.",
		timing:     "Until 6am tomorrow",
		avoid:      []string{"Low-lying routes", "Coastal road navigation"},
	},
	HazardAirQuality: {
		constraint: "Normal navigation assumptions break in this area today; filtered transit only.",
		reason:     "Atmospheric pollutant levels pose immediate respiratory risk.",
		timing:     "During the next 12 hours",
		avoid:      []string{"Open-air transit", "Unfiltered ventilation"},
	},
	HazardWeather: {
		constraint: "This route is not recommended to be used.",
		reason:     "Extreme weather events have compromised standard safety margins.",
		timing:     "After 10pm",
		avoid:      []string{"Non-essential trips", "Routes with higher risk exposure"},
	},
	HazardGeneral: {
		constraint: "Standard decision-making for movement is suspended in this zone.",
		reason:     "Active hazard data indicates that normal safety assumptions no longer hold.",
		timing:     "Until further notice",
		avoid:      []string{"Entering the restricted zone", "Standard routing"},
	},
}

// GenerateAdvice builds an advisory from the template for the hazard's type,
// falling back to the general template for types without one. The result
// depends only on h.
func GenerateAdvice(h Hazard) Advisory {
	tmpl, ok := adviceTemplates[h.HazardType]
	if !ok {
		tmpl = adviceTemplates[HazardGeneral]
	}

	return Advisory{
		Title:      h.EventName + " Constraint",
		Constraint: tmpl.constraint,
		Reason:     tmpl.reason,
		Avoid:      append([]string(nil), tmpl.avoid...),
		Timing:     tmpl.timing,
		HazardType: h.HazardType,
	}
}

// TemplateAdvisor serves advice from the static templates. It satisfies the
// context-aware generator contract so a remote content backend can replace it.
type TemplateAdvisor struct{}

// Generate never fails.
func (TemplateAdvisor) Generate(_ context.Context, h Hazard) (Advisory, error) {
	return GenerateAdvice(h), nil
}
