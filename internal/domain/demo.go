package domain

import "net/url"

// DemoRegionRadiusKm is the radius of the avoid region drawn around a demo location.
const DemoRegionRadiusKm = 50

// DemoScenario is a reserved location code with fixed coordinates and
// pre-baked guidance. No US ZIP code begins with 000, so the codes cannot
// shadow a real lookup.
type DemoScenario struct {
	Code        string
	Name        string
	Latitude    float64
	Longitude   float64
	Recommended []string
	Aid         []ResourceLink
	Info        []ResourceLink
}

// AvoidRegion is the map area an advisory asks the user to stay out of.
type AvoidRegion struct {
	Center      Coordinate `json:"center"`
	RadiusKm    float64    `json:"radius_km"`
	PostalCodes []string   `json:"postal_codes,omitempty"`
}

// Coordinate is a lat/lon pair in display order.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ResourceLink is a labelled link shown alongside an advisory.
type ResourceLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

var (
	redCrossShelters = ResourceLink{Label: "Red Cross Shelter Finder", URL: "https://www.redcross.org/get-help.html"}
	nwsHome          = ResourceLink{Label: "National Weather Service", URL: "https://www.weather.gov"}
)

// Resources groups the links attached to demo advisories.
type Resources struct {
	Emergency []ResourceLink `json:"emergency"`
	Aid       []ResourceLink `json:"aid"`
	Info      []ResourceLink `json:"info"`
}

var demoScenarios = map[string]DemoScenario{
	"00001": {
		Code:      "00001",
		Name:      "Winter storm, Buffalo NY",
		Latitude:  42.8864,
		Longitude: -78.8784,
		Recommended: []string{
			"Stay indoors and maintain heating",
			"Layer clothing and cover exposed skin",
			"Keep emergency supplies accessible",
			"Check on neighbors and vulnerable individuals",
		},
		Aid: []ResourceLink{
			redCrossShelters,
			{Label: "Heating Assistance (LIHEAP)", URL: "https://www.acf.hhs.gov/ocs/energy-assistance"},
		},
		Info: []ResourceLink{
			{Label: "CDC Cold Weather Safety", URL: "https://www.cdc.gov/disasters/winter/index.html"},
			nwsHome,
		},
	},
	"00002": {
		Code:      "00002",
		Name:      "Extreme heat, Phoenix AZ",
		Latitude:  33.4484,
		Longitude: -112.0740,
		Recommended: []string{
			"Stay hydrated",
			"Use shaded or indoor spaces",
			"Travel before sunrise or after sunset",
			"Check on neighbors and vulnerable individuals",
		},
		Aid: []ResourceLink{
			{Label: "Heat Relief Network Cooling Centers", URL: "https://www.maricopa.gov/5297/Heat-Relief-Network"},
			redCrossShelters,
		},
		Info: []ResourceLink{
			{Label: "CDC Heat and Health", URL: "https://www.cdc.gov/heat-health/index.html"},
			nwsHome,
		},
	},
	"00003": {
		Code:      "00003",
		Name:      "Flash flooding, Houston TX",
		Latitude:  29.7604,
		Longitude: -95.3698,
		Recommended: []string{
			"Move to higher ground",
			"Monitor local news for evacuation orders",
			"Never drive through flooded roads",
		},
		Aid: []ResourceLink{
			redCrossShelters,
			{Label: "FEMA Disaster Assistance", URL: "https://www.disasterassistance.gov"},
		},
		Info: []ResourceLink{
			{Label: "Ready.gov Floods", URL: "https://www.ready.gov/floods"},
			nwsHome,
		},
	},
	"00004": {
		Code:      "00004",
		Name:      "Wildfire smoke, Los Angeles CA",
		Latitude:  34.0522,
		Longitude: -118.2437,
		Recommended: []string{
			"Use air purifiers",
			"Wear N95 masks if outdoors is necessary",
			"Keep windows closed",
		},
		Aid: []ResourceLink{
			redCrossShelters,
		},
		Info: []ResourceLink{
			{Label: "AirNow Fire and Smoke Map", URL: "https://fire.airnow.gov"},
			{Label: "CDC Wildfire Smoke", URL: "https://www.cdc.gov/wildfires/"},
			nwsHome,
		},
	},
}

// LookupDemoScenario returns the scenario reserved for code, if any.
func LookupDemoScenario(code string) (DemoScenario, bool) {
	s, ok := demoScenarios[code]
	return s, ok
}

// Location returns the synthetic location for the scenario.
func (s DemoScenario) Location() Location {
	return Location{
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		PostalCode:  s.Code,
		IsSynthetic: true,
	}
}

// EnrichForDemo attaches the scenario's avoid region, recommended actions and
// resource links to an advisory issued for a synthetic location. Advisories for
// live locations are returned unchanged.
func EnrichForDemo(a Advisory, loc Location) Advisory {
	if !loc.IsSynthetic {
		return a
	}
	scenario, ok := LookupDemoScenario(loc.PostalCode)
	if !ok {
		return a
	}

	a.Region = &AvoidRegion{
		Center:      Coordinate{Lat: loc.Latitude, Lon: loc.Longitude},
		RadiusKm:    DemoRegionRadiusKm,
		PostalCodes: []string{loc.PostalCode},
	}
	a.Recommended = append([]string(nil), scenario.Recommended...)
	a.Resources = demoResources(scenario)
	return a
}

func demoResources(s DemoScenario) *Resources {
	return &Resources{
		Emergency: []ResourceLink{
			{Label: "Emergency Services", URL: "tel:911"},
			{
				Label: "Local Emergency Management",
				URL:   "https://www.ready.gov/community-state-info?zip=" + url.QueryEscape(s.Code),
			},
		},
		Aid:  append([]ResourceLink(nil), s.Aid...),
		Info: append([]ResourceLink(nil), s.Info...),
	}
}
