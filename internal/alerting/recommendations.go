package alerting

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/smukkama/hive-monitor/internal/alertstore"
)

// Catalog maps alert types to static recommendation bundles
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]alertstore.Recommendation
}

var defaultRecommendations = map[string]alertstore.Recommendation{
	ThreatWaxMoth: {
		Priority: "High",
		Actions: []string{
			"Close hive entrance at dusk and dawn to prevent moth entry.",
			"Inspect frames for larvae/galleries and remove heavily infested combs.",
			"Freeze infested combs (−18°C for 24–48 hrs) or replace them.",
			"Improve hive cleanliness and maintain strong colony population.",
		},
		Notes: "Wax moths favour warm, humid, weak colonies; reduce humidity and strengthen colonies.",
	},
	ThreatPredator: {
		Priority: "Critical",
		Actions: []string{
			"Narrow or close the hive entrance at night immediately.",
			"Install entrance guards (mesh/metal) to stop predators.",
			"Use physical barriers (fencing, elevated stands) to deter mammals.",
			"Consider temporary ultrasonic deterrent devices (test first).",
		},
		Notes: "Predator attacks are urgent, take physical measures immediately.",
	},
	ThreatEnvironmental: {
		Priority: "Medium",
		Actions: []string{
			"Provide shade or relocate hive away from direct sun.",
			"Ensure water source is nearby and accessible for bees.",
			"Increase hive ventilation (e.g., screened bottom, vents).",
			"Monitor local weather alerts and move hives before extreme events if possible.",
		},
		Notes: "Environmental stress (heat/humidity/rain) can reduce foraging and increase disease risk.",
	},
	ThreatNone: {
		Priority: "Low",
		Actions:  []string{"No immediate action required, continue monitoring."},
		Notes:    "Maintain routine checks and sensor monitoring.",
	},
}

var unknownRecommendation = alertstore.Recommendation{
	Priority: "Unknown",
	Actions:  []string{"No specific recommendation available."},
	Notes:    "",
}

// NewCatalog returns the built-in catalog
func NewCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]alertstore.Recommendation, len(defaultRecommendations))}
	for k, v := range defaultRecommendations {
		c.entries[k] = v
	}
	return c
}

// LoadCatalog returns the built-in catalog overlaid with entries from a YAML file.
// An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recommendations file: %w", err)
	}

	var overrides map[string]alertstore.Recommendation
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations file %s: %w", path, err)
	}
	for k, v := range overrides {
		c.entries[k] = v
	}
	return c, nil
}

// For returns a copy of the bundle for an alert type, or the unknown bundle
func (c *Catalog) For(alertType string) alertstore.Recommendation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.entries[alertType]
	if !ok {
		r = unknownRecommendation
	}
	r.Actions = append([]string(nil), r.Actions...)
	return r
}

// Lookup returns the bundle for an alert type only when the catalog has one
func (c *Catalog) Lookup(alertType string) (alertstore.Recommendation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.entries[alertType]
	r.Actions = append([]string(nil), r.Actions...)
	return r, ok
}
