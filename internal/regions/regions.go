// Package regions loads the catalog of water-body regions of interest.
//
// The catalog is a GeoJSON FeatureCollection. Each feature carries a "name"
// and a "location" property; its 1-based position in the collection is the
// area id the provider stamps into filenames (aid0001, aid0002, ...).
package regions

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLocation is used when a feature has no location property.
const DefaultLocation = "lake"

// Region is one region of interest.
type Region struct {
	AreaID    string `json:"areaId"`
	FeatureID string `json:"featureId"`
	Name      string `json:"name"`
	Location  string `json:"location"`
}

// Catalog maps provider area ids to regions.
type Catalog struct {
	regions    []Region
	byArea     map[int]int
	collection json.RawMessage
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// Load reads a catalog from a GeoJSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from GeoJSON bytes.
func Parse(data []byte) (*Catalog, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("parse regions: expected FeatureCollection, got %q", fc.Type)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("parse regions: no features")
	}

	c := &Catalog{byArea: make(map[int]int, len(fc.Features))}
	seen := make(map[string]bool)
	for i, f := range fc.Features {
		name := stringProp(f.Properties, "name")
		if name == "" {
			return nil, fmt.Errorf("parse regions: feature %d has no name", i+1)
		}
		if len(f.Geometry) == 0 || string(f.Geometry) == "null" {
			return nil, fmt.Errorf("parse regions: feature %q has no geometry", name)
		}
		location := stringProp(f.Properties, "location")
		if location == "" {
			location = DefaultLocation
		}
		id := stringProp(f.Properties, "id")
		if id == "" {
			id = FeatureID(name)
		}
		key := id + "/" + location
		if seen[key] {
			return nil, fmt.Errorf("parse regions: duplicate region %s", key)
		}
		seen[key] = true

		c.byArea[i+1] = len(c.regions)
		c.regions = append(c.regions, Region{
			AreaID:    FormatAreaID(i + 1),
			FeatureID: id,
			Name:      name,
			Location:  location,
		})
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode regions: %w", err)
	}
	c.collection = raw
	return c, nil
}

// Lookup returns the region for a provider area id such as "0007".
func (c *Catalog) Lookup(areaID string) (Region, bool) {
	n, err := strconv.Atoi(areaID)
	if err != nil {
		return Region{}, false
	}
	idx, ok := c.byArea[n]
	if !ok {
		return Region{}, false
	}
	return c.regions[idx], true
}

// All returns the regions in area id order.
func (c *Catalog) All() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Len returns the number of regions.
func (c *Catalog) Len() int {
	return len(c.regions)
}

// GeoJSON returns the FeatureCollection sent to the provider.
func (c *Catalog) GeoJSON() json.RawMessage {
	return c.collection
}

// FormatAreaID renders an area number the way the provider does.
func FormatAreaID(n int) string {
	return fmt.Sprintf("%04d", n)
}

var nonSlugRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FeatureID derives a storage-safe feature id from a region name:
// diacritics are removed and runs of other characters become "_".
func FeatureID(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = nonSlugRe.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "_")
}

func stringProp(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
