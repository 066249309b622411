package memory

import (
	"fmt"
	"os"

	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/tenant"
	"gopkg.in/yaml.v3"
)

// Fixtures is the on-disk YAML shape used to seed the in-memory backends.
//
//	sites:
//	  - id: site-1
//	    name: North Plant
//	    devices:
//	      - deviceId: e-1
//	        type: energy
//	    readings:
//	      energy:
//	        - {deviceId: e-1, timestamp: 1704067200000, value: 100}
type Fixtures struct {
	Sites []FixtureSite `yaml:"sites"`
}

type FixtureSite struct {
	ID       string                              `yaml:"id"`
	Name     string                              `yaml:"name"`
	Devices  []FixtureDevice                     `yaml:"devices"`
	Readings map[string][]map[string]interface{} `yaml:"readings"`
}

type FixtureDevice struct {
	DeviceID        string   `yaml:"deviceId"`
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Status          string   `yaml:"status"`
	Threshold       *float64 `yaml:"threshold"`
	ReadingInterval int      `yaml:"readingInterval"`
}

// LoadFixtures reads and validates a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %q: %w", path, err)
	}
	return ParseFixtures(content)
}

// ParseFixtures decodes and validates fixture YAML.
func ParseFixtures(content []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	seen := make(map[string]bool)
	for _, site := range f.Sites {
		if site.ID == "" {
			return nil, fmt.Errorf("fixture site without id")
		}
		if seen[site.ID] {
			return nil, fmt.Errorf("duplicate fixture site %q", site.ID)
		}
		seen[site.ID] = true

		for _, d := range site.Devices {
			if d.DeviceID == "" {
				return nil, fmt.Errorf("site %q: device without deviceId", site.ID)
			}
			if _, err := reading.ParseType(d.Type); err != nil {
				return nil, fmt.Errorf("site %q device %q: %w", site.ID, d.DeviceID, err)
			}
		}
		for collection := range site.Readings {
			if _, err := reading.ParseType(collection); err != nil {
				return nil, fmt.Errorf("site %q readings: %w", site.ID, err)
			}
		}
	}
	return &f, nil
}

// Apply seeds dir and store. Readings go to the tenant store of each site,
// in the collection of their parsed device type.
func (f *Fixtures) Apply(dir *Directory, store *Store) {
	for _, site := range f.Sites {
		dir.PutSite(storage.Site{ID: site.ID, Name: site.Name})

		for _, d := range site.Devices {
			typ, _ := reading.ParseType(d.Type)
			status := d.Status
			if status == "" {
				status = "active"
			}
			interval := d.ReadingInterval
			if interval == 0 {
				interval = 5
			}
			dir.PutDevice(storage.Device{
				DeviceID:        d.DeviceID,
				Name:            d.Name,
				Type:            typ,
				SiteID:          site.ID,
				Status:          status,
				Threshold:       d.Threshold,
				ReadingInterval: interval,
			})
		}

		key := tenant.StoreKey(site.Name)
		for collection, docs := range site.Readings {
			typ, _ := reading.ParseType(collection)
			for _, doc := range docs {
				store.Insert(key, typ.Collection(), reading.Document(doc))
			}
		}
	}
}
