// Package memory holds in-memory implementations of the storage contracts.
// Useful for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
)

// Directory is an in-memory storage.Directory.
type Directory struct {
	mu      sync.RWMutex
	sites   map[string]storage.Site
	devices map[string]storage.Device
}

func NewDirectory() *Directory {
	return &Directory{
		sites:   make(map[string]storage.Site),
		devices: make(map[string]storage.Device),
	}
}

// PutSite creates or replaces a site.
func (d *Directory) PutSite(site storage.Site) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sites[site.ID] = site
}

// PutDevice creates or replaces a device.
func (d *Directory) PutDevice(device storage.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[device.DeviceID] = device
}

func (d *Directory) GetSite(_ context.Context, siteID string) (*storage.Site, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	site, ok := d.sites[siteID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &site, nil
}

func (d *Directory) GetDevice(_ context.Context, deviceID, siteID string) (*storage.Device, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	device, ok := d.devices[deviceID]
	if !ok || device.SiteID != siteID {
		return nil, storage.ErrNotFound
	}
	return &device, nil
}

func (d *Directory) ListDevices(_ context.Context, siteID string, typ reading.Type) ([]storage.Device, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []storage.Device
	for _, device := range d.devices {
		if device.SiteID != siteID {
			continue
		}
		if typ != "" && device.Type != typ {
			continue
		}
		result = append(result, device)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result, nil
}

func (d *Directory) Ping(context.Context) error { return nil }
