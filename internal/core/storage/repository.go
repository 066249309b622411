package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sitewatch/sitewatch/internal/core/reading"
)

// ErrNotFound is returned by directory lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Site is a tenant as known to the directory.
type Site struct {
	ID   string
	Name string
}

// Device is a metered device as known to the directory.
type Device struct {
	DeviceID        string
	Name            string
	Type            reading.Type
	SiteID          string
	Status          string
	Threshold       *float64
	ReadingInterval int
}

// DisplayName is the device name, or its id when unnamed.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.DeviceID
}

// Directory is the read-only site/device registry.
type Directory interface {
	GetSite(ctx context.Context, siteID string) (*Site, error)
	GetDevice(ctx context.Context, deviceID, siteID string) (*Device, error)
	// ListDevices returns the devices of a site, all types when typ is empty.
	ListDevices(ctx context.Context, siteID string, typ reading.Type) ([]Device, error)
	Ping(ctx context.Context) error
}

// ReadingQuery selects readings that carry both a device id and Field.
type ReadingQuery struct {
	Collection string
	Field      string
	// DeviceIDs restricts the selection when non-empty.
	DeviceIDs []string
}

// DocumentQuery selects the raw documents of one device.
// From/To are compared against epoch-millisecond and native-date timestamps;
// a zero bound is open.
type DocumentQuery struct {
	Collection string
	DeviceID   string
	From       time.Time
	To         time.Time
	Ascending  bool
	Offset     int64
	Limit      int64
}

// Session is a read-only handle on one tenant store. It must be closed on
// every exit path.
type Session interface {
	Readings(ctx context.Context, q ReadingQuery) ([]reading.Reading, error)
	Documents(ctx context.Context, q DocumentQuery) ([]reading.Document, error)
	// CountDocuments ignores Offset and Limit.
	CountDocuments(ctx context.Context, q DocumentQuery) (int64, error)
	Close(ctx context.Context) error
}

// SessionOpener opens sessions bound to a tenant store key.
type SessionOpener interface {
	Open(ctx context.Context, storeKey string) (Session, error)
}
