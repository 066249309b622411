package postgres

import (
	"database/sql"
	"fmt"

	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDeviceRow scans a devices row.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanDeviceRow(row scanner) (*storage.Device, error) {
	var (
		d         storage.Device
		typ       string
		threshold sql.NullFloat64
	)

	err := row.Scan(
		&d.DeviceID,
		&d.Name,
		&typ,
		&d.SiteID,
		&d.Status,
		&threshold,
		&d.ReadingInterval,
	)
	if err != nil {
		return nil, err
	}

	d.Type = reading.Type(typ)
	if threshold.Valid {
		v := threshold.Float64
		d.Threshold = &v
	}
	return &d, nil
}

func wrapScanErr(what string, err error) error {
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	return fmt.Errorf("failed to scan %s row: %w", what, err)
}
