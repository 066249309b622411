package postgres

// SQL queries for the site/device directory read model.

const (
	// querySchemaTables counts the directory tables; both must exist.
	querySchemaTables = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_name IN ('sites', 'devices')
	`

	queryGetSite = `
		SELECT id, name
		FROM sites
		WHERE id = $1
	`

	// queryGetDevice scopes the lookup to the site so a device id from another
	// tenant never resolves.
	queryGetDevice = `
		SELECT device_id, name, type, site_id, status, threshold, reading_interval
		FROM devices
		WHERE device_id = $1 AND site_id = $2
	`

	// queryListDevices treats an empty type as "all types".
	queryListDevices = `
		SELECT device_id, name, type, site_id, status, threshold, reading_interval
		FROM devices
		WHERE site_id = $1 AND ($2::text = '' OR type = $2::text)
		ORDER BY device_id
	`
)
