package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/realtime"
)

// ServiceRecordID is the record ID of the service_status singleton.
const ServiceRecordID = "1"

// GetServiceStatus returns the service availability singleton.
func (db *DB) GetServiceStatus(ctx context.Context) (domain.ServiceStatus, error) {
	var s domain.ServiceStatus
	err := db.QueryRowContext(ctx, `SELECT online, last_modified FROM service_status WHERE id = 1`).
		Scan(&s.Online, &s.LastModified)
	if err != nil {
		return domain.ServiceStatus{}, fmt.Errorf("querying service status: %w", err)
	}
	s.LastModified = s.LastModified.UTC()
	return s, nil
}

// SetServiceOnline stores the availability flag and publishes an update.
func (db *DB) SetServiceOnline(ctx context.Context, online bool) (domain.ServiceStatus, error) {
	s := domain.ServiceStatus{Online: online, LastModified: time.Now().UTC()}
	err := db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO service_status (id, online, last_modified) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET online = excluded.online, last_modified = excluded.last_modified
		`, online, s.LastModified)
		if err != nil {
			return nil, fmt.Errorf("setting service status: %w", err)
		}
		return &pending{collection: realtime.CollectionServiceStatus, kind: realtime.KindUpdate, id: ServiceRecordID, record: s}, nil
	})
	if err != nil {
		return domain.ServiceStatus{}, err
	}
	return s, nil
}
