// internal/database/snapshot.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SnapshotVersion  = 1
	restoreBatchSize = 500
)

// Snapshot is the JSON backup format.
type Snapshot struct {
	Version   int                                 `json:"version"`
	CreatedAt time.Time                           `json:"created_at"`
	Tables    map[string][]map[string]interface{} `json:"tables"`
}

// TakeSnapshot reads every table in SnapshotTables that exists.
func TakeSnapshot(ctx context.Context, db *gorm.DB) (*Snapshot, error) {
	snap := &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: time.Now().UTC(),
		Tables:    make(map[string][]map[string]interface{}, len(SnapshotTables)),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if IsPostgres(tx) {
			if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY").Error; err != nil {
				return fmt.Errorf("failed to start snapshot transaction: %w", err)
			}
		}
		for _, table := range SnapshotTables {
			if !tx.Migrator().HasTable(table) {
				continue
			}
			var rows []map[string]interface{}
			if err := tx.Table(table).Find(&rows).Error; err != nil {
				return fmt.Errorf("failed to read %s: %w", table, err)
			}
			for _, row := range rows {
				for k, v := range row {
					if b, ok := v.([]byte); ok {
						row[k] = string(b)
					}
				}
			}
			if rows == nil {
				rows = []map[string]interface{}{}
			}
			snap.Tables[table] = rows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// WriteSnapshot takes a snapshot and encodes it to w.
func WriteSnapshot(ctx context.Context, db *gorm.DB, w io.Writer) error {
	snap, err := TakeSnapshot(ctx, db)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot. Integral numbers decode as int64.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	for _, rows := range snap.Tables {
		for _, row := range rows {
			for k, v := range row {
				n, ok := v.(json.Number)
				if !ok {
					continue
				}
				if i, err := n.Int64(); err == nil {
					row[k] = i
				} else if f, err := n.Float64(); err == nil {
					row[k] = f
				}
			}
		}
	}
	return &snap, nil
}

// RestoreSnapshot replaces the contents of every table in the snapshot inside
// one transaction. On PostgreSQL foreign key triggers are suspended for the
// transaction so tables can be reloaded in any order. Tables missing from
// the snapshot are left as they are.
func RestoreSnapshot(ctx context.Context, db *gorm.DB, snap *Snapshot) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if IsPostgres(tx) {
			if err := tx.Exec("SET LOCAL session_replication_role = replica").Error; err != nil {
				return fmt.Errorf("failed to relax constraints: %w", err)
			}
		}

		for _, table := range SnapshotTables {
			rows, ok := snap.Tables[table]
			if !ok {
				continue
			}
			if err := tx.Exec("DELETE FROM ?", clause.Table{Name: table}).Error; err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
			if len(rows) == 0 {
				continue
			}
			if err := tx.Table(table).CreateInBatches(rows, restoreBatchSize).Error; err != nil {
				return fmt.Errorf("failed to restore %s: %w", table, err)
			}
			logrus.WithFields(logrus.Fields{"table": table, "rows": len(rows)}).Debug("Table restored")
		}
		return nil
	})
}
