package rundb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BucketRuns holds one JSON-encoded RunRecord per run UUID.
const BucketRuns = "runs"

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// DB wraps a bbolt database tracking brute runs.
type DB struct {
	db   *bolt.DB
	path string
}

// RunRecord captures one invocation of the search driver.
type RunRecord struct {
	UUID      string    `json:"uuid"`
	Target    string    `json:"target"`
	Solver    string    `json:"solver"`
	Status    string    `json:"status"` // "running" | "success" | "failed"
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Discovered inputs, populated when the run finishes.
	Argv      []string `json:"argv,omitempty"`
	Stdin     string   `json:"stdin,omitempty"`
	InstCount int64    `json:"inst_count,omitempty"`
}

// OpenDB opens or creates the run database at path, initializing the runs
// bucket. The file is created with 0600 permissions.
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, &DatabaseError{Op: "create bucket", Bucket: BucketRuns, Err: err}
	}

	return &DB{db: bdb, path: path}, nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	if db.db == nil {
		return ErrDatabaseNotOpen
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// StartRun records a new run in the "running" state.
func (db *DB) StartRun(rec *RunRecord) error {
	if db.db == nil {
		return ErrDatabaseNotOpen
	}
	if rec.UUID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	if rec.Target == "" {
		return &ValidationError{Field: "target", Err: ErrEmptyTarget}
	}
	rec.Status = RunStatusRunning
	return db.saveRecord(rec)
}

// FinishRun marks a run finished with the given status and discovered
// inputs.
func (db *DB) FinishRun(runID, status string, argv []string, stdin string, count int64, end time.Time) error {
	if db.db == nil {
		return ErrDatabaseNotOpen
	}
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	rec, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Argv = argv
	rec.Stdin = stdin
	rec.InstCount = count
	rec.EndTime = end
	return db.saveRecord(rec)
}

// GetRun fetches a run record by its ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	if db.db == nil {
		return nil, ErrDatabaseNotOpen
	}
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	var rec RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return ErrBucketNotFound
		}
		data := bucket.Get([]byte(runID))
		if data == nil {
			return ErrRecordNotFound
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptedData, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns all run records in key (run ID) order.
func (db *DB) ListRuns() ([]*RunRecord, error) {
	if db.db == nil {
		return nil, ErrDatabaseNotOpen
	}

	var recs []*RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptedData, err)
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// DeleteRun removes a run record.
func (db *DB) DeleteRun(runID string) error {
	if db.db == nil {
		return ErrDatabaseNotOpen
	}
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return ErrBucketNotFound
		}
		if bucket.Get([]byte(runID)) == nil {
			return ErrRecordNotFound
		}
		return bucket.Delete([]byte(runID))
	})
}

func (db *DB) saveRecord(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &DatabaseError{Op: "encode record", Bucket: BucketRuns, Err: err}
	}
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Put([]byte(rec.UUID), data)
	})
}
