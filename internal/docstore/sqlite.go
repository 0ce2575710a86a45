package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/mattn/go-sqlite3"

	"sharing/internal/clock"
	"sharing/pkg/database"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// SQLiteBackend is a durable Backend on SQLite
// All commits go through one writer goroutine; reads run concurrently on the pool.
type SQLiteBackend struct {
	db           *sql.DB
	config       *database.Config
	clock        clock.Clock
	hub          *Hub
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// OpenSQLite opens the database, applies migrations and starts the writer
func OpenSQLite(config *database.Config, c clock.Clock) (*SQLiteBackend, error) {
	if c == nil {
		c = clock.RealClock{}
	}

	db, err := database.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := database.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}

	s := &SQLiteBackend{
		db:           db,
		config:       config,
		clock:        c,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	s.hub = NewHub(func(collection string) (*types.CollectionSnapshot, error) {
		return s.Snapshot(context.Background(), collection)
	})
	s.hub.Start()

	s.wg.Add(1)
	go s.writeLoop()

	glog.Infof("[sqlite] opened %s", config.DatabasePath)
	return s, nil
}

func (s *SQLiteBackend) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if isBusy(err) {
				glog.Warningf("[sqlite] database busy, retrying write once: %v", err)
				time.Sleep(100 * time.Millisecond)
				err = op.operation(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			glog.V(1).Infof("[sqlite] write loop shutting down")
			return
		}
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (s *SQLiteBackend) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(s.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-s.shutdown:
		// the writer finishes the operation in hand before exiting
		s.wg.Wait()
		select {
		case err := <-result:
			return err
		default:
			return ErrStoreClosed
		}
	}
}

func (s *SQLiteBackend) GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	if err := ValidatePath(collection, id); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return getDocument(ctx, s.db, collection, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getDocument(ctx context.Context, q queryer, collection, id string) (*types.DocumentSnapshot, error) {
	row := q.QueryRowContext(ctx,
		`SELECT data, version, update_time FROM documents WHERE collection = ? AND id = ?`,
		collection, id)

	var data string
	snap := &types.DocumentSnapshot{ID: id}
	err := row.Scan(&data, &snap.Version, &snap.UpdateTime)
	if err == sql.ErrNoRows {
		return missingSnapshot(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document %s: %w", docKey(collection, id), err)
	}
	if err := json.Unmarshal([]byte(data), &snap.Data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", docKey(collection, id), err)
	}
	snap.Exists = true
	return snap, nil
}

func (s *SQLiteBackend) Commit(ctx context.Context, writes []types.Write) (int64, error) {
	if len(writes) == 0 {
		return s.currentSeq(ctx)
	}

	var seq int64
	var staged []*stagedDocument
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current int64
		if err := tx.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'commit_seq'`).Scan(&current); err != nil {
			return fmt.Errorf("failed to read commit sequence: %w", err)
		}
		seq = current + 1

		staged, err = stage(writes, seq, s.clock.Now().UTC(), func(collection, id string) (*types.DocumentSnapshot, error) {
			return getDocument(ctx, tx, collection, id)
		})
		if err != nil {
			return err
		}

		for _, doc := range staged {
			if err := writeDocument(ctx, tx, doc); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE store_meta SET value = ? WHERE key = 'commit_seq'`, seq); err != nil {
			return fmt.Errorf("failed to advance commit sequence: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.hub.Publish(affectedCollections(staged))
	return seq, nil
}

func writeDocument(ctx context.Context, tx *sql.Tx, doc *stagedDocument) error {
	if !doc.snapshot.Exists {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			doc.collection, doc.snapshot.ID)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", docKey(doc.collection, doc.snapshot.ID), err)
		}
		return nil
	}

	data, err := json.Marshal(doc.snapshot.Data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", docKey(doc.collection, doc.snapshot.ID), err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, update_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			update_time = excluded.update_time
	`, doc.collection, doc.snapshot.ID, string(data), doc.snapshot.Version, doc.snapshot.UpdateTime)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", docKey(doc.collection, doc.snapshot.ID), err)
	}
	return nil
}

func (s *SQLiteBackend) currentSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'commit_seq'`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read commit sequence: %w", err)
	}
	return seq, nil
}

// Snapshot reads the collection and the commit sequence in one read transaction
func (s *SQLiteBackend) Snapshot(ctx context.Context, collection string) (*types.CollectionSnapshot, error) {
	if !types.IsValidCollectionPath(collection) {
		return nil, ErrInvalidPath
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &types.CollectionSnapshot{Collection: collection, Documents: []types.DocumentSnapshot{}}
	if err := tx.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'commit_seq'`).Scan(&snap.Seq); err != nil {
		return nil, fmt.Errorf("failed to read commit sequence: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, data, version, update_time FROM documents WHERE collection = ? ORDER BY id`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var data string
		doc := types.DocumentSnapshot{Exists: true}
		if err := rows.Scan(&doc.ID, &data, &doc.Version, &doc.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", docKey(collection, doc.ID), err)
		}
		snap.Documents = append(snap.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return snap, nil
}

func (s *SQLiteBackend) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	if !types.IsValidCollectionPath(collection) {
		return nil, ErrInvalidPath
	}
	return s.hub.Watch(ctx, collection, handler)
}

func (s *SQLiteBackend) RecordSignIn(ctx context.Context, signIn SignIn) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sign_ins (uid, method, created_at) VALUES (?, ?, ?)`,
			signIn.UID, string(signIn.Method), signIn.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to record sign-in: %w", err)
		}
		return nil
	})
}

// SignInCount returns how many sign-ins were recorded for uid
func (s *SQLiteBackend) SignInCount(ctx context.Context, uid string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sign_ins WHERE uid = ?`, uid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sign-ins: %w", err)
	}
	return count, nil
}

// HealthCheck validates connectivity and a read of the document table
func (s *SQLiteBackend) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents LIMIT 1`).Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close stops the watch hub and the writer, then closes the database
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.Stop()
	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
