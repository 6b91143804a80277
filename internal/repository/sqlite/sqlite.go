package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"digraph/internal/domain"
	"digraph/internal/geometry"
	"digraph/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.SnapshotStore using SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.SnapshotStore = (*Repository)(nil)

// New creates a new SQLite repository. ":memory:" gives a private in-memory
// database.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		if dbPath != ":memory:" {
			dsn += "&_pragma=journal_mode(WAL)"
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: in-memory databases are per connection and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		file_path TEXT,
		node_count INTEGER NOT NULL DEFAULT 0,
		edge_count INTEGER NOT NULL DEFAULT 0,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		document TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT,
		pos_x REAL NOT NULL DEFAULT 0,
		pos_y REAL NOT NULL DEFAULT 0,
		pos_z REAL NOT NULL DEFAULT 0,
		size JSON,
		PRIMARY KEY (document, id),
		FOREIGN KEY (document) REFERENCES documents(key) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS pins (
		document TEXT NOT NULL,
		node_id TEXT NOT NULL,
		id TEXT NOT NULL,
		direction TEXT NOT NULL,
		idx INTEGER NOT NULL,
		label TEXT,
		capacity INTEGER NOT NULL DEFAULT 1,
		size JSON,
		PRIMARY KEY (document, node_id, id),
		FOREIGN KEY (document, node_id) REFERENCES nodes(document, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS edges (
		document TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		source_node TEXT NOT NULL,
		source_pin TEXT NOT NULL,
		target_node TEXT NOT NULL,
		target_pin TEXT NOT NULL,
		PRIMARY KEY (document, id),
		FOREIGN KEY (document) REFERENCES documents(key) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_pins_node ON pins(document, node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(document, source_node);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(document, target_node);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveSnapshot replaces the stored snapshot for key in one transaction
func (r *Repository) SaveSnapshot(ctx context.Context, key string, s *domain.Snapshot) error {
	if key == "" {
		return fmt.Errorf("save snapshot: %w", domain.ErrEmptyID)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDocument(ctx, tx, key); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (key, file_path, node_count, edge_count, saved_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, stringToNull(s.FilePath), len(s.Nodes), len(s.Edges), timeToText(r.now()))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for seq, n := range s.Nodes {
		size, err := marshalToNull(n.Size)
		if err != nil {
			return fmt.Errorf("failed to marshal node size: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (document, id, seq, name, pos_x, pos_y, pos_z, size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, key, n.ID, seq, stringToNull(n.Name), n.Position.X, n.Position.Y, n.Position.Z, size)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}

		for _, p := range n.Pins() {
			pinSize, err := marshalToNull(&p.Size)
			if err != nil {
				return fmt.Errorf("failed to marshal pin size: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO pins (document, node_id, id, direction, idx, label, capacity, size)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, key, n.ID, p.ID, p.Direction.String(), p.Index, stringToNull(p.Label), p.Capacity, pinSize)
			if err != nil {
				return fmt.Errorf("failed to insert pin %s: %w", p.ID, err)
			}
		}
	}

	for seq, e := range s.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (document, id, seq, source_node, source_pin, target_node, target_pin)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, key, e.ID, seq, e.SourceNodeID, e.SourcePinID, e.TargetNodeID, e.TargetPinID)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the stored snapshot for key, or nil if there is none
func (r *Repository) LoadSnapshot(ctx context.Context, key string) (*domain.Snapshot, error) {
	var filePath sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT file_path FROM documents WHERE key = ?`, key).Scan(&filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	s := domain.NewSnapshot()
	s.FilePath = nullToString(filePath)

	byID := make(map[string]*domain.Node)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, pos_x, pos_y, pos_z, size
		FROM nodes WHERE document = ? ORDER BY seq
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         string
			name, size sql.NullString
			x, y, z    float64
		)
		if err := rows.Scan(&id, &name, &x, &y, &z, &size); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n := domain.NewNode(id, nullToString(name))
		n.Position = geometry.Pt(x, y, z)
		if size.Valid {
			n.Size = &geometry.Size3{}
			if err := unmarshalJSONField(size, n.Size); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node size: %w", err)
			}
		}
		s.AddNode(n)
		byID[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadPins(ctx, key, byID); err != nil {
		return nil, err
	}
	if err := r.loadEdges(ctx, key, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) loadPins(ctx context.Context, key string, byID map[string]*domain.Node) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, id, direction, idx, label, capacity, size
		FROM pins WHERE document = ? ORDER BY node_id, direction, idx
	`, key)
	if err != nil {
		return fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nodeID, id, direction string
			idx, capacity         int
			label, size           sql.NullString
		)
		if err := rows.Scan(&nodeID, &id, &direction, &idx, &label, &capacity, &size); err != nil {
			return fmt.Errorf("failed to scan pin: %w", err)
		}
		n := byID[nodeID]
		if n == nil {
			continue
		}
		p := &domain.Pin{
			ID:        id,
			NodeID:    nodeID,
			Direction: domain.ParsePinDirection(direction),
			Index:     idx,
			Label:     nullToString(label),
			Capacity:  capacity,
			Size:      domain.DefaultPinSize,
		}
		if err := unmarshalJSONField(size, &p.Size); err != nil {
			return fmt.Errorf("failed to unmarshal pin size: %w", err)
		}
		if p.Direction == domain.Output {
			n.Outputs = append(n.Outputs, p)
		} else {
			n.Inputs = append(n.Inputs, p)
		}
	}
	return rows.Err()
}

func (r *Repository) loadEdges(ctx context.Context, key string, s *domain.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node, source_pin, target_node, target_pin
		FROM edges WHERE document = ? ORDER BY seq
	`, key)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.SourcePinID, &e.TargetNodeID, &e.TargetPinID); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		s.AddEdge(e)
	}
	return rows.Err()
}

// ListDocuments returns every stored document, most recently saved first
func (r *Repository) ListDocuments(ctx context.Context) ([]repository.DocumentInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, node_count, edge_count, saved_at
		FROM documents ORDER BY saved_at DESC, key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]repository.DocumentInfo, 0)
	for rows.Next() {
		var (
			info    repository.DocumentInfo
			savedAt string
		)
		if err := rows.Scan(&info.Key, &info.Nodes, &info.Edges, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		info.SavedAt = textToTime(savedAt)
		docs = append(docs, info)
	}
	return docs, rows.Err()
}

// DeleteSnapshot removes the stored snapshot for key. Deleting a missing key
// is not an error.
func (r *Repository) DeleteSnapshot(ctx context.Context, key string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDocument(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteDocument(ctx context.Context, tx *sql.Tx, key string) error {
	for _, table := range []string{"edges", "pins", "nodes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE document = ?", key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
