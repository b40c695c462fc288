package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"letterbox/internal/application"
	"letterbox/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository is a single-file inbox store.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recipient TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			tx_hash TEXT NOT NULL,
			event_index INTEGER NOT NULL,
			message BLOB NOT NULL,
			received_at INTEGER NOT NULL,
			UNIQUE(recipient, block_number, tx_hash, event_index)
		)`,
		`CREATE INDEX IF NOT EXISTS letters_recipient_block ON letters (recipient, block_number)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) StoreLetters(ctx context.Context, recipient string, letters []domain.Letter) (int, error) {
	if len(letters) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO letters (recipient, block_number, tx_hash, event_index, message, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(recipient, block_number, tx_hash, event_index) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	stored := 0
	for _, letter := range letters {
		res, err := stmt.ExecContext(ctx, strings.ToLower(recipient), letter.BlockNumber, letter.TxHash, letter.EventIndex, []byte(letter.Message), now)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stored, nil
}

func (r *Repository) QueryLetters(ctx context.Context, filter application.LetterQueryFilter) ([]domain.StoredLetter, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if filter.Recipient != "" {
		clauses = append(clauses, "recipient = ?")
		args = append(args, strings.ToLower(filter.Recipient))
	}
	if filter.FromBlock != nil {
		clauses = append(clauses, "block_number >= ?")
		args = append(args, *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		clauses = append(clauses, "block_number <= ?")
		args = append(args, *filter.ToBlock)
	}

	query := `SELECT recipient, block_number, tx_hash, event_index, message FROM letters`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY block_number ASC, id ASC LIMIT ?"
	args = append(args, application.NormalizeLetterLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := []domain.StoredLetter{}
	for rows.Next() {
		var letter domain.StoredLetter
		var message []byte
		if err := rows.Scan(&letter.Recipient, &letter.BlockNumber, &letter.TxHash, &letter.EventIndex, &message); err != nil {
			return nil, err
		}
		letter.Message = string(message)
		letters = append(letters, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return letters, nil
}

func (r *Repository) LastScannedBlock(ctx context.Context, recipient string) (uint64, bool, error) {
	var value string
	if err := r.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, cursorKey(recipient)).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var block uint64
	if _, err := fmt.Sscanf(value, "%d", &block); err != nil {
		return 0, false, err
	}
	return block, true, nil
}

func (r *Repository) SetLastScannedBlock(ctx context.Context, recipient string, block uint64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, cursorKey(recipient), fmt.Sprintf("%d", block))
	return err
}

func (r *Repository) ClearLastScannedBlock(ctx context.Context, recipient string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, cursorKey(recipient))
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func cursorKey(recipient string) string {
	return "last_block:" + strings.ToLower(recipient)
}
