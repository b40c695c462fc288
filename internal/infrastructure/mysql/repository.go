package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"letterbox/internal/application"
	"letterbox/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is an inbox store shared by several letterbox processes.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS letters (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			recipient VARCHAR(66) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			event_index BIGINT UNSIGNED NOT NULL,
			message VARBINARY(31) NOT NULL,
			received_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY letters_unique (recipient, block_number, tx_hash, event_index),
			KEY letters_block_idx (recipient, block_number)
		)`,
		`CREATE TABLE IF NOT EXISTS state (
			state_key VARCHAR(96) NOT NULL,
			state_value VARCHAR(64) NOT NULL,
			PRIMARY KEY (state_key)
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
	ctx, span := otel.Tracer("letterbox/mysql").Start(ctx, "mysql.store_letters", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.Int("letters.count", len(letters)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		recordSpanError(span, err)
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO letters (recipient, block_number, tx_hash, event_index, message, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	stored := 0
	for _, letter := range letters {
		res, err := stmt.ExecContext(ctx, strings.ToLower(recipient), letter.BlockNumber, letter.TxHash, letter.EventIndex, []byte(letter.Message), now)
		if err != nil {
			_ = tx.Rollback()
			recordSpanError(span, err)
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		recordSpanError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("letters.stored", stored))
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
	err := r.db.QueryRowContext(ctx, `SELECT state_value FROM state WHERE state_key = ?`, cursorKey(recipient)).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor %q: %w", value, err)
	}
	return block, true, nil
}

func (r *Repository) SetLastScannedBlock(ctx context.Context, recipient string, block uint64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO state (state_key, state_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE state_value = VALUES(state_value)`, cursorKey(recipient), strconv.FormatUint(block, 10))
	return err
}

func (r *Repository) ClearLastScannedBlock(ctx context.Context, recipient string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM state WHERE state_key = ?`, cursorKey(recipient))
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

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
