package translation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists translations in the translations table, which
// carries a unique constraint on (question_id, language).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetTranslation(ctx context.Context, questionID, lang string) (*Row, error) {
	var (
		row     Row
		optsRaw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT question_id, language, question_text, options
		FROM translations
		WHERE question_id = $1 AND language = $2
	`, questionID, lang).Scan(&row.QuestionID, &row.Language, &row.QuestionText, &optsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query translation: %w", err)
	}
	if err := json.Unmarshal(optsRaw, &row.Options); err != nil {
		return nil, fmt.Errorf("decode translated options: %w", err)
	}
	return &row, nil
}

func (s *PostgresStore) InsertTranslation(ctx context.Context, row Row) error {
	optsRaw, err := json.Marshal(row.Options)
	if err != nil {
		return fmt.Errorf("marshal translated options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO translations (question_id, language, question_text, options)
		VALUES ($1, $2, $3, $4::jsonb)
	`, row.QuestionID, row.Language, row.QuestionText, optsRaw)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert translation: %w", err)
	}
	return nil
}

// 23505 = unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
