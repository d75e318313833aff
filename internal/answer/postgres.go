package answer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists cache entries in the ai_cache table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetEntry(ctx context.Context, questionID string) (*Entry, error) {
	var (
		e          Entry
		answersRaw []byte
		ru         sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT question_id, correct_answers, explanation, explanation_ru
		FROM ai_cache
		WHERE question_id = $1
	`, questionID).Scan(&e.QuestionID, &answersRaw, &e.Explanation, &ru)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ai cache: %w", err)
	}
	if err := json.Unmarshal(answersRaw, &e.CorrectAnswers); err != nil {
		return nil, fmt.Errorf("decode correct answers: %w", err)
	}
	if ru.Valid {
		v := ru.String
		e.ExplanationRU = &v
	}
	return &e, nil
}

func (s *PostgresStore) InsertEntry(ctx context.Context, e Entry) error {
	answersRaw, err := json.Marshal(e.CorrectAnswers)
	if err != nil {
		return fmt.Errorf("marshal correct answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_cache (question_id, correct_answers, explanation, explanation_ru)
		VALUES ($1, $2::jsonb, $3, $4)
	`, e.QuestionID, answersRaw, e.Explanation, e.ExplanationRU)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert ai cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetRussianExplanation(ctx context.Context, questionID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ai_cache
		SET explanation_ru = $2
		WHERE question_id = $1
	`, questionID, text)
	if err != nil {
		return fmt.Errorf("update ai cache: %w", err)
	}
	return nil
}

// 23505 = unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
