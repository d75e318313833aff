// Package question owns the question bank: ingesting chat exports,
// paginated/filtered listing, random picks, and bank-level stats.
package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNoQuestions      = errors.New("no questions found in upload")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Question is a stored exam question. Rows are immutable after ingest;
// option cleaning happens at read time only.
type Question struct {
	ID               string    `json:"id"`
	Number           int       `json:"number"`
	Text             string    `json:"question"`
	Options          []string  `json:"options"`
	IsMultipleChoice bool      `json:"isMultipleChoice"`
	SelectCount      int       `json:"selectCount"`
	CreatedAt        time.Time `json:"-"`
}

// AIVerified is the cached grading attached to a question view.
type AIVerified struct {
	CorrectAnswers []string `json:"correctAnswers"`
	Explanation    string   `json:"explanation"`
	HasTranslation bool     `json:"hasTranslation"`
}

// View is the API projection of a question in the requested language.
type View struct {
	ID               string      `json:"id"`
	Number           int         `json:"number"`
	Question         string      `json:"question"`
	Options          []string    `json:"options"`
	IsMultipleChoice bool        `json:"isMultipleChoice"`
	SelectCount      int         `json:"selectCount"`
	AIVerified       *AIVerified `json:"aiVerified"`
	HasTranslation   bool        `json:"hasTranslation"`
}

type Page struct {
	Questions   []View `json:"questions"`
	Total       int    `json:"total"`
	Pages       int    `json:"pages"`
	CurrentPage int    `json:"currentPage"`
	PerPage     int    `json:"perPage"`
	HasNext     bool   `json:"hasNext"`
	HasPrev     bool   `json:"hasPrev"`
}

type Stats struct {
	TotalQuestions    int     `json:"totalQuestions"`
	CachedAnswers     int     `json:"cachedAnswers"`
	TranslationsCount int     `json:"translationsCount"`
	Coverage          float64 `json:"coverage"`
}

// Residual grading artifacts sometimes trail option text in exports.
// Stripped when rendering, never rewritten in storage.
var responseArtifactPattern = regexp.MustCompile(`(?is)\s*Your response(?:\(s\))?:.*$`)

func cleanOptionText(opt string) string {
	return strings.TrimSpace(responseArtifactPattern.ReplaceAllString(opt, ""))
}

func cleanOptions(opts []string) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = cleanOptionText(o)
	}
	return out
}

func (s *Service) ListPaginated(ctx context.Context, page, perPage int, search, lang string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 12
	}

	where := ""
	args := make([]any, 0, 3)
	if strings.TrimSpace(search) != "" {
		where = ` WHERE question ILIKE $1`
		args = append(args, "%"+strings.TrimSpace(search)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	offset := (page - 1) * perPage
	query := fmt.Sprintf(`
		SELECT id, number, question, options, is_multiple_choice, select_count, created_at
		FROM questions%s
		ORDER BY number
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0, perPage)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	views := make([]View, 0, len(items))
	for _, q := range items {
		v, err := s.buildView(ctx, q, lang)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	pages := 0
	if total > 0 {
		pages = int(math.Ceil(float64(total) / float64(perPage)))
	}
	return &Page{
		Questions:   views,
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		PerPage:     perPage,
		HasNext:     page < pages,
		HasPrev:     page > 1 && total > 0,
	}, nil
}

func (s *Service) Random(ctx context.Context, lang string) (*View, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, question, options, is_multiple_choice, select_count, created_at
		FROM questions
		ORDER BY RANDOM()
		LIMIT 1
	`)
	q, err := scanQuestionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	v, err := s.buildView(ctx, q, lang)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, question, options, is_multiple_choice, select_count, created_at
		FROM questions
		WHERE id = $1
	`, id)
	q, err := scanQuestionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&out.TotalQuestions); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_cache`).Scan(&out.CachedAnswers); err != nil {
		return nil, fmt.Errorf("count ai cache: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations WHERE language = 'ru'`).Scan(&out.TranslationsCount); err != nil {
		return nil, fmt.Errorf("count translations: %w", err)
	}
	if out.TotalQuestions > 0 {
		out.Coverage = math.Round(float64(out.CachedAnswers)/float64(out.TotalQuestions)*10000) / 100
	}
	return &out, nil
}

func (s *Service) buildView(ctx context.Context, q Question, lang string) (View, error) {
	v := View{
		ID:               q.ID,
		Number:           q.Number,
		Question:         q.Text,
		Options:          cleanOptions(q.Options),
		IsMultipleChoice: q.IsMultipleChoice,
		SelectCount:      q.SelectCount,
	}

	if lang != "" && lang != "en" {
		var text string
		var optsRaw []byte
		err := s.db.QueryRowContext(ctx, `
			SELECT question_text, options
			FROM translations
			WHERE question_id = $1 AND language = $2
		`, q.ID, lang).Scan(&text, &optsRaw)
		switch {
		case err == nil:
			var opts []string
			if err := json.Unmarshal(optsRaw, &opts); err != nil {
				return View{}, fmt.Errorf("decode translated options: %w", err)
			}
			v.Question = text
			v.Options = cleanOptions(opts)
			v.HasTranslation = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return View{}, fmt.Errorf("load translation: %w", err)
		}
	}

	var answersRaw []byte
	var explanation string
	var explanationRU sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT correct_answers, explanation, explanation_ru
		FROM ai_cache
		WHERE question_id = $1
	`, q.ID).Scan(&answersRaw, &explanation, &explanationRU)
	switch {
	case err == nil:
		var answers []string
		if err := json.Unmarshal(answersRaw, &answers); err != nil {
			return View{}, fmt.Errorf("decode correct answers: %w", err)
		}
		verified := &AIVerified{CorrectAnswers: answers, Explanation: explanation}
		if lang == "ru" && explanationRU.Valid {
			verified.Explanation = explanationRU.String
			verified.HasTranslation = true
		}
		v.AIVerified = verified
	case errors.Is(err, sql.ErrNoRows):
	default:
		return View{}, fmt.Errorf("load ai cache: %w", err)
	}

	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (Question, error) {
	var q Question
	var optsRaw []byte
	if err := r.Scan(&q.ID, &q.Number, &q.Text, &optsRaw, &q.IsMultipleChoice, &q.SelectCount, &q.CreatedAt); err != nil {
		return Question{}, fmt.Errorf("scan question: %w", err)
	}
	if err := json.Unmarshal(optsRaw, &q.Options); err != nil {
		return Question{}, fmt.Errorf("decode options: %w", err)
	}
	return q, nil
}

func scanQuestionRow(r *sql.Row) (Question, error) {
	var q Question
	var optsRaw []byte
	if err := r.Scan(&q.ID, &q.Number, &q.Text, &optsRaw, &q.IsMultipleChoice, &q.SelectCount, &q.CreatedAt); err != nil {
		return Question{}, err
	}
	if err := json.Unmarshal(optsRaw, &q.Options); err != nil {
		return Question{}, fmt.Errorf("decode options: %w", err)
	}
	return q, nil
}
