// Package translation is the read-through cache for whole-question
// Russian translations, keyed by (question id, language).
package translation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"awsquiz/internal/ai"
	"awsquiz/internal/keylock"
	"awsquiz/internal/question"
)

var (
	ErrDuplicate         = errors.New("translation already exists")
	ErrStoreInconsistent = errors.New("translation missing after conflict")
)

// Language is the fixed target. The schema keys rows by (question id,
// language), so adding languages later is a data change, not a schema one.
const Language = "ru"

// Row is a persisted translation. Never updated after creation.
type Row struct {
	QuestionID   string
	Language     string
	QuestionText string
	Options      []string
}

// Result is the API projection of a translation.
type Result struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Outcome reports which branch satisfied a GetOrCompute call.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeCreated
	OutcomeConflictResolved
)

// Store persists translations. GetTranslation returns (nil, nil) when no
// row exists; InsertTranslation returns ErrDuplicate on a unique-key
// violation.
type Store interface {
	GetTranslation(ctx context.Context, questionID, lang string) (*Row, error)
	InsertTranslation(ctx context.Context, row Row) error
}

type QuestionSource interface {
	Get(ctx context.Context, id string) (*question.Question, error)
}

type Translator interface {
	Translate(ctx context.Context, text string, kind ai.TextKind) (string, error)
}

type Service struct {
	store      Store
	questions  QuestionSource
	translator Translator
	locks      *keylock.Registry
}

func NewService(store Store, questions QuestionSource, translator Translator, locks *keylock.Registry) *Service {
	return &Service{
		store:      store,
		questions:  questions,
		translator: translator,
		locks:      locks,
	}
}

// GetOrCompute returns the stored translation for a question, producing
// and persisting it on first request. The source question is never
// mutated, and a stored translation is final: repeat calls return the
// same row without re-translating.
func (s *Service) GetOrCompute(ctx context.Context, questionID string) (*Result, Outcome, error) {
	row, err := s.store.GetTranslation(ctx, questionID, Language)
	if err != nil {
		return nil, 0, fmt.Errorf("read translation: %w", err)
	}
	if row != nil {
		return row.result(), OutcomeFound, nil
	}

	// Distinct namespace from the answer-cache locks: a pending grading
	// and a pending translation for the same question must not contend.
	lock := s.locks.Get("q_translate_" + questionID)
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	row, err = s.store.GetTranslation(ctx, questionID, Language)
	if err != nil {
		return nil, 0, fmt.Errorf("re-read translation: %w", err)
	}
	if row != nil {
		return row.result(), OutcomeFound, nil
	}

	q, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return nil, 0, err
	}

	translatedText, err := s.translator.Translate(ctx, q.Text, ai.KindQuestion)
	if err != nil {
		return nil, 0, err
	}

	translatedOptions := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		translatedOptions = append(translatedOptions, s.translateOption(ctx, questionID, opt))
	}

	fresh := Row{
		QuestionID:   questionID,
		Language:     Language,
		QuestionText: translatedText,
		Options:      translatedOptions,
	}
	if err := s.store.InsertTranslation(ctx, fresh); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, 0, fmt.Errorf("persist translation: %w", err)
		}
		existing, rerr := s.store.GetTranslation(ctx, questionID, Language)
		if rerr != nil {
			return nil, 0, fmt.Errorf("re-read after conflict: %w", rerr)
		}
		if existing == nil {
			log.Printf("SEVERE: translation row for question %s vanished after duplicate-key conflict", questionID)
			return nil, 0, ErrStoreInconsistent
		}
		return existing.result(), OutcomeConflictResolved, nil
	}

	return fresh.result(), OutcomeCreated, nil
}

// Accepts "A) ", "A). ", "A.", "A:" and similar label spellings seen in
// exports.
var optionLabelPattern = regexp.MustCompile(`^([A-Z])[\)\.:]+\s*`)

// translateOption translates one option, keeping the leading letter
// label out of the translator's hands. An unparseable label falls back
// to translating the text verbatim; a translation failure keeps the
// original text so one bad option never fails the whole question.
func (s *Service) translateOption(ctx context.Context, questionID, opt string) string {
	m := optionLabelPattern.FindStringSubmatch(opt)
	if m == nil {
		log.Printf("unexpected option label format for question %s: %q", questionID, truncate(opt, 40))
		translated, err := s.translator.Translate(ctx, opt, ai.KindQuestion)
		if err != nil {
			log.Printf("translate option for %s: %v", questionID, err)
			return opt
		}
		return translated
	}

	letter := m[1]
	body := opt[len(m[0]):]
	translated, err := s.translator.Translate(ctx, body, ai.KindQuestion)
	if err != nil {
		log.Printf("translate option %s for %s: %v", letter, questionID, err)
		return opt
	}
	return letter + ") " + strings.TrimSpace(translated)
}

func (r *Row) result() *Result {
	return &Result{Question: r.QuestionText, Options: r.Options}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
