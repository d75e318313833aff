// Package answer is the read-through cache for AI-graded answers. It
// guarantees at most one outbound grading call per question within the
// process and at most one durable row across processes.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"awsquiz/internal/ai"
	"awsquiz/internal/keylock"
	"awsquiz/internal/question"
)

var (
	// ErrDuplicate is returned by Store.InsertEntry when a row for the
	// question already exists.
	ErrDuplicate = errors.New("cache entry already exists")

	// ErrStoreInconsistent means a duplicate-key conflict was followed by
	// an empty re-read. That breaks the one-row-per-question invariant
	// and cannot be recovered here.
	ErrStoreInconsistent = errors.New("cache entry missing after conflict")
)

const LangRussian = "ru"

// Entry is a persisted grading. ExplanationRU may be filled in after the
// row is created; everything else is written once.
type Entry struct {
	QuestionID     string
	CorrectAnswers []string
	Explanation    string
	ExplanationRU  *string
}

// Result is the public projection of an entry in the requested language.
type Result struct {
	CorrectAnswers []string `json:"correctAnswers"`
	Explanation    string   `json:"explanation"`
	HasTranslation bool     `json:"hasTranslation"`
}

// Outcome reports which branch satisfied a GetOrCompute call.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeCreated
	OutcomeConflictResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeCreated:
		return "created"
	case OutcomeConflictResolved:
		return "conflict_resolved"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Store persists cache entries. GetEntry returns (nil, nil) when no row
// exists; InsertEntry returns ErrDuplicate on a unique-key violation.
type Store interface {
	GetEntry(ctx context.Context, questionID string) (*Entry, error)
	InsertEntry(ctx context.Context, e Entry) error
	SetRussianExplanation(ctx context.Context, questionID, text string) error
}

// QuestionSource loads the question being graded.
type QuestionSource interface {
	Get(ctx context.Context, id string) (*question.Question, error)
}

// AnswerProvider grades a question. Satisfied by *ai.Client.
type AnswerProvider interface {
	AnswerQuestion(ctx context.Context, text string, options []string, isMultiple bool, selectCount int) (ai.AnswerResult, error)
}

// Translator renders text into Russian. Satisfied by *ai.Client.
type Translator interface {
	Translate(ctx context.Context, text string, kind ai.TextKind) (string, error)
}

type Service struct {
	store      Store
	questions  QuestionSource
	provider   AnswerProvider
	translator Translator
	locks      *keylock.Registry
}

func NewService(store Store, questions QuestionSource, provider AnswerProvider, translator Translator, locks *keylock.Registry) *Service {
	return &Service{
		store:      store,
		questions:  questions,
		provider:   provider,
		translator: translator,
		locks:      locks,
	}
}

// GetOrCompute returns the cached grading for a question, computing and
// persisting it on first request. The cache read runs lock-free; only a
// miss (or a missing Russian explanation) takes the per-question lock.
func (s *Service) GetOrCompute(ctx context.Context, questionID, lang string) (*Result, Outcome, error) {
	entry, err := s.store.GetEntry(ctx, questionID)
	if err != nil {
		return nil, 0, fmt.Errorf("read cache: %w", err)
	}
	if entry != nil {
		if lang == LangRussian && entry.ExplanationRU == nil {
			entry = s.fillRussianExplanation(ctx, entry)
		}
		return entry.result(lang), OutcomeFound, nil
	}

	lock := s.locks.Get(questionID)
	lock.Lock()
	defer lock.Unlock()

	// A disconnecting caller must not abort the shared computation;
	// waiters on the same lock still want the persisted row.
	ctx = context.WithoutCancel(ctx)

	entry, err = s.store.GetEntry(ctx, questionID)
	if err != nil {
		return nil, 0, fmt.Errorf("re-read cache: %w", err)
	}
	if entry != nil {
		return entry.result(lang), OutcomeFound, nil
	}

	q, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return nil, 0, err
	}

	res, err := s.provider.AnswerQuestion(ctx, q.Text, q.Options, q.IsMultipleChoice, q.SelectCount)
	if err != nil {
		return nil, 0, err
	}

	fresh := Entry{
		QuestionID:     questionID,
		CorrectAnswers: res.CorrectAnswers,
		Explanation:    res.Explanation,
	}
	if lang == LangRussian {
		if ru, terr := s.translator.Translate(ctx, res.Explanation, ai.KindExplanation); terr != nil {
			log.Printf("translate explanation for %s: %v", questionID, terr)
		} else {
			fresh.ExplanationRU = &ru
		}
	}

	if err := s.store.InsertEntry(ctx, fresh); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, 0, fmt.Errorf("persist cache: %w", err)
		}
		// Another process committed between the re-check and the write.
		// Discard ours and serve theirs.
		existing, rerr := s.store.GetEntry(ctx, questionID)
		if rerr != nil {
			return nil, 0, fmt.Errorf("re-read after conflict: %w", rerr)
		}
		if existing == nil {
			log.Printf("SEVERE: ai cache row for question %s vanished after duplicate-key conflict", questionID)
			return nil, 0, ErrStoreInconsistent
		}
		return existing.result(lang), OutcomeConflictResolved, nil
	}

	log.Printf("cached ai grading for question %s", questionID)
	return fresh.result(lang), OutcomeCreated, nil
}

// fillRussianExplanation lazily adds the Russian explanation to an
// existing entry. Failures are logged and swallowed: the caller still
// gets a valid answer, just untranslated.
func (s *Service) fillRussianExplanation(ctx context.Context, entry *Entry) *Entry {
	lock := s.locks.Get("translate_" + entry.QuestionID)
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	fresh, err := s.store.GetEntry(ctx, entry.QuestionID)
	if err != nil || fresh == nil {
		if err != nil {
			log.Printf("re-read cache for %s: %v", entry.QuestionID, err)
		}
		return entry
	}
	if fresh.ExplanationRU != nil {
		return fresh
	}

	ru, err := s.translator.Translate(ctx, fresh.Explanation, ai.KindExplanation)
	if err != nil {
		log.Printf("translate explanation for %s: %v", entry.QuestionID, err)
		return fresh
	}
	if err := s.store.SetRussianExplanation(ctx, fresh.QuestionID, ru); err != nil {
		log.Printf("persist russian explanation for %s: %v", entry.QuestionID, err)
		return fresh
	}
	fresh.ExplanationRU = &ru
	return fresh
}

func (e *Entry) result(lang string) *Result {
	r := &Result{CorrectAnswers: e.CorrectAnswers, Explanation: e.Explanation}
	if lang == LangRussian && e.ExplanationRU != nil {
		r.Explanation = *e.ExplanationRU
		r.HasTranslation = true
	}
	return r
}
