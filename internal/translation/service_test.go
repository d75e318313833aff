package translation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"awsquiz/internal/ai"
	"awsquiz/internal/keylock"
	"awsquiz/internal/question"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]Row

	insertCalls int32

	insertFn func(ctx context.Context, row Row) error
	getFn    func(ctx context.Context, questionID, lang string) (*Row, error)
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Row)}
}

func rowKey(questionID, lang string) string {
	return questionID + "|" + lang
}

func (m *memStore) GetTranslation(ctx context.Context, questionID, lang string) (*Row, error) {
	if m.getFn != nil {
		return m.getFn(ctx, questionID, lang)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[rowKey(questionID, lang)]
	if !ok {
		return nil, nil
	}
	copied := row
	return &copied, nil
}

func (m *memStore) InsertTranslation(ctx context.Context, row Row) error {
	atomic.AddInt32(&m.insertCalls, 1)
	if m.insertFn != nil {
		return m.insertFn(ctx, row)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := rowKey(row.QuestionID, row.Language)
	if _, ok := m.rows[k]; ok {
		return ErrDuplicate
	}
	m.rows[k] = row
	return nil
}

type stubQuestions struct {
	byID map[string]*question.Question
}

func (s *stubQuestions) Get(ctx context.Context, id string) (*question.Question, error) {
	q, ok := s.byID[id]
	if !ok {
		return nil, question.ErrQuestionNotFound
	}
	copied := *q
	return &copied, nil
}

type stubTranslator struct {
	calls  int32
	delay  time.Duration
	failOn string
}

func (t *stubTranslator) Translate(ctx context.Context, text string, kind ai.TextKind) (string, error) {
	atomic.AddInt32(&t.calls, 1)
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	if t.failOn != "" && text == t.failOn {
		return "", errors.New("translate failed")
	}
	return "ru: " + text, nil
}

func sourceQuestion() *question.Question {
	return &question.Question{
		ID:          "q1",
		Number:      12,
		Text:        "What is S3?",
		Options:     []string{"A) Storage", "B) Compute", "C) Network"},
		SelectCount: 2,
	}
}

func newTestService(store Store, questions QuestionSource, translator Translator) *Service {
	return NewService(store, questions, translator, keylock.New())
}

func TestGetOrComputeTranslatesAndPersists(t *testing.T) {
	store := newMemStore()
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}

	svc := newTestService(store, questions, &stubTranslator{})
	res, outcome, err := svc.GetOrCompute(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected OutcomeCreated, got %d", outcome)
	}
	if res.Question != "ru: What is S3?" {
		t.Fatalf("unexpected question %q", res.Question)
	}
	want := []string{"A) ru: Storage", "B) ru: Compute", "C) ru: Network"}
	if !reflect.DeepEqual(res.Options, want) {
		t.Fatalf("unexpected options %v", res.Options)
	}
	if _, ok := store.rows[rowKey("q1", Language)]; !ok {
		t.Fatalf("expected persisted translation")
	}
}

func TestGetOrComputeSecondCallIsStable(t *testing.T) {
	store := newMemStore()
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}
	translator := &stubTranslator{}

	svc := newTestService(store, questions, translator)
	first, _, err := svc.GetOrCompute(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callsAfterFirst := atomic.LoadInt32(&translator.calls)

	second, outcome, err := svc.GetOrCompute(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeFound {
		t.Fatalf("expected OutcomeFound on second call, got %d", outcome)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second call diverged: %+v vs %+v", first, second)
	}
	if atomic.LoadInt32(&translator.calls) != callsAfterFirst {
		t.Fatalf("second call must not re-translate")
	}
}

func TestGetOrComputeDoesNotMutateSource(t *testing.T) {
	src := sourceQuestion()
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": src}}

	svc := newTestService(newMemStore(), questions, &stubTranslator{})
	if _, _, err := svc.GetOrCompute(context.Background(), "q1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Text != "What is S3?" || src.Options[0] != "A) Storage" {
		t.Fatalf("source question mutated: %+v", src)
	}
}

func TestGetOrComputeNotFound(t *testing.T) {
	svc := newTestService(newMemStore(), &stubQuestions{}, &stubTranslator{})
	_, _, err := svc.GetOrCompute(context.Background(), "missing")
	if !errors.Is(err, question.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestGetOrComputePerOptionFailureKeepsOriginal(t *testing.T) {
	store := newMemStore()
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}
	translator := &stubTranslator{failOn: "Compute"}

	svc := newTestService(store, questions, translator)
	res, _, err := svc.GetOrCompute(context.Background(), "q1")
	if err != nil {
		t.Fatalf("one failing option must not fail the request: %v", err)
	}
	want := []string{"A) ru: Storage", "B) Compute", "C) ru: Network"}
	if !reflect.DeepEqual(res.Options, want) {
		t.Fatalf("unexpected options %v", res.Options)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	store := newMemStore()
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}
	translator := &stubTranslator{delay: 20 * time.Millisecond}

	svc := newTestService(store, questions, translator)
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.GetOrCompute(context.Background(), "q1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&store.insertCalls); got != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", got)
	}
	// One question + three options, translated once.
	if got := atomic.LoadInt32(&translator.calls); got != 4 {
		t.Fatalf("expected 4 translator calls, got %d", got)
	}
}

func TestGetOrComputeConflictResolved(t *testing.T) {
	store := newMemStore()
	winner := Row{QuestionID: "q1", Language: Language, QuestionText: "theirs", Options: []string{"A) x"}}
	var reads int32
	store.getFn = func(ctx context.Context, questionID, lang string) (*Row, error) {
		if atomic.AddInt32(&reads, 1) <= 2 {
			return nil, nil
		}
		copied := winner
		return &copied, nil
	}
	store.insertFn = func(ctx context.Context, row Row) error {
		return ErrDuplicate
	}
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}

	svc := newTestService(store, questions, &stubTranslator{})
	res, outcome, err := svc.GetOrCompute(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeConflictResolved {
		t.Fatalf("expected OutcomeConflictResolved, got %d", outcome)
	}
	if res.Question != "theirs" {
		t.Fatalf("expected the committed row, got %+v", res)
	}
}

func TestGetOrComputeConflictWithEmptyRereadIsFatal(t *testing.T) {
	store := newMemStore()
	store.getFn = func(ctx context.Context, questionID, lang string) (*Row, error) {
		return nil, nil
	}
	store.insertFn = func(ctx context.Context, row Row) error {
		return ErrDuplicate
	}
	questions := &stubQuestions{byID: map[string]*question.Question{"q1": sourceQuestion()}}

	svc := newTestService(store, questions, &stubTranslator{})
	_, _, err := svc.GetOrCompute(context.Background(), "q1")
	if !errors.Is(err, ErrStoreInconsistent) {
		t.Fatalf("expected ErrStoreInconsistent, got %v", err)
	}
}

func TestTranslateOptionLabelFormats(t *testing.T) {
	svc := newTestService(newMemStore(), &stubQuestions{}, &stubTranslator{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "paren", in: "A) Storage", want: "A) ru: Storage"},
		{name: "paren dot", in: "B). Compute", want: "B) ru: Compute"},
		{name: "dot", in: "C. Network", want: "C) ru: Network"},
		{name: "colon", in: "D: Database", want: "D) ru: Database"},
		{name: "no label", in: "just some text", want: "ru: just some text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := svc.translateOption(ctx, "q1", tc.in)
			if got != tc.want {
				t.Fatalf("translateOption(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
