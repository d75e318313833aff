package question

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedQuestion is one question extracted from a chat export.
type ParsedQuestion struct {
	ID               string
	Number           int
	Text             string
	Options          []string
	IsMultipleChoice bool
	SelectCount      int
}

type IngestReport struct {
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}

type exportFile struct {
	Messages []exportMessage `json:"messages"`
}

type exportMessage struct {
	Text json.RawMessage `json:"text"`
}

var (
	questionPattern    = regexp.MustCompile(`(?s)Question #(\d+)\n\n(.+?)\n\n([A-Z]\).+)`)
	selectCountPattern = regexp.MustCompile(`\(Select (\d+)\)`)
	optionStartPattern = regexp.MustCompile(`(?m)^([A-Z])\)[ \t]*`)
)

// GenerateID derives the stable question id from the sequence number and
// the first 100 characters of the cleaned question text, so re-uploading
// identical content always maps to the same row.
func GenerateID(number int, questionText string) string {
	runes := []rune(questionText)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	content := fmt.Sprintf("%d_%s", number, string(runes))
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}

// ParseExport extracts questions from a chat-export JSON document.
// Messages without a parseable question/option block are skipped; bulk
// exports are full of service messages and that is expected.
func ParseExport(raw []byte) ([]ParsedQuestion, error) {
	var file exportFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	parsed := make([]ParsedQuestion, 0, len(file.Messages))
	for _, msg := range file.Messages {
		text := flattenMessageText(msg.Text)
		if text == "" {
			continue
		}

		m := questionPattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		body := m[2]
		optionsText := m[3]

		selectCount := 1
		isMultiple := false
		if sm := selectCountPattern.FindStringSubmatch(body); sm != nil {
			isMultiple = true
			if n, err := strconv.Atoi(sm[1]); err == nil {
				selectCount = n
			}
		}
		cleanBody := strings.TrimSpace(selectCountPattern.ReplaceAllString(body, ""))

		options := parseOptions(optionsText)
		if len(options) == 0 {
			continue
		}

		parsed = append(parsed, ParsedQuestion{
			ID:               GenerateID(number, cleanBody),
			Number:           number,
			Text:             cleanBody,
			Options:          options,
			IsMultipleChoice: isMultiple,
			SelectCount:      selectCount,
		})
	}

	return parsed, nil
}

// parseOptions splits a lettered option block into "X) text" entries.
// Option bodies may span lines; each option runs until the next lettered
// line or the end of the block.
func parseOptions(optionsText string) []string {
	starts := optionStartPattern.FindAllStringSubmatchIndex(optionsText, -1)
	if len(starts) == 0 {
		return nil
	}

	options := make([]string, 0, len(starts))
	for i, loc := range starts {
		letter := optionsText[loc[2]:loc[3]]
		bodyEnd := len(optionsText)
		if i+1 < len(starts) {
			bodyEnd = starts[i+1][0]
		}
		body := strings.TrimSpace(optionsText[loc[1]:bodyEnd])
		if body == "" {
			continue
		}
		options = append(options, letter+") "+body)
	}
	return options
}

// flattenMessageText handles both export shapes: a plain string, or a
// list mixing strings and {"text": ...} fragments.
func flattenMessageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range parts {
		var ps string
		if err := json.Unmarshal(part, &ps); err == nil {
			sb.WriteString(ps)
			continue
		}
		var frag struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &frag); err == nil {
			sb.WriteString(frag.Text)
		}
	}
	return sb.String()
}

// Ingest parses a chat export and inserts the questions it finds.
// Existing ids are counted as duplicates and left untouched.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*IngestReport, error) {
	parsed, err := ParseExport(raw)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, ErrNoQuestions
	}

	report := &IngestReport{}
	for _, q := range parsed {
		optsRaw, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO questions (id, number, question, options, is_multiple_choice, select_count)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, q.ID, q.Number, q.Text, optsRaw, q.IsMultipleChoice, q.SelectCount)
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			report.New++
		} else {
			report.Duplicates++
		}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&report.Total); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	return report, nil
}
