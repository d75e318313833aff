package question

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportExcel dumps the question bank with any cached gradings into an
// xlsx workbook for offline review.
func (s *Service) ExportExcel(ctx context.Context) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.number, q.question, q.options, q.is_multiple_choice, q.select_count,
			c.correct_answers, c.explanation, q.created_at
		FROM questions q
		LEFT JOIN ai_cache c ON c.question_id = q.id
		ORDER BY q.number
	`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"number", "question", "options", "is_multiple_choice", "select_count", "correct_answers", "explanation", "created_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNo := 2
	for rows.Next() {
		var (
			number      int
			text        string
			optsRaw     []byte
			isMultiple  bool
			selectCount int
			answersRaw  []byte
			explanation sql.NullString
			createdAt   sql.NullTime
		)
		if err := rows.Scan(&number, &text, &optsRaw, &isMultiple, &selectCount, &answersRaw, &explanation, &createdAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		var opts []string
		if err := json.Unmarshal(optsRaw, &opts); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		answers := ""
		if len(answersRaw) > 0 {
			var letters []string
			if err := json.Unmarshal(answersRaw, &letters); err == nil {
				answers = strings.Join(letters, ", ")
			}
		}
		created := ""
		if createdAt.Valid {
			created = createdAt.Time.Format("2006-01-02 15:04:05")
		}

		values := []any{
			number,
			text,
			strings.Join(cleanOptions(opts), "\n"),
			isMultiple,
			selectCount,
			answers,
			explanation.String,
			created,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNo)
			_ = f.SetCellValue(sheet, cell, v)
		}
		rowNo++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	_ = f.SetColWidth(sheet, "A", "H", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
