package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

// ErrInvalidFilter is returned when a register filter does not compile to a
// boolean expression.
var ErrInvalidFilter = errors.New("invalid register filter")

// RegisterRow is the summary of one SOP shown in the register.
type RegisterRow struct {
	SOPID         string       `json:"sopId"`
	Title         string       `json:"title"`
	Department    string       `json:"department"`
	Version       string       `json:"version"`
	Author        string       `json:"author"`
	Status        model.Status `json:"status"`
	EffectiveDate string       `json:"effectiveDate"`
	ReviewDate    string       `json:"reviewDate"`
	Reviewer      string       `json:"reviewer"`
	SavedAt       time.Time    `json:"savedAt"`
}

func rowOf(sop *model.SOP) RegisterRow {
	m := sop.Meta
	return RegisterRow{
		SOPID:         m.SOPID,
		Title:         m.Title,
		Department:    m.Department,
		Version:       m.Version,
		Author:        m.Author,
		Status:        m.Status,
		EffectiveDate: m.EffectiveDate,
		ReviewDate:    m.ReviewDate,
		Reviewer:      m.Reviewer,
		SavedAt:       sop.SavedAt,
	}
}

// env exposes a row to filter expressions under its JSON field names.
func (r RegisterRow) env() map[string]any {
	return map[string]any{
		"sopId":         r.SOPID,
		"title":         r.Title,
		"department":    r.Department,
		"version":       r.Version,
		"author":        r.Author,
		"status":        string(r.Status),
		"effectiveDate": r.EffectiveDate,
		"reviewDate":    r.ReviewDate,
		"reviewer":      r.Reviewer,
		"savedAt":       r.SavedAt,
	}
}

// CompileFilter compiles a register filter such as
// `status == "Approved" && department == "PROD"`.
func CompileFilter(filter string) (*vm.Program, error) {
	program, err := expr.Compile(filter, expr.Env(RegisterRow{}.env()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return program, nil
}

// Register lists every merged record as a summary row sorted by sopId. An
// empty filter keeps every row.
func (s *SyncService) Register(ctx context.Context, filter string) ([]RegisterRow, error) {
	var program *vm.Program
	if strings.TrimSpace(filter) != "" {
		p, err := CompileFilter(filter)
		if err != nil {
			return nil, err
		}
		program = p
	}

	records, err := s.LoadMerged(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]RegisterRow, 0, len(records))
	for _, sop := range records {
		row := rowOf(sop)
		if program != nil {
			out, err := expr.Run(program, row.env())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
			}
			if keep, _ := out.(bool); !keep {
				continue
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SOPID < rows[j].SOPID })
	return rows, nil
}

// ReviewQueue lists records awaiting review, oldest save first.
func (s *SyncService) ReviewQueue(ctx context.Context) ([]RegisterRow, error) {
	records, err := s.LoadMerged(ctx)
	if err != nil {
		return nil, err
	}
	return reviewQueue(records), nil
}

func reviewQueue(records storage.Records) []RegisterRow {
	rows := make([]RegisterRow, 0)
	for _, sop := range records {
		if sop.Meta.Status == model.StatusUnderReview {
			rows = append(rows, rowOf(sop))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].SavedAt.Equal(rows[j].SavedAt) {
			return rows[i].SavedAt.Before(rows[j].SavedAt)
		}
		return rows[i].SOPID < rows[j].SOPID
	})
	return rows
}
