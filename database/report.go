package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"

	"github.com/camden-git/ppemonitor/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// UserComplianceSummary counts compliant vs. violating records for one user.
type UserComplianceSummary struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	GoodCount      int64  `json:"good_count"`
	ViolationCount int64  `json:"violation_count"`
}

// Total is the number of records persisted for the user.
func (s UserComplianceSummary) Total() int64 {
	return s.GoodCount + s.ViolationCount
}

// ComplianceRate is the share of GoodToGo records, 0 when the user has none.
func (s UserComplianceSummary) ComplianceRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.GoodCount) / float64(s.Total())
}

// ComplianceSummary returns one row per user, users without records included,
// ordered naturally by username.
func ComplianceSummary(ctx context.Context, db Querier) ([]UserComplianceSummary, error) {
	queryBuilder := psql.Select("u.id", "u.username", "u.email", "u.role").
		Column("COALESCE(SUM(CASE WHEN v.label = ? THEN 1 ELSE 0 END), 0) AS good_count", models.LabelGoodToGo).
		Column("COALESCE(SUM(CASE WHEN v.id IS NOT NULL AND v.label <> ? THEN 1 ELSE 0 END), 0) AS violation_count", models.LabelGoodToGo).
		From("users u").
		LeftJoin("violations v ON v.user_id = u.id").
		GroupBy("u.id", "u.username", "u.email", "u.role")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ComplianceSummary: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ComplianceSummary query: %w", err)
	}
	defer rows.Close()

	byName := make(map[string][]UserComplianceSummary)
	var names []string
	for rows.Next() {
		var s UserComplianceSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.Email, &s.Role, &s.GoodCount, &s.ViolationCount); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if _, seen := byName[s.Username]; !seen {
			names = append(names, s.Username)
		}
		byName[s.Username] = append(byName[s.Username], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	natsort.Sort(names)
	summaries := make([]UserComplianceSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, byName[name]...)
	}
	return summaries, nil
}

var exportHeader = []string{"id", "username", "email", "role", "good_count", "violation_count", "total", "compliance_rate"}

// WriteSummaryCSV writes the summary rows in the export column layout.
func WriteSummaryCSV(w io.Writer, summaries []UserComplianceSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range summaries {
		record := []string{
			s.ID,
			s.Username,
			s.Email,
			s.Role,
			strconv.FormatInt(s.GoodCount, 10),
			strconv.FormatInt(s.ViolationCount, 10),
			strconv.FormatInt(s.Total(), 10),
			strconv.FormatFloat(s.ComplianceRate(), 'f', 4, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for user %s: %w", s.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
