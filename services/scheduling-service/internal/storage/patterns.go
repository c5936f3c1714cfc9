package storage

import (
	"context"
	"time"

	"github.com/elizahq/eliza/libs/db"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const patternColumns = `organization_id, professional_id, day_of_week, start_time, end_time,
	COALESCE(break_start, ''), COALESCE(break_end, ''), is_active`

func (s *Store) GetWorkingPattern(ctx context.Context, orgID, professionalID string, weekday time.Weekday) (model.WorkingPattern, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+patternColumns+`
		FROM working_patterns
		WHERE organization_id = $1 AND professional_id = $2 AND day_of_week = $3
	`, orgID, professionalID, int(weekday))
	p, err := scanPattern(row)
	if IsNotFound(err) {
		return model.WorkingPattern{}, false, nil
	}
	if err != nil {
		return model.WorkingPattern{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListWeek(ctx context.Context, orgID, professionalID string) ([]model.WorkingPattern, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+patternColumns+`
		FROM working_patterns
		WHERE organization_id = $1 AND professional_id = $2
		ORDER BY day_of_week ASC
	`, orgID, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patterns := []model.WorkingPattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return patterns, nil
}

// UpsertWeek writes all given weekdays in one transaction.
func (s *Store) UpsertWeek(ctx context.Context, orgID, professionalID string, patterns []model.WorkingPattern) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, p := range patterns {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_patterns
					(organization_id, professional_id, day_of_week, start_time, end_time, break_start, break_end, is_active)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
				ON CONFLICT (organization_id, professional_id, day_of_week) DO UPDATE
				SET start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					break_start = EXCLUDED.break_start,
					break_end = EXCLUDED.break_end,
					is_active = EXCLUDED.is_active,
					updated_at = now()
			`, orgID, professionalID, int(p.Weekday), p.StartTime, p.EndTime, p.BreakStart, p.BreakEnd, p.IsActive)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func scanPattern(row pgx.Row) (model.WorkingPattern, error) {
	var p model.WorkingPattern
	var weekday int
	if err := row.Scan(&p.OrganizationID, &p.ProfessionalID, &weekday, &p.StartTime, &p.EndTime, &p.BreakStart, &p.BreakEnd, &p.IsActive); err != nil {
		return model.WorkingPattern{}, err
	}
	p.Weekday = time.Weekday(weekday)
	return p, nil
}
