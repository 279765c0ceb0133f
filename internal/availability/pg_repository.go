package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.FeeOnline,
		&p.FeeInPerson,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, fee_online, fee_in_person, active, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) RulesForWeekday(ctx context.Context, practitionerID uuid.UUID, weekday time.Weekday) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, weekday, start_time, end_time, mode
		FROM availability_rules
		WHERE practitioner_id = $1 AND weekday = $2
		ORDER BY start_time, mode
	`, practitionerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		var rule Rule
		var weekdayNum int
		if err := rows.Scan(&rule.ID, &rule.PractitionerID, &weekdayNum, &rule.Start, &rule.End, &rule.Mode); err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(weekdayNum)
		result = append(result, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, rules []Rule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin template tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_rules WHERE practitioner_id = $1
	`, practitionerID); err != nil {
		return fmt.Errorf("clear template: %w", err)
	}

	for _, rule := range rules {
		id := rule.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, practitioner_id, weekday, start_time, end_time, mode)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, practitionerID, int(rule.Weekday), rule.Start, rule.End, rule.Mode); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}

	return tx.Commit(ctx)
}
