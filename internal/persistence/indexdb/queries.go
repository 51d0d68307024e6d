package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type PlanRow struct {
	ID          string   `json:"plan_id"`
	Agent       uint64   `json:"agent"`
	Root        string   `json:"root"`
	Steps       []string `json:"steps"`
	Score       float64  `json:"score,omitempty"`
	Status      string   `json:"status"`
	FoundMS     int64    `json:"found_ms"`
	EndedMS     int64    `json:"ended_ms,omitempty"`
	FailedStep  string   `json:"failed_step,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Unsupported bool     `json:"unsupported,omitempty"`
	// Completed lists the steps that succeeded, in order.
	Completed []string `json:"completed,omitempty"`
}

const planColumns = `plan_id,agent,root,steps_json,score,status,found_ms,ended_ms,failed_step,outcome,unsupported`

func scanPlan(sc interface{ Scan(...any) error }) (PlanRow, error) {
	var (
		p          PlanRow
		steps      string
		ended      sql.NullInt64
		failedStep sql.NullString
		outcome    sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.Agent, &p.Root, &steps, &p.Score, &p.Status, &p.FoundMS, &ended, &failedStep, &outcome, &p.Unsupported); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(steps), &p.Steps); err != nil {
		return p, err
	}
	p.EndedMS = ended.Int64
	p.FailedStep = failedStep.String
	p.Outcome = outcome.String
	return p, nil
}

// Plan returns one plan with its completed steps.
func (s *SQLiteIndex) Plan(ctx context.Context, id string) (PlanRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE plan_id=?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRow{}, false, nil
	}
	if err != nil {
		return PlanRow{}, false, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT step FROM steps WHERE plan_id=? ORDER BY seq`, id)
	if err != nil {
		return p, true, err
	}
	defer rows.Close()
	for rows.Next() {
		var step string
		if err := rows.Scan(&step); err != nil {
			return p, true, err
		}
		p.Completed = append(p.Completed, step)
	}
	return p, true, rows.Err()
}

// PlansByAgent lists an agent's most recent plans, newest first.
func (s *SQLiteIndex) PlansByAgent(ctx context.Context, agent uint64, limit int) ([]PlanRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE agent=? ORDER BY found_ms DESC, rowid DESC LIMIT ?`, agent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlanRow
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FailuresByStep counts failed plans per failing step.
func (s *SQLiteIndex) FailuresByStep(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT failed_step, COUNT(*) FROM plans WHERE status=? GROUP BY failed_step`, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			step sql.NullString
			n    int
		)
		if err := rows.Scan(&step, &n); err != nil {
			return nil, err
		}
		out[step.String] += n
	}
	return out, rows.Err()
}

// CatalogDigest returns the digest recorded for a catalog name.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d, err
}
