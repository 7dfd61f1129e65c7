package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
	"github.com/oklog/ulid/v2"
)

// Inspection is an on-device inspection row. The same shape serializes into
// the outbox payload, so field names here are the wire contract.
type Inspection struct {
	ID                string  `json:"id"`
	JobID             string  `json:"job_id"`
	TenantID          string  `json:"tenant_id"`
	TemplateID        string  `json:"template_id"`
	TemplateVersion   int     `json:"template_version"`
	InspectorID       string  `json:"inspector_id"`
	Status            string  `json:"status"`
	StartedAt         *string `json:"started_at,omitempty"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	WeatherConditions string  `json:"weather_conditions,omitempty"`
	Temperature       string  `json:"temperature,omitempty"`
	PresentParties    string  `json:"present_parties,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// Answer records the value entered for one checklist item.
type Answer struct {
	ID             string `json:"id"`
	InspectionID   string `json:"inspection_id"`
	TemplateItemID string `json:"template_item_id"`
	SectionID      string `json:"section_id"`
	Value          string `json:"value,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Finding is a defect observed during an inspection.
type Finding struct {
	ID               string   `json:"id"`
	InspectionID     string   `json:"inspection_id"`
	SectionID        string   `json:"section_id,omitempty"`
	TemplateItemID   string   `json:"template_item_id,omitempty"`
	DefectLibraryID  string   `json:"defect_library_id,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Severity         string   `json:"severity"`
	Location         string   `json:"location,omitempty"`
	Recommendation   string   `json:"recommendation,omitempty"`
	EstimatedCostMin *float64 `json:"estimated_cost_min,omitempty"`
	EstimatedCostMax *float64 `json:"estimated_cost_max,omitempty"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

// Signature is a captured sign-off on a completed inspection.
type Signature struct {
	ID            string `json:"id"`
	InspectionID  string `json:"inspection_id"`
	SignerName    string `json:"signer_name"`
	SignerType    string `json:"signer_type"`
	SignatureData string `json:"signature_data"`
	SignedAt      string `json:"signed_at"`
}

// CreateInspection inserts a draft inspection and its outbox entry in one
// transaction. An inspection row never exists without a queued mutation.
func (s *SQLiteStore) CreateInspection(ctx context.Context, insp *Inspection) error {
	now := fmtTime(time.Now().UTC())
	if insp.ID == "" {
		insp.ID = ulid.Make().String()
	}
	if insp.Status == "" {
		insp.Status = "draft"
	}
	insp.CreatedAt = now
	insp.UpdatedAt = now

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO inspections
				(id, job_id, tenant_id, template_id, template_version, inspector_id, status,
				 started_at, completed_at, weather_conditions, temperature, present_parties,
				 notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, insp.ID, insp.JobID, insp.TenantID, insp.TemplateID, insp.TemplateVersion,
			insp.InspectorID, insp.Status, insp.StartedAt, insp.CompletedAt,
			nullable(insp.WeatherConditions), nullable(insp.Temperature),
			nullable(insp.PresentParties), nullable(insp.Notes), insp.CreatedAt, insp.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert inspection: %w", err)
		}
		_, err = AppendOutbox(tx, "inspections", insp.ID, fieldsync.OperationUpsert, insp)
		return err
	})
}

// UpdateInspection rewrites a mutable inspection row and queues the change.
func (s *SQLiteStore) UpdateInspection(ctx context.Context, insp *Inspection) error {
	insp.UpdatedAt = fmtTime(time.Now().UTC())

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE inspections
			SET status = ?, started_at = ?, completed_at = ?, weather_conditions = ?,
			    temperature = ?, present_parties = ?, notes = ?, updated_at = ?
			WHERE id = ?
		`, insp.Status, insp.StartedAt, insp.CompletedAt,
			nullable(insp.WeatherConditions), nullable(insp.Temperature),
			nullable(insp.PresentParties), nullable(insp.Notes), insp.UpdatedAt, insp.ID)
		if err != nil {
			return fmt.Errorf("update inspection: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("inspection %s: %w", insp.ID, ErrNotFound)
		}
		_, err = AppendOutbox(tx, "inspections", insp.ID, fieldsync.OperationUpsert, insp)
		return err
	})
}

// Inspection retrieves one inspection by id.
func (s *SQLiteStore) Inspection(ctx context.Context, id string) (*Inspection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, tenant_id, template_id, template_version, inspector_id, status,
		       started_at, completed_at, weather_conditions, temperature, present_parties,
		       notes, created_at, updated_at
		FROM inspections WHERE id = ?
	`, id)

	var insp Inspection
	var startedAt, completedAt, weather, temp, parties, notes sql.NullString
	err := row.Scan(&insp.ID, &insp.JobID, &insp.TenantID, &insp.TemplateID,
		&insp.TemplateVersion, &insp.InspectorID, &insp.Status,
		&startedAt, &completedAt, &weather, &temp, &parties, &notes,
		&insp.CreatedAt, &insp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inspection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get inspection: %w", err)
	}

	if startedAt.Valid {
		insp.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		insp.CompletedAt = &completedAt.String
	}
	insp.WeatherConditions = weather.String
	insp.Temperature = temp.String
	insp.PresentParties = parties.String
	insp.Notes = notes.String
	return &insp, nil
}

// SaveAnswer upserts an answer and queues the change. Answers are keyed by
// id so re-answering an item replaces the row.
func (s *SQLiteStore) SaveAnswer(ctx context.Context, a *Answer) error {
	now := fmtTime(time.Now().UTC())
	if a.ID == "" {
		a.ID = ulid.Make().String()
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO answers
				(id, inspection_id, template_item_id, section_id, value, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.InspectionID, a.TemplateItemID, a.SectionID,
			nullable(a.Value), nullable(a.Notes), a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save answer: %w", err)
		}
		_, err = AppendOutbox(tx, "answers", a.ID, fieldsync.OperationUpsert, a)
		return err
	})
}

// SaveFinding upserts a finding and queues the change.
func (s *SQLiteStore) SaveFinding(ctx context.Context, f *Finding) error {
	now := fmtTime(time.Now().UTC())
	if f.ID == "" {
		f.ID = ulid.Make().String()
		f.CreatedAt = now
	}
	if f.Severity == "" {
		f.Severity = "minor"
	}
	f.UpdatedAt = now

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO findings
				(id, inspection_id, section_id, template_item_id, defect_library_id, title,
				 description, severity, location, recommendation, estimated_cost_min,
				 estimated_cost_max, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.InspectionID, nullable(f.SectionID), nullable(f.TemplateItemID),
			nullable(f.DefectLibraryID), f.Title, nullable(f.Description), f.Severity,
			nullable(f.Location), nullable(f.Recommendation),
			f.EstimatedCostMin, f.EstimatedCostMax, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save finding: %w", err)
		}
		_, err = AppendOutbox(tx, "findings", f.ID, fieldsync.OperationUpsert, f)
		return err
	})
}

// DeleteFinding removes a finding and queues the delete.
func (s *SQLiteStore) DeleteFinding(ctx context.Context, id string) error {
	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM findings WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete finding: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("finding %s: %w", id, ErrNotFound)
		}
		_, err = AppendOutbox(tx, "findings", id, fieldsync.OperationDelete,
			map[string]string{"id": id})
		return err
	})
}

// SaveSignature inserts a signature and queues the change. Signatures are
// immutable once captured.
func (s *SQLiteStore) SaveSignature(ctx context.Context, sig *Signature) error {
	if sig.ID == "" {
		sig.ID = ulid.Make().String()
	}
	if sig.SignedAt == "" {
		sig.SignedAt = fmtTime(time.Now().UTC())
	}

	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO signatures (id, inspection_id, signer_name, signer_type, signature_data, signed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sig.ID, sig.InspectionID, sig.SignerName, sig.SignerType,
			sig.SignatureData, sig.SignedAt)
		if err != nil {
			return fmt.Errorf("save signature: %w", err)
		}
		_, err = AppendOutbox(tx, "signatures", sig.ID, fieldsync.OperationUpsert, sig)
		return err
	})
}

// AnswersByInspection lists the answers captured for one inspection.
func (s *SQLiteStore) AnswersByInspection(ctx context.Context, inspectionID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inspection_id, template_item_id, section_id, value, notes, created_at, updated_at
		FROM answers WHERE inspection_id = ? ORDER BY created_at ASC
	`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := make([]Answer, 0)
	for rows.Next() {
		var a Answer
		var value, notes sql.NullString
		if err := rows.Scan(&a.ID, &a.InspectionID, &a.TemplateItemID, &a.SectionID,
			&value, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Value = value.String
		a.Notes = notes.String
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// FindingsByInspection lists the findings recorded for one inspection.
func (s *SQLiteStore) FindingsByInspection(ctx context.Context, inspectionID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inspection_id, section_id, template_item_id, defect_library_id, title,
		       description, severity, location, recommendation, estimated_cost_min,
		       estimated_cost_max, created_at, updated_at
		FROM findings WHERE inspection_id = ? ORDER BY created_at ASC
	`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := make([]Finding, 0)
	for rows.Next() {
		var f Finding
		var sectionID, itemID, defectID, desc, loc, rec sql.NullString
		if err := rows.Scan(&f.ID, &f.InspectionID, &sectionID, &itemID, &defectID,
			&f.Title, &desc, &f.Severity, &loc, &rec,
			&f.EstimatedCostMin, &f.EstimatedCostMax, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.SectionID = sectionID.String
		f.TemplateItemID = itemID.String
		f.DefectLibraryID = defectID.String
		f.Description = desc.String
		f.Location = loc.String
		f.Recommendation = rec.String
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
