package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// ApplyBootstrap populates reference data from a full snapshot inside one
// transaction. Either the whole snapshot lands or none of it does.
func (s *SQLiteStore) ApplyBootstrap(ctx context.Context, data *fieldsync.BootstrapData) error {
	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if data.User != nil {
			if err := upsertUserProfile(tx, data.Tenant.ID, data.User); err != nil {
				return err
			}
		}
		for i := range data.Templates {
			if err := upsertTemplate(tx, &data.Templates[i]); err != nil {
				return err
			}
		}
		for i := range data.Clients {
			if err := upsertClient(tx, &data.Clients[i]); err != nil {
				return err
			}
		}
		for i := range data.Properties {
			if err := upsertProperty(tx, &data.Properties[i]); err != nil {
				return err
			}
		}
		for i := range data.Jobs {
			if err := upsertJob(tx, &data.Jobs[i]); err != nil {
				return err
			}
		}
		for i := range data.DefectLibrary {
			if err := upsertDefect(tx, &data.DefectLibrary[i]); err != nil {
				return err
			}
		}
		for i := range data.Services {
			if err := upsertService(tx, &data.Services[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyChanges applies an incremental pull batch. Records fully overwrite
// local rows at record granularity (last-write-wins); the same upsert
// routines serve bootstrap and pull. The transaction boundary gives cursor
// monotonicity: if any record fails, nothing is applied and the caller must
// not advance the cursor.
func (s *SQLiteStore) ApplyChanges(ctx context.Context, changes map[string]json.RawMessage) error {
	return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		for entityType, raw := range changes {
			if err := applyEntityChanges(tx, entityType, raw); err != nil {
				return fmt.Errorf("apply %s changes: %w", entityType, err)
			}
		}
		return nil
	})
}

func applyEntityChanges(tx *sql.Tx, entityType string, raw json.RawMessage) error {
	switch entityType {
	case "templates":
		var records []fieldsync.Template
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertTemplate(tx, &records[i]); err != nil {
				return err
			}
		}
	case "clients":
		var records []fieldsync.ClientRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertClient(tx, &records[i]); err != nil {
				return err
			}
		}
	case "properties":
		var records []fieldsync.PropertyRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertProperty(tx, &records[i]); err != nil {
				return err
			}
		}
	case "jobs":
		var records []fieldsync.JobRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertJob(tx, &records[i]); err != nil {
				return err
			}
		}
	case "defect_library":
		var records []fieldsync.DefectRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertDefect(tx, &records[i]); err != nil {
				return err
			}
		}
	case "services":
		var records []fieldsync.ServiceRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return err
		}
		for i := range records {
			if err := upsertService(tx, &records[i]); err != nil {
				return err
			}
		}
	default:
		// Newer servers may stream entity types this client doesn't know.
		slog.Warn("skipping unknown entity type in pull batch",
			"component", "store",
			"entity_type", entityType,
		)
	}
	return nil
}

func upsertUserProfile(tx *sql.Tx, tenantID string, u *fieldsync.UserProfile) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO user_profile (id, tenant_id, email, full_name, role, avatar_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, tenantID, u.Email, nullable(u.FullName), u.Role, nullable(u.AvatarURL),
		fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

func upsertTemplate(tx *sql.Tx, t *fieldsync.Template) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO templates
			(id, tenant_id, name, description, version, is_active, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TenantID, t.Name, nullable(t.Description), t.Version, boolToInt(t.IsActive),
		t.CreatedAt, t.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	for i := range t.Sections {
		sec := &t.Sections[i]
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO template_sections
				(id, template_id, name, description, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sec.ID, sec.TemplateID, sec.Name, nullable(sec.Description), sec.SortOrder,
			sec.CreatedAt, sec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert template section: %w", err)
		}

		for j := range sec.Items {
			item := &sec.Items[j]
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO template_items
					(id, section_id, name, description, item_type, options, is_required, sort_order, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, item.ID, item.SectionID, item.Name, nullable(item.Description), item.ItemType,
				nullable(item.Options), boolToInt(item.IsRequired), item.SortOrder,
				item.CreatedAt, item.UpdatedAt)
			if err != nil {
				return fmt.Errorf("upsert template item: %w", err)
			}
		}
	}
	return nil
}

func upsertClient(tx *sql.Tx, c *fieldsync.ClientRecord) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO clients
			(id, tenant_id, name, email, phone, company, notes, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Name, nullable(c.Email), nullable(c.Phone), nullable(c.Company),
		nullable(c.Notes), c.CreatedAt, c.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

func upsertProperty(tx *sql.Tx, p *fieldsync.PropertyRecord) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO properties
			(id, tenant_id, client_id, address_line1, address_line2, city, state, zip_code,
			 property_type, year_built, square_feet, notes, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TenantID, nullable(p.ClientID), p.AddressLine1, nullable(p.AddressLine2),
		p.City, p.State, p.ZipCode, nullable(p.PropertyType), p.YearBuilt, p.SquareFeet,
		nullable(p.Notes), p.CreatedAt, p.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}
	return nil
}

func upsertJob(tx *sql.Tx, j *fieldsync.JobRecord) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO jobs
			(id, tenant_id, property_id, client_id, template_id, inspector_id, status,
			 scheduled_date, scheduled_time, duration_minutes, notes, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.TenantID, j.PropertyID, nullable(j.ClientID), j.TemplateID, j.InspectorID,
		j.Status, j.ScheduledDate, nullable(j.ScheduledTime), j.DurationMinutes,
		nullable(j.Notes), j.CreatedAt, j.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func upsertDefect(tx *sql.Tx, d *fieldsync.DefectRecord) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO defect_library
			(id, tenant_id, category, name, description, severity, recommendation, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.TenantID, d.Category, d.Name, nullable(d.Description), d.Severity,
		nullable(d.Recommendation), d.CreatedAt, d.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert defect: %w", err)
	}
	return nil
}

func upsertService(tx *sql.Tx, v *fieldsync.ServiceRecord) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO services
			(id, tenant_id, name, description, category, price, duration_minutes,
			 template_id, is_active, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.TenantID, v.Name, nullable(v.Description), v.Category, v.Price,
		v.DurationMinutes, nullable(v.TemplateID), boolToInt(v.IsActive),
		v.CreatedAt, v.UpdatedAt, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
