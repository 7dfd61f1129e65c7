// Package sync defines the wire types shared by the outbox producers, the
// sync coordinator, and the remote endpoints.
package sync

import (
	"encoding/json"
	"time"
)

// Operation constants for outbox entries.
const (
	OperationUpsert = "upsert"
	OperationDelete = "delete"
)

// OutboxEntry is a pending local mutation awaiting transmission.
// Payload is the already-serialized domain record; producers give it shape,
// the queue treats it as opaque.
type OutboxEntry struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Operation     string          `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
}

// PushRequest is the body of POST /sync/push.
type PushRequest struct {
	TenantID string     `json:"tenant_id"`
	Items    []PushItem `json:"items"`
}

// PushItem is a single outbox entry on the wire. ID is the outbox entry id,
// not the domain entity id.
type PushItem struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PushResult is the server's verdict on one pushed item.
type PushResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushResponse is the body of the push reply.
type PushResponse struct {
	Results   []PushResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// PullResponse is the body of GET /sync/pull. Changes is keyed by entity
// type; each value is an array of records in that type's wire shape.
type PullResponse struct {
	Changes  map[string]json.RawMessage `json:"changes"`
	SyncedAt string                     `json:"synced_at"`
}

// BootstrapData is the full snapshot returned by POST /sync/bootstrap.
type BootstrapData struct {
	Tenant        Tenant           `json:"tenant"`
	User          *UserProfile     `json:"user,omitempty"`
	Templates     []Template       `json:"templates"`
	Clients       []ClientRecord   `json:"clients"`
	Properties    []PropertyRecord `json:"properties"`
	Jobs          []JobRecord      `json:"jobs"`
	DefectLibrary []DefectRecord   `json:"defect_library"`
	Services      []ServiceRecord  `json:"services"`
	SyncedAt      string           `json:"synced_at"`
}

// ClientRecord is a client contact in the tenant's book.
type ClientRecord struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PropertyRecord is a location being inspected.
type PropertyRecord struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	PropertyType string `json:"property_type,omitempty"`
	YearBuilt    *int   `json:"year_built,omitempty"`
	SquareFeet   *int   `json:"square_feet,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// JobRecord is a scheduled inspection assignment.
type JobRecord struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	PropertyID      string `json:"property_id"`
	ClientID        string `json:"client_id,omitempty"`
	TemplateID      string `json:"template_id"`
	InspectorID     string `json:"inspector_id"`
	Status          string `json:"status"`
	ScheduledDate   string `json:"scheduled_date"`
	ScheduledTime   string `json:"scheduled_time,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// DefectRecord is a canned finding from the tenant's defect library.
type DefectRecord struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Category       string `json:"category"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ServiceRecord is an offering that can be attached to a job.
type ServiceRecord struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Category        string   `json:"category"`
	Price           *float64 `json:"price,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	TemplateID      string   `json:"template_id,omitempty"`
	IsActive        bool     `json:"is_active"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// Tenant identifies the tenant a bootstrap belongs to.
type Tenant struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
}

// UserProfile is the cached profile of the signed-in field worker.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Template is an inspection template with its nested sections and items.
type Template struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     int               `json:"version"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	Sections    []TemplateSection `json:"template_sections,omitempty"`
}

// TemplateSection groups checklist items within a template.
type TemplateSection struct {
	ID          string         `json:"id"`
	TemplateID  string         `json:"template_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SortOrder   int            `json:"sort_order"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Items       []TemplateItem `json:"template_items,omitempty"`
}

// TemplateItem is a single checklist entry within a section.
type TemplateItem struct {
	ID          string `json:"id"`
	SectionID   string `json:"section_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemType    string `json:"item_type"`
	Options     string `json:"options,omitempty"`
	IsRequired  bool   `json:"is_required"`
	SortOrder   int    `json:"sort_order"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// SignRequest is the body of POST /uploads/sign.
type SignRequest struct {
	TenantID string     `json:"tenant_id"`
	Files    []SignFile `json:"files"`
}

// SignFile describes one asset needing an upload target.
type SignFile struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	FileSize     int64  `json:"file_size"`
	InspectionID string `json:"inspection_id,omitempty"`
}

// SignedURL is one pre-authorized upload target.
type SignedURL struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
}

// SignResponse is the body of the sign reply.
type SignResponse struct {
	SignedURLs []SignedURL `json:"signed_urls"`
}

// Status is the engine's user-visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// State is the snapshot delivered to status subscribers.
type State struct {
	Status         Status     `json:"status"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	PendingChanges int        `json:"pending_changes"`
	PendingUploads int        `json:"pending_uploads"`
	Error          string     `json:"error,omitempty"`
}
