package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

// dashboardContent is the JSON stored in the single dashboard row.
type dashboardContent struct {
	Sections    map[string][]string `json:"sections"`
	SocialMedia models.SocialMedia  `json:"socialMedia"`
}

// GetDashboard returns ErrNotFound until the document is first saved.
func (db *DB) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	var (
		raw string
		d   models.Dashboard
	)
	err := db.QueryRowContext(ctx, `SELECT id, content, created_at, updated_at FROM dashboard WHERE id = 1`).
		Scan(&d.ID, &raw, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}

	var content dashboardContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard: %w", err)
	}
	for _, name := range models.DashboardSections {
		d.SetSection(name, content.Sections[name])
	}
	d.SocialMedia = content.SocialMedia
	return &d, nil
}

// SaveDashboard upserts the singleton row.
func (db *DB) SaveDashboard(ctx context.Context, d *models.Dashboard) error {
	content := dashboardContent{
		Sections:    make(map[string][]string, len(models.DashboardSections)),
		SocialMedia: d.SocialMedia,
	}
	for _, name := range models.DashboardSections {
		images := d.Section(name)
		if images == nil {
			images = []string{}
		}
		content.Sections[name] = images
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}

	now := time.Now()
	created := d.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = db.ExecContext(ctx, `INSERT INTO dashboard (id, content, created_at, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		string(raw), created, now)
	if err != nil {
		return fmt.Errorf("failed to save dashboard: %w", err)
	}
	d.ID = 1
	d.CreatedAt = created
	d.UpdatedAt = now
	return nil
}
