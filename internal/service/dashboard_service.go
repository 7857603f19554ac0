package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/events"
	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/storage"
)

var (
	ErrUnknownSection     = errors.New("unexpected field")
	ErrTooManyFiles       = errors.New("too many files")
	ErrUnsupportedFile    = storage.ErrUnsupportedType
	ErrInvalidSocialMedia = errors.New("socialMedia must be a JSON object")
)

type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// DashboardUpdate is one edit of the landing page. A section key present in
// Retained, even with an empty list, replaces that section; absent sections
// without uploads are left alone. SocialMedia holds a JSON object or a JSON
// string wrapping one, and is ignored when empty.
type DashboardUpdate struct {
	Retained    map[string][]string
	Uploads     map[string][]Upload
	SocialMedia json.RawMessage
}

type DashboardService struct {
	db       *database.DB
	files    domain.FileStore
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewDashboardService(db *database.DB, files domain.FileStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *DashboardService {
	l := logger.With().Str("component", "dashboard_service").Logger()
	return &DashboardService{db: db, files: files, eventBus: eventBus, logger: &l}
}

// Get returns the dashboard, creating an empty one on first access.
func (s *DashboardService) Get(ctx context.Context) (*models.Dashboard, error) {
	d, err := s.db.GetDashboard(ctx)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	d = &models.Dashboard{}
	for _, name := range models.DashboardSections {
		d.SetSection(name, nil)
	}
	if err := s.db.SaveDashboard(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Msg("Dashboard created")
	return d, nil
}

func (s *DashboardService) Update(ctx context.Context, upd DashboardUpdate) (*models.Dashboard, error) {
	if err := checkUploads(upd); err != nil {
		return nil, err
	}
	social, err := decodeSocialMedia(upd.SocialMedia)
	if err != nil {
		return nil, err
	}

	d, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	// Store every upload before touching d; any failure removes what was stored.
	stored := make(map[string][]string, len(upd.Uploads))
	var all []string
	for _, name := range models.DashboardSections {
		for _, u := range upd.Uploads[name] {
			url, err := s.files.Save(ctx, u.Name, u.ContentType, u.Body)
			if err != nil {
				s.discard(ctx, all)
				return nil, fmt.Errorf("store %s upload: %w", name, err)
			}
			stored[name] = append(stored[name], url)
			all = append(all, url)
		}
	}

	for _, name := range models.DashboardSections {
		retained, hasRetained := upd.Retained[name]
		if !hasRetained && len(stored[name]) == 0 {
			continue
		}
		images := make([]string, 0, len(retained)+len(stored[name]))
		images = append(images, retained...)
		images = append(images, stored[name]...)
		d.SetSection(name, images)
	}
	if social != nil {
		d.SocialMedia = d.SocialMedia.Merge(*social)
	}

	if err := s.db.SaveDashboard(ctx, d); err != nil {
		s.discard(ctx, all)
		return nil, err
	}
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventDashboardUpdated, events.DashboardEventPayload{UpdatedAt: d.UpdatedAt}); err != nil {
			s.logger.Error().Err(err).Msg("Failed to publish event")
		}
	}
	return d, nil
}

func (s *DashboardService) discard(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := s.files.Remove(context.WithoutCancel(ctx), url); err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("Failed to remove orphaned upload")
		}
	}
}

// checkUploads runs before any file is stored so a bad request leaves no orphans.
func checkUploads(upd DashboardUpdate) error {
	for name := range upd.Retained {
		if _, ok := models.DashboardUploadLimits[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSection, name)
		}
	}
	for name, uploads := range upd.Uploads {
		limit, ok := models.DashboardUploadLimits[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSection, name)
		}
		if len(uploads) > limit {
			return fmt.Errorf("%w: %s accepts at most %d", ErrTooManyFiles, name, limit)
		}
		for _, u := range uploads {
			if !storage.AllowedContentType(u.ContentType) {
				return ErrUnsupportedFile
			}
		}
	}
	return nil
}

func decodeSocialMedia(raw json.RawMessage) (*models.SocialMedia, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped == "" {
			return nil, nil
		}
		raw = json.RawMessage(wrapped)
	}
	var sm models.SocialMedia
	if err := json.Unmarshal(raw, &sm); err != nil {
		return nil, ErrInvalidSocialMedia
	}
	return &sm, nil
}
