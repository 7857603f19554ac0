package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/auth"
	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/events"
	"github.com/seyone-projects/reda-backend/internal/excel"
	"github.com/seyone-projects/reda-backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid mobile number or password")
	ErrEmailOrMobileTaken = errors.New("email or mobile number already exists")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoSession          = errors.New("no active session")
)

// UserInput is the registration payload shared by all account kinds.
type UserInput struct {
	Username     string `json:"username"`
	Fullname     string `json:"fullname" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobilenumber" validate:"required,len=10,numeric"`
	Password     string `json:"password" validate:"required,min=6"`
	Address      string `json:"address"`
	DOB          string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Photo        string `json:"photo"`
}

type LoginResult struct {
	Token string
	User  *models.User
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportReport struct {
	Created int        `json:"created"`
	Errors  []RowError `json:"errors"`
}

type UserService struct {
	db       *database.DB
	sessions domain.SessionRepository
	tokens   *auth.TokenManager
	hasher   *auth.Hasher
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewUserService(
	db *database.DB,
	sessions domain.SessionRepository,
	tokens *auth.TokenManager,
	hasher *auth.Hasher,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *UserService {
	l := logger.With().Str("component", "user_service").Logger()
	return &UserService{db: db, sessions: sessions, tokens: tokens, hasher: hasher, eventBus: eventBus, logger: &l}
}

// RegisterEmployee creates an employee account. Email and mobile must both be unused.
func (s *UserService) RegisterEmployee(ctx context.Context, in UserInput) (*models.User, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	exists, err := s.db.EmailOrMobileExists(ctx, in.Email, in.MobileNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailOrMobileTaken
	}
	u, err := s.create(ctx, in, models.RoleEmployee)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrEmailOrMobileTaken
		}
		return nil, err
	}
	return u, nil
}

// AddUser creates a resident account.
func (s *UserService) AddUser(ctx context.Context, in UserInput) (*models.User, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.db.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	u, err := s.create(ctx, in, models.RoleUser)
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.UserEventPayload{UserID: u.ID, Fullname: u.Fullname, MobileNumber: u.MobileNumber, Role: u.Role}
		if err := s.eventBus.PublishJSON(events.EventUserRegistered, payload); err != nil {
			s.logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to publish event")
		}
	}
	return u, nil
}

func (s *UserService) create(ctx context.Context, in UserInput, role string) (*models.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Username:     strings.TrimSpace(in.Username),
		Fullname:     strings.TrimSpace(in.Fullname),
		Email:        strings.TrimSpace(in.Email),
		MobileNumber: in.MobileNumber,
		Address:      in.Address,
		Photo:        in.Photo,
		PasswordHash: hash,
		Role:         role,
	}
	// username is unique but optional on input; the mobile number is a unique stand-in.
	if u.Username == "" {
		u.Username = u.MobileNumber
	}
	if in.DOB != "" {
		dob, err := time.Parse("2006-01-02", in.DOB)
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{"dob": "must be a date in YYYY-MM-DD format"}}
		}
		u.DOB = &dob
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", role).Msg("User created")
	return u, nil
}

// Login checks credentials, issues an access token and records the session.
func (s *UserService) Login(ctx context.Context, mobile, password string) (*LoginResult, error) {
	u, err := s.db.GetUserByMobile(ctx, strings.TrimSpace(mobile))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	token, session, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info().Int64("user_id", u.ID).Msg("User logged in")
	return &LoginResult{Token: token, User: u}, nil
}

func (s *UserService) Logout(ctx context.Context, userID int64) error {
	return s.sessions.DeleteSession(ctx, userID)
}

// Authenticate resolves a bearer token to its user. Token errors are the auth
// package sentinels; a deleted user is ErrUserNotFound, a logged out one ErrNoSession.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.db.GetUserByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return u, nil
}

// ListUsers returns resident accounts only.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.db.ListUsersByRole(ctx, models.RoleUser)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// ImportUsers creates resident accounts from an xlsx sheet. Rows that fail
// are reported and do not stop the import.
func (s *UserService) ImportUsers(ctx context.Context, r io.Reader) (*ImportReport, error) {
	rows, err := excel.ReadUsers(r)
	if err != nil {
		return nil, err
	}
	report := &ImportReport{Errors: []RowError{}}
	for _, row := range rows {
		in := UserInput{
			Username:     row.Username,
			Fullname:     row.Fullname,
			Email:        row.Email,
			MobileNumber: row.MobileNumber,
			Password:     row.Password,
			Address:      row.Address,
			DOB:          row.DOB,
		}
		if _, err := s.AddUser(ctx, in); err != nil {
			if !isInputError(err) {
				return report, fmt.Errorf("import row %d: %w", row.Row, err)
			}
			report.Errors = append(report.Errors, RowError{Row: row.Row, Message: err.Error()})
			continue
		}
		report.Created++
	}
	s.logger.Info().Int("created", report.Created).Int("failed", len(report.Errors)).Msg("Users imported")
	return report, nil
}

func isInputError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrEmailTaken) || errors.Is(err, database.ErrDuplicate)
}
