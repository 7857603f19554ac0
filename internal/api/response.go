package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/seyone-projects/reda-backend/internal/auth"
	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/excel"
	"github.com/seyone-projects/reda-backend/internal/logging"
	"github.com/seyone-projects/reda-backend/internal/service"
	"github.com/seyone-projects/reda-backend/internal/storage"
)

const (
	msgServerError   = "Server-side issue. Please try again later."
	msgInvalidJSON   = "Invalid JSON body"
	msgBodyTooLarge  = "Request body too large"
	msgNotFound      = "Not found"
	msgTooManyReqs   = "Too many requests from this IP, please try again later."
	msgTokenRequired = "A token is required for authentication"
	msgUserNotFound  = "User not found"
	msgNoSession     = "Invalid token"
	msgBadToken      = "Invalid token. Please log in again."
	msgTokenExpired  = "Your session has expired. Please log in again."
	msgAccessDenied  = "Access denied. Insufficient permissions."
)

var errInvalidJSON = errors.New(msgInvalidJSON)

// response is the envelope of every JSON reply.
type response struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, response{Status: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, response{Status: false, Message: message})
}

// writeServiceError maps domain errors to HTTP replies. Unknown errors are
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *service.ValidationError
		dup    *database.DuplicateError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, response{Status: false, Message: verr.Error(), Errors: verr.Fields})
	case errors.Is(err, service.ErrEmailOrMobileTaken):
		writeError(w, http.StatusConflict, "Email or mobile number already exists")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, dup.Field+" already exists. Please use a unique value.")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid mobile number or password")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, msgTokenExpired)
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, msgBadToken)
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusForbidden, msgUserNotFound)
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusUnauthorized, msgNoSession)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, msgAccessDenied)
	case errors.Is(err, service.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "Reservation not found")
	case errors.Is(err, service.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "Reservation is already cancelled")
	case errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrUnknownSection),
		errors.Is(err, service.ErrTooManyFiles),
		errors.Is(err, service.ErrInvalidSocialMedia),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, excel.ErrMissingColumns),
		errors.Is(err, excel.ErrInvalidWorkbook):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooBig), errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	case errors.Is(err, errInvalidJSON):
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
	default:
		logging.FromContext(r.Context(), &nopLogger).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	var tooBig *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooBig):
		return err
	}
	return fmt.Errorf("%w: %v", errInvalidJSON, err)
}
