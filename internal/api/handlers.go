package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/service"
)

const msgSlotAvailable = "Slot available"

var errBadID = errors.New("invalid reservation id")

// inputRejection reports results that describe a malformed request rather
// than a conflict with existing reservations.
func inputRejection(res booking.Result) bool {
	switch res.Code {
	case booking.CodeMissingFields, booking.CodeInvalidInput, booking.CodeMissingTimes:
		return true
	}
	return false
}

func (s *HTTPServer) handleValidateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Reservations.Validate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	message := res.Reason
	if res.Admitted {
		message = msgSlotAvailable
	}
	writeJSON(w, http.StatusOK, response{Status: res.Admitted, Message: message, Data: res})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user := userFromContext(r.Context())

	created, res, err := s.deps.Reservations.Book(r.Context(), req, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if created == nil {
		code := http.StatusConflict
		if inputRejection(res) {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, response{Status: false, Message: res.Reason, Data: res})
		return
	}
	writeSuccess(w, http.StatusCreated, "Booking created successfully", created)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := service.ListQuery{
		ResourceID:    q.Get("resource_id"),
		AssociationID: q.Get("association_id"),
		From:          q.Get("from"),
		To:            q.Get("to"),
	}
	lq.IncludeCancelled, _ = strconv.ParseBool(q.Get("include_cancelled"))

	user := userFromContext(r.Context())
	if user.Role == models.RoleUser {
		lq.UserID = user.ID
	} else if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id")
			return
		}
		lq.UserID = id
	}

	rs, err := s.deps.Reservations.List(r.Context(), lq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rs == nil {
		rs = []*models.Reservation{}
	}
	writeSuccess(w, http.StatusOK, "", rs)
}

type availabilityQuery struct {
	ResourceID    string `json:"resource_id" validate:"required"`
	AssociationID string `json:"association_id"`
	Date          string `json:"date" validate:"required"`
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	aq := availabilityQuery{ResourceID: q.Get("resource_id"), AssociationID: q.Get("association_id"), Date: q.Get("date")}
	if err := service.Validate(aq); err != nil {
		writeServiceError(w, r, err)
		return
	}
	av, err := s.deps.Reservations.DayAvailability(r.Context(), aq.ResourceID, aq.AssociationID, aq.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", av)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errBadID.Error())
		return
	}
	cancelled, err := s.deps.Reservations.Cancel(r.Context(), id, userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking cancelled successfully", cancelled)
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))

	// Render fully before writing so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := s.deps.Reservations.Export(r.Context(), &buf, from, to); err != nil {
		writeServiceError(w, r, err)
		return
	}

	name := "reservations_" + time.Now().Format("2006-01-02") + ".xlsx"
	if from != "" || to != "" {
		name = fmt.Sprintf("reservations_%s_to_%s.xlsx", orAll(from), orAll(to))
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func orAll(v string) string {
	if v == "" {
		return "all"
	}
	if len(v) > len("2006-01-02") {
		return v[:len("2006-01-02")]
	}
	return v
}
