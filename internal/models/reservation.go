package models

import "time"

// BookingKind is the pricing/occupancy model of an amenity reservation.
type BookingKind string

const (
	KindWholeDay BookingKind = "WholeDay"
	KindHalfDay  BookingKind = "HalfDay"
	KindHourly   BookingKind = "Hourly"
	KindFree     BookingKind = "Free"
)

// Valid reports whether k is one of the known booking kinds.
func (k BookingKind) Valid() bool {
	switch k {
	case KindWholeDay, KindHalfDay, KindHourly, KindFree:
		return true
	default:
		return false
	}
}

// TimeSlot names a half of the day. Only set for half-day reservations.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "Morning"
	SlotAfternoon TimeSlot = "Afternoon"
)

func (s TimeSlot) Valid() bool {
	return s == SlotMorning || s == SlotAfternoon
}

// Reservation is a persisted amenity booking.
// BookingDate is a civil date stored as midnight UTC.
// StartTime and EndTime are "HH:MM" strings, empty unless the booking is timed.
type Reservation struct {
	ID            int64       `json:"id"`
	ResourceID    string      `json:"resource_id"`
	AssociationID string      `json:"association_id"`
	UserID        int64       `json:"user_id"`
	BookingDate   time.Time   `json:"booking_date"`
	Kind          BookingKind `json:"booking_kind"`
	TimeSlot      TimeSlot    `json:"time_slot,omitempty"`
	StartTime     string      `json:"start_time,omitempty"`
	EndTime       string      `json:"end_time,omitempty"`
	IsCancelled   bool        `json:"is_cancelled"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Timed reports whether the reservation carries explicit start and end times.
func (r *Reservation) Timed() bool {
	return r.StartTime != "" && r.EndTime != ""
}

// BookingRequest is the transient input of the conflict validator.
// BookingDate accepts YYYY-MM-DD or an RFC3339 timestamp.
type BookingRequest struct {
	ResourceID    string      `json:"resource_id"`
	AssociationID string      `json:"association_id"`
	BookingDate   string      `json:"booking_date"`
	Kind          BookingKind `json:"booking_kind"`
	TimeSlot      TimeSlot    `json:"time_slot,omitempty"`
	StartTime     string      `json:"start_time,omitempty"`
	EndTime       string      `json:"end_time,omitempty"`
}

// DayAvailability summarises what can still be booked for a resource on a date.
type DayAvailability struct {
	ResourceID    string    `json:"resource_id"`
	AssociationID string    `json:"association_id"`
	Date          time.Time `json:"date"`
	WholeDay      bool      `json:"whole_day"`
	Morning       bool      `json:"morning"`
	Afternoon     bool      `json:"afternoon"`
	Free          bool      `json:"free"`
	// HourlyFrom is the earliest start allowed after the maintenance window, if any.
	HourlyFrom string `json:"hourly_from,omitempty"`
}
