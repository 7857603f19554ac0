package booking

// Code identifies why a request was rejected.
type Code string

const (
	CodeMissingFields         Code = "missing_fields"
	CodeInvalidInput          Code = "invalid_input"
	CodeMissingTimes          Code = "missing_times"
	CodeWholeDayBlockedByHalf Code = "whole_day_blocked_by_half_day"
	CodeWholeDayBooked        Code = "whole_day_booked"
	CodeDayBooked             Code = "day_booked"
	CodeSlotTaken             Code = "slot_taken"
	CodeHourlyBooked          Code = "hourly_booked"
	CodeHourlyMaintenance     Code = "hourly_maintenance"
	CodeHourlyHalfDay         Code = "hourly_half_day"
	CodeHourlyOverlap         Code = "hourly_overlap"
	CodeFreeExists            Code = "free_exists"
)

// Cause qualifies an hourly rejection.
type Cause string

const (
	CauseBusy        Cause = "busy"
	CauseMaintenance Cause = "under-maintenance"
)

const (
	MsgMissingFields         = "Missing required fields"
	MsgMissingTimes          = "Start time and end time are required for hourly booking"
	MsgWholeDayBlockedByHalf = "Whole day booking is not allowed as there is already a half-day booking for this date."
	MsgWholeDayBooked        = "Booking already exists for this whole day"
	MsgDayBooked             = "Booking already exists for this day"
	MsgSlotTaken             = "Booking already exists for this slot"
	MsgHourlyBooked          = "Slot already booked."
	MsgHourlyHalfDay         = "Conflicting half-day booking exists for this time slot"
	MsgHourlyOverlap         = "Overlapping hourly booking exists for this time slot"
)

// Result is the validator's decision. Rejections are values, not errors.
type Result struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
	Code     Code   `json:"code,omitempty"`
	Cause    Cause  `json:"cause,omitempty"`
	// AvailableFrom is the "HH:MM" end of the maintenance window.
	AvailableFrom string `json:"available_from,omitempty"`
}

func admit() Result {
	return Result{Admitted: true}
}

func reject(code Code, reason string) Result {
	return Result{Code: code, Reason: reason}
}

func maintenanceMessage(until Clock) string {
	return "Under maintenance until " + until.String() + "."
}
