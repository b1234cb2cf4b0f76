package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotTaken               = errors.New("appointment time slot is already booked")
	ErrInvalidSlot             = errors.New("requested time is not on the clinic slot grid")
	ErrInvalidDate             = errors.New("appointment date must be in YYYY-MM-DD format")
	ErrDateInPast              = errors.New("cannot book an appointment in the past")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
)
