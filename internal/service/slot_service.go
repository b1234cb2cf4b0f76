package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medhaven/clinicflow/internal/config"
	"github.com/medhaven/clinicflow/internal/domain/appointment"
)

// SlotService answers availability questions against the clinic's daily slot
// grid. Its reads are advisory snapshots: the unique index on the
// appointments table remains the only authority on conflicts.
type SlotService struct {
	repo  appointment.Repository
	slots []string
}

func NewSlotService(repo appointment.Repository, cfg config.ClinicConfig) *SlotService {
	return &SlotService{repo: repo, slots: cfg.SlotTimes}
}

// Slots returns the full daily grid, in display order.
func (s *SlotService) Slots() []string {
	out := make([]string, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *SlotService) IsCanonical(timeSlot string) bool {
	for _, slot := range s.slots {
		if slot == timeSlot {
			return true
		}
	}
	return false
}

// AvailableSlots returns grid slots not held by a live appointment for the
// doctor on the date. Cancelled appointments do not occupy slots.
func (s *SlotService) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	booked, err := s.repo.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("loading booked slots: %w", err)
	}

	taken := make(map[string]bool, len(booked))
	for _, a := range booked {
		taken[a.TimeSlot] = true
	}

	available := make([]string, 0, len(s.slots))
	for _, slot := range s.slots {
		if !taken[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

func (s *SlotService) IsAvailable(ctx context.Context, doctorID uuid.UUID, date, timeSlot string) (bool, error) {
	if !s.IsCanonical(timeSlot) {
		return false, nil
	}
	available, err := s.AvailableSlots(ctx, doctorID, date)
	if err != nil {
		return false, err
	}
	for _, slot := range available {
		if slot == timeSlot {
			return true, nil
		}
	}
	return false, nil
}
