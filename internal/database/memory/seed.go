package memory

import (
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/shopspring/decimal"
)

// Fixed ids of the demo catalog loaded in memory mode.
const (
	DemoTourID  = "8a3c3f4e-2b1d-4f6a-9c1e-0d5b7a9e1f20"
	DemoUserID  = "5f9d2c1a-7e4b-4a3c-8d2f-1b6e9a0c3d47"
	DemoAdminID = "c2e8b7a1-3d5f-4e9c-a6b0-7f1d2e3c4b58"
)

// SeedDemo loads one tour, one traveller and one admin.
func SeedDemo(s *Store) {
	now := time.Now().UTC()

	s.PutTour(entity.Tour{
		ID:           DemoTourID,
		Title:        "Hạ Long Bay 3N2Đ",
		Price:        decimal.NewFromInt(1_000_000),
		DurationDays: 3,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	s.PutUser(entity.User{
		ID:        DemoUserID,
		Email:     "traveller@example.com",
		FullName:  "Demo Traveller",
		Role:      entity.RoleUser,
		CreatedAt: now,
	})
	s.PutUser(entity.User{
		ID:        DemoAdminID,
		Email:     "admin@example.com",
		FullName:  "Demo Admin",
		Role:      entity.RoleAdmin,
		CreatedAt: now,
	})
}
