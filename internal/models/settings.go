package models

import (
	"slices"
	"time"
)

type PlatformSettings struct {
	CommissionPercentage  float64   `json:"commission_percentage"`
	MinimumTaskAmount     int64     `json:"minimum_task_amount"`
	MaximumTaskAmount     int64     `json:"maximum_task_amount"`
	AllowedPaymentMethods []string  `json:"allowed_payment_methods"`
	AllowedCategories     []string  `json:"allowed_categories"`
	MaintenanceMode       bool      `json:"maintenance_mode"`
	RunnerStakeRequired   bool      `json:"runner_stake_required"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// AllowsCategory reports whether category may be used. An empty list allows all.
func (s *PlatformSettings) AllowsCategory(category string) bool {
	return len(s.AllowedCategories) == 0 || slices.Contains(s.AllowedCategories, category)
}

// AllowsPaymentMethod reports whether method may be used. An empty list allows all.
func (s *PlatformSettings) AllowsPaymentMethod(method string) bool {
	return len(s.AllowedPaymentMethods) == 0 || slices.Contains(s.AllowedPaymentMethods, method)
}
