package model

import "time"

type Tier string

const (
	TierHobby      Tier = "hobby"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Team owns projects and carries the billing plan. BillingCycleStart is only
// set for yearly-billed teams; when present the usage window is anchored to
// it instead of the calendar month.
type Team struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"size:128;not null" json:"name"`
	Tier              Tier       `gorm:"size:32;not null" json:"tier"`
	YearlyBilling     bool       `json:"yearly_billing"`
	BillingCycleStart *time.Time `json:"billing_cycle_start"`
	CreatedAt         time.Time  `json:"created_at"`
}

type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"not null;index" json:"team_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
