package models

import (
	"encoding/json"
	"errors"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "Daily"
	FrequencyWeekly   Frequency = "Weekly"
	FrequencyBiWeekly Frequency = "Bi-Weekly"
	FrequencyMonthly  Frequency = "Monthly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func (f *Frequency) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("frequency must be string")
	}
	v := Frequency(str)
	if !v.IsValid() {
		return errors.New("invalid frequency")
	}
	*f = v
	return nil
}

type AssetType string

const (
	AssetTypeHardware   AssetType = "Hardware"
	AssetTypeSoftware   AssetType = "Software"
	AssetTypeAccessory  AssetType = "Accessory"
	AssetTypeSubscriber AssetType = "Subscription"
)

type ReportTrigger string

const (
	ReportTriggerScheduled ReportTrigger = "scheduled"
	ReportTriggerManual    ReportTrigger = "manual"
)

type ReportRunStatus string

const (
	ReportRunStatusRunning   ReportRunStatus = "running"
	ReportRunStatusSucceeded ReportRunStatus = "succeeded"
	ReportRunStatusFailed    ReportRunStatus = "failed"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleStaff UserRole = "S"
)
