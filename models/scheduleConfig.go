package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// scheduleConfigID pins the singleton row.
const scheduleConfigID = 1

type ScheduleConfig struct {
	ID          int        `gorm:"primary_key" json:"id"`
	Frequency   Frequency  `gorm:"type:enum('Daily','Weekly','Bi-Weekly','Monthly');not null" json:"frequency"`
	Weekday     int        `gorm:"not null;default:0" json:"weekday"`
	DayOfMonth  int        `gorm:"not null;default:1" json:"day_of_month"`
	TimeOfDay   string     `gorm:"size:5;not null" json:"time_of_day"`
	Recipients  []string   `gorm:"serializer:json;type:json" json:"recipients"`
	Contact     string     `gorm:"size:255" json:"contact"`
	NextRoll    *time.Time `json:"next_roll"`
	LastRollOut *time.Time `json:"last_roll_out"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewScheduleConfig struct {
	Frequency  Frequency `json:"frequency" validate:"required"`
	Weekday    *int      `json:"weekday" validate:"omitempty,min=0,max=6"`
	DayOfMonth *int      `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	TimeOfDay  string    `json:"time_of_day" validate:"required,datetime=15:04"`
	Recipients []string  `json:"recipients" validate:"required,min=1,dive,required,email"`
	Contact    string    `json:"contact" validate:"omitempty,email"`
}

// ClockTime splits TimeOfDay ("HH:MM") into hour and minute.
func (c ScheduleConfig) ClockTime() (int, int, error) {
	return parseClockTime(c.TimeOfDay)
}

func parseClockTime(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, &utils.ConfigurationError{Field: "time_of_day", Reason: "must be HH:MM"}
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, &utils.ConfigurationError{Field: "time_of_day", Reason: "hour must be 0-23"}
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, &utils.ConfigurationError{Field: "time_of_day", Reason: "minute must be 0-59"}
	}
	return hour, minute, nil
}

// Validate checks the stored config is usable for computing occurrences.
func (c ScheduleConfig) Validate() error {
	if !c.Frequency.IsValid() {
		return &utils.ConfigurationError{Field: "frequency", Reason: fmt.Sprintf("unsupported value %q", c.Frequency)}
	}
	if _, _, err := c.ClockTime(); err != nil {
		return err
	}
	switch c.Frequency {
	case FrequencyWeekly, FrequencyBiWeekly:
		if c.Weekday < 0 || c.Weekday > 6 {
			return &utils.ConfigurationError{Field: "weekday", Reason: "must be 0-6"}
		}
	case FrequencyMonthly:
		if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
			return &utils.ConfigurationError{Field: "day_of_month", Reason: "must be 1-31"}
		}
	}
	if len(c.Recipients) == 0 {
		return &utils.ConfigurationError{Field: "recipients", Reason: "at least one recipient is required"}
	}
	return nil
}

// ValidateScheduleInput runs tag validation and the per-frequency field requirements.
func ValidateScheduleInput(input *NewScheduleConfig) error {
	if input == nil {
		return &utils.ConfigurationError{Reason: "input is required"}
	}
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Frequency.IsValid() {
		return &utils.ConfigurationError{Field: "frequency", Reason: fmt.Sprintf("unsupported value %q", input.Frequency)}
	}
	switch input.Frequency {
	case FrequencyWeekly, FrequencyBiWeekly:
		if input.Weekday == nil {
			return &utils.ConfigurationError{Field: "weekday", Reason: "is required for " + string(input.Frequency)}
		}
	case FrequencyMonthly:
		if input.DayOfMonth == nil {
			return &utils.ConfigurationError{Field: "day_of_month", Reason: "is required for Monthly"}
		}
	}
	return nil
}

// ToConfig applies the input on top of existing (which may be nil), keeping
// the scheduler-owned timestamps.
func (input NewScheduleConfig) ToConfig(existing *ScheduleConfig) ScheduleConfig {
	cfg := ScheduleConfig{ID: scheduleConfigID, DayOfMonth: 1}
	if existing != nil {
		cfg = *existing
		cfg.ID = scheduleConfigID
	}
	cfg.Frequency = input.Frequency
	if input.Weekday != nil {
		cfg.Weekday = *input.Weekday
	}
	if input.DayOfMonth != nil {
		cfg.DayOfMonth = *input.DayOfMonth
	}
	cfg.TimeOfDay = strings.TrimSpace(input.TimeOfDay)
	recipients := make([]string, 0, len(input.Recipients))
	for _, r := range input.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	cfg.Recipients = recipients
	cfg.Contact = strings.TrimSpace(input.Contact)
	return cfg
}

// ScheduleStore persists the singleton ScheduleConfig and the report run history.
type ScheduleStore struct {
	db *gorm.DB
}

func NewScheduleStore(db *gorm.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) LoadScheduleConfig(ctx context.Context) (*ScheduleConfig, error) {
	var cfg ScheduleConfig
	err := s.db.WithContext(ctx).Where("id = ?", scheduleConfigID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrScheduleNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *ScheduleStore) SaveScheduleConfig(ctx context.Context, input *NewScheduleConfig) (*ScheduleConfig, error) {
	if err := ValidateScheduleInput(input); err != nil {
		return nil, err
	}
	existing, err := s.LoadScheduleConfig(ctx)
	if err != nil && !errors.Is(err, utils.ErrScheduleNotConfigured) {
		return nil, err
	}
	cfg := input.ToConfig(existing)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"frequency", "weekday", "day_of_month", "time_of_day", "recipients", "contact", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *ScheduleStore) UpdateNextRoll(ctx context.Context, next time.Time) error {
	return s.updateColumn(ctx, "next_roll", next)
}

func (s *ScheduleStore) UpdateLastRollOut(ctx context.Context, at time.Time) error {
	return s.updateColumn(ctx, "last_roll_out", at)
}

func (s *ScheduleStore) updateColumn(ctx context.Context, column string, value time.Time) error {
	// MySQL reports zero affected rows when the value is unchanged, so
	// RowsAffected cannot signal a missing row here.
	return s.db.WithContext(ctx).Model(&ScheduleConfig{}).
		Where("id = ?", scheduleConfigID).
		Update(column, value.UTC()).Error
}
