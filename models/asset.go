package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Asset struct {
	ID             int       `gorm:"primary_key" json:"id"`
	AssetTag       string    `gorm:"size:50;uniqueIndex" json:"asset_tag"`
	Type           AssetType `gorm:"size:20;index;not null" json:"type"`
	Category       string    `gorm:"size:100;index" json:"category"`
	Status         string    `gorm:"size:50;index" json:"status"`
	Brand          string    `gorm:"size:100" json:"brand"`
	ModelName      string    `gorm:"column:model;size:100" json:"model"`
	SerialNumber   string    `gorm:"size:100" json:"serial_number"`
	Assignee       string    `gorm:"size:50" json:"assignee"`
	RecoveredFrom  string    `gorm:"size:50" json:"recovered_from"`
	PurchaseDate   string    `gorm:"size:40" json:"purchase_date"`
	WarrantyExpiry string    `gorm:"size:40" json:"warranty_expiry"`
	AssignedDate   string    `gorm:"size:40" json:"assigned_date"`
	RecoveredDate  string    `gorm:"size:40" json:"recovered_date"`
	RGE            bool      `gorm:"column:rge;not null;default:false" json:"rge"`
	Remarks        string    `gorm:"type:text" json:"remarks"`
	Tags           []string  `gorm:"serializer:json;type:json" json:"tags"`
	CreatedBy      string    `gorm:"size:100" json:"created_by"`
	UpdatedBy      string    `gorm:"size:100" json:"updated_by"`
	Version        int       `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Employee struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Code       string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name       string    `gorm:"size:150;not null" json:"name"`
	Department string    `gorm:"size:100" json:"department"`
	Email      string    `gorm:"size:150" json:"email"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedBy  string    `gorm:"size:100" json:"created_by"`
	UpdatedBy  string    `gorm:"size:100" json:"updated_by"`
	Version    int       `gorm:"not null;default:0" json:"version"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AssetCounter tracks the running tag number per category. Depleting is set
// by the CRUD side when Count approaches Threshold.
type AssetCounter struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Category  string    `gorm:"size:100;uniqueIndex;not null" json:"category"`
	Prefix    string    `gorm:"size:20" json:"prefix"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	Threshold int       `gorm:"not null;default:0" json:"threshold"`
	Depleting bool      `gorm:"not null;default:false" json:"depleting"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Option holds a named pick-list (categories, statuses, departments).
type Option struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Values    []string  `gorm:"serializer:json;type:json" json:"values"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryReader serves the read side of the report pipeline.
type InventoryReader struct {
	db *gorm.DB
}

func NewInventoryReader(db *gorm.DB) *InventoryReader {
	return &InventoryReader{db: db}
}

func (r *InventoryReader) ListEmployees(ctx context.Context) ([]Employee, error) {
	var employees []Employee
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&employees).Error; err != nil {
		return nil, err
	}
	return employees, nil
}

func (r *InventoryReader) ListHardwareAssets(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	if err := r.db.WithContext(ctx).
		Where("type = ?", AssetTypeHardware).
		Order("id ASC").
		Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *InventoryReader) ListDepletingCounters(ctx context.Context) ([]AssetCounter, error) {
	var counters []AssetCounter
	if err := r.db.WithContext(ctx).
		Where("depleting = ?", true).
		Order("category ASC").
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}
