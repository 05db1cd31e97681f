package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&Asset{}, &AssetCounter{},
		&Employee{},
		&Option{},
		&ReportRun{},
		&ScheduleConfig{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
