// seed-admin creates or updates an admin user and optionally issues a session
// token for it, so the /api endpoints can be called before a login service exists.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... REDIS_ADDRESS=... \
//	  go run ./cmd/seed-admin -username assetsAdmin -issue-token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func main() {
	username := flag.String("username", "assetsAdmin", "Admin username.")
	name := flag.String("name", "Assets Admin", "Display name.")
	issueToken := flag.Bool("issue-token", false, "Also store a session token in Redis and print it.")
	tokenHours := flag.Int("token-hours", 24, "Lifespan of the issued token.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable(db)

	uname := strings.TrimSpace(*username)
	active := true
	existing, err := models.FindUserByUsername(ctx, db, uname)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u := models.User{Username: uname, Name: *name, IsActive: &active, Role: models.UserRoleAdmin}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q\n", uname)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	default:
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", uname).Updates(map[string]any{
			"name":      *name,
			"is_active": true,
			"role":      models.UserRoleAdmin,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated admin user: username=%q\n", uname)
	}

	if !*issueToken {
		return
	}
	config.ConnectRedisWithRetry()
	if existing != nil {
		_ = existing.RemoveInstanceRedis()
	}
	token := uuid.NewString()
	if err := config.SetRedisValue("Token:"+token, uname, time.Duration(*tokenHours)*time.Hour); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token=%s\n", token)
}
