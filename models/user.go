package models

import (
	"context"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A', 'S');default:S" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const userCacheDefaultHours = 24

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin && (u.IsActive == nil || *u.IsActive)
}

func FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser retrieves the user from redis or db, caching db hits for the token lifespan.
func GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	found, err := FindUserByUsername(ctx, config.GetDB(), username)
	if err != nil {
		return nil, err
	}
	lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = userCacheDefaultHours
	}
	if err := config.SetRedisObject("User:"+found.Username, found, time.Duration(lifespan)*time.Hour); err != nil {
		return nil, err
	}
	return found, nil
}

// RemoveInstanceRedis drops the cached copy so the next request re-reads the role.
func (u User) RemoveInstanceRedis() error {
	return config.DeleteRedisKey("User:" + u.Username)
}
