package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(lookup TokenLookup, find UserFinder) *gin.Engine {
	r := gin.New()
	r.Use(SessionMiddlewareWith(lookup))
	r.Use(AdminMiddlewareWith(find))
	r.GET("/api/ping", func(c *gin.Context) {
		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"username": username, "admin": utils.IsAdminFromContext(c.Request.Context())})
	})
	return r
}

func tokens(m map[string]string) TokenLookup {
	return func(key string) (string, bool, error) {
		v, ok := m[key]
		return v, ok, nil
	}
}

func users(m map[string]models.UserRole) UserFinder {
	return func(ctx context.Context, username string) (*models.User, error) {
		role, ok := m[username]
		if !ok {
			return nil, gorm.ErrRecordNotFound
		}
		return &models.User{Username: username, Role: role}, nil
	}
}

func TestSessionAndAdmin(t *testing.T) {
	r := testRouter(
		tokens(map[string]string{"Token:admin-token": "thida", "Token:staff-token": "kyaw"}),
		users(map[string]models.UserRole{"thida": models.UserRoleAdmin, "kyaw": models.UserRoleStaff}),
	)
	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"unknown token", "nope", http.StatusUnauthorized},
		{"staff", "staff-token", http.StatusForbidden},
		{"admin", "admin-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
			if tc.token != "" {
				req.Header.Set("token", tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestAdminLookupFailure(t *testing.T) {
	r := testRouter(
		tokens(map[string]string{"Token:t": "thida"}),
		func(context.Context, string) (*models.User, error) { return nil, errors.New("db down") },
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("token", "t")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}
