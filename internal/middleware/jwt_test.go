package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/internal/service"
)

type jwtUserRepoStub struct {
	user *models.User
}

func (s *jwtUserRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user != nil && s.user.Email == email {
		return s.user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *jwtUserRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *jwtUserRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newJWTFixture(t *testing.T) (*service.AuthService, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &jwtUserRepoStub{user: &models.User{
		ID:           "user-1",
		Email:        "manager@tourdesk.io",
		PasswordHash: string(hash),
		Role:         models.RoleManager,
		Active:       true,
	}}
	authService := service.NewAuthService(repo, nil, nil, service.AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
	})
	resp, err := authService.Login(context.Background(), models.LoginRequest{
		Email:    "manager@tourdesk.io",
		Password: "secret123",
	})
	require.NoError(t, err)
	return authService, resp.AccessToken
}

func performWithHeader(authService *service.AuthService, header string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/console", JWT(authService), func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		if claims == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/console", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsValidToken(t *testing.T) {
	authService, token := newJWTFixture(t)
	w := performWithHeader(authService, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	authService, _ := newJWTFixture(t)
	w := performWithHeader(authService, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	authService, token := newJWTFixture(t)
	w := performWithHeader(authService, "Token "+token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsGarbageToken(t *testing.T) {
	authService, _ := newJWTFixture(t)
	w := performWithHeader(authService, "Bearer not.a.token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
