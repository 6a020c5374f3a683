package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"stockwatch_backend/models"
)

const testSecret = "test-secret"

func setupProtectedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuthMiddleware(secret), func(c *gin.Context) {
		userID, err := GetUserIDFromContext(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "userId": userID})
	})
	return router
}

func request(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	user := &models.User{ID: 7, Name: "Alice", Email: "alice@example.com"}
	token, err := GenerateToken(user, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	router := setupProtectedRouter(testSecret)

	t.Run("valid token", func(t *testing.T) {
		w := request(router, "Bearer "+token)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
		}
	})

	t.Run("missing header", func(t *testing.T) {
		w := request(router, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		w := request(router, token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		w := request(router, "Bearer not-a-token")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := setupProtectedRouter("different-secret")
		w := request(other, "Bearer "+token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestTokenCarriesUserClaims(t *testing.T) {
	user := &models.User{ID: 42, Name: "Bob", Email: "bob@example.com"}
	token, err := GenerateToken(user, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	claims, err := validateToken(token, testSecret)
	if err != nil {
		t.Fatalf("validateToken() error: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "bob@example.com" || claims.Name != "Bob" {
		t.Errorf("claims = %+v, want user 42 Bob", claims)
	}
	if claims.ExpiresAt == nil {
		t.Error("token has no expiry")
	}
}
