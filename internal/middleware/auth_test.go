package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsboard/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(actions ...policy.Action) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{Authenticate(testSecret)}
	for _, action := range actions {
		handlers = append(handlers, RequirePermission(policy.Default(), action))
	}
	handlers = append(handlers, func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": string(actor.Role)})
	})
	r.GET("/me", handlers...)
	return r
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, policy.Actor{ID: "u1", Role: policy.RoleManager}, time.Hour, time.Now())
	require.NoError(t, err)

	actor, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, policy.Actor{ID: "u1", Role: policy.RoleManager}, actor)

	_, err = ParseToken(token, []byte("other"))
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken(testSecret, policy.Actor{ID: "u1", Role: policy.RoleAdmin}, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	token, err := IssueToken(testSecret, policy.Actor{ID: "u1", Role: policy.RoleAdmin}, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"cookie", "", token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad scheme", "Token " + token, "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			newRouter().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":"u1","role":"admin"}`, w.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name string
		role policy.Role
		want int
	}{
		{"admin reads audit", policy.RoleAdmin, http.StatusOK},
		{"manager reads audit", policy.RoleManager, http.StatusOK},
		{"other is denied", policy.RoleOther, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := IssueToken(testSecret, policy.Actor{ID: "u2", Role: tt.role}, time.Hour, time.Now())
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			newRouter(policy.AuditRead).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Contains(t, w.Body.String(), `"code":"forbidden"`)
			}
		})
	}
}
