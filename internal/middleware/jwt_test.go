package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func TestRequireJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	student, _ := auth.IssueToken(service.TokenTypeStudent, uuid.New(), "Siti")
	admin, _ := auth.IssueToken(service.TokenTypeAdmin, uuid.New(), "Guru")

	r := gin.New()
	ok := func(c *gin.Context) {
		if GetClaims(c) == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
	r.GET("/student", RequireStudentJWT(auth), ok)
	r.GET("/admin", RequireAdminJWT(auth), ok)
	r.GET("/ws", RequireStudentWSAuth(auth), ok)

	testCases := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantErr  response.ErrCode
	}{
		{"student bearer", "/student", "Bearer " + student, http.StatusNoContent, ""},
		{"admin via query", "/admin?token=" + admin, "", http.StatusNoContent, ""},
		{"ws query", "/ws?token=" + student, "", http.StatusNoContent, ""},
		{"ws ignores header", "/ws", "Bearer " + student, http.StatusUnauthorized, response.ErrTokenRequired},
		{"missing", "/student", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"garbage", "/student", "Bearer nope", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"admin on student route", "/student", "Bearer " + admin, http.StatusForbidden, response.ErrStudentAccessOnly},
		{"student on admin route", "/admin", "Bearer " + student, http.StatusForbidden, response.ErrAdminAccessOnly},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if tc.wantErr == "" {
				return
			}
			var body response.Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error == nil || body.Error.Code != tc.wantErr {
				t.Errorf("error = %+v, want %s", body.Error, tc.wantErr)
			}
		})
	}
}
