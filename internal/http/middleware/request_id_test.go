package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/internal/http/middleware"
)

var _ = Describe("RequestID", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		router.Use(middleware.RequestID(), middleware.Recovery())
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET("/panic", func(c *gin.Context) { panic("boom") })
	})

	get := func(path, requestID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if requestID != "" {
			req.Header.Set(middleware.RequestIDHeader, requestID)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("echoes the caller's request id", func() {
		w := get("/ok", "req-123")
		Expect(w.Header().Get(middleware.RequestIDHeader)).To(Equal("req-123"))
	})

	It("assigns a uuid when none is sent", func() {
		w := get("/ok", "")
		_, err := uuid.Parse(w.Header().Get(middleware.RequestIDHeader))
		Expect(err).NotTo(HaveOccurred())
	})

	It("replaces oversized ids", func() {
		w := get("/ok", strings.Repeat("x", 200))
		Expect(w.Header().Get(middleware.RequestIDHeader)).To(HaveLen(36))
	})

	It("recovers panics as 500", func() {
		w := get("/panic", "")
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})
})
