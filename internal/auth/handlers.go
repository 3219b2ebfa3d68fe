package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Login handles operator login
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	pair, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "failed to login")
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Refresh handles token refresh
// POST /api/auth/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err, "failed to refresh tokens")
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout revokes the supplied refresh token
// POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		h.service.Logout(c.Request.Context(), req.RefreshToken)
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated operator
// GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	claims := GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Code, "message": ErrUnauthorized.Message})
		return
	}
	c.JSON(http.StatusOK, claims)
}

func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	var authErr AuthError
	if !errors.As(err, &authErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": fallback,
		})
		return
	}

	status := http.StatusUnauthorized
	if authErr.Code == ErrRateLimited.Code {
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{
		"error":   authErr.Code,
		"message": authErr.Message,
	})
}

// RegisterRoutes registers all auth routes
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/login", h.Login)
	router.POST("/refresh", h.Refresh)
	router.POST("/logout", h.Logout)

	protected := router.Group("")
	protected.Use(Middleware(h.service.JWT()))
	{
		protected.GET("/me", h.Me)
	}
}
