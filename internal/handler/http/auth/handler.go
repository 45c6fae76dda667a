package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"heartlink-backend/internal/service/auth"
	"heartlink-backend/pkg/metrics"
	"heartlink-backend/pkg/response"
)

// Handler handles HTTP requests for authentication
type Handler struct {
	authService *auth.Service
	metrics     *metrics.Metrics
}

// NewHandler creates a new auth handler. metrics may be nil.
func NewHandler(authService *auth.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		authService: authService,
		metrics:     m,
	}
}

// RequestOTPRequest represents OTP request body
type RequestOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// VerifyOTPRequest represents OTP verification body
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required,len=6"`
}

// RefreshTokenRequest represents refresh token request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RequestOTP issues a one-time login code
// POST /v1/auth/request-otp
func (h *Handler) RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.authService.RequestOTP(c.Request.Context(), req.Phone); err != nil {
		if errors.Is(err, auth.ErrInvalidPhone) {
			response.ValidationError(c, "Invalid phone number")
			return
		}
		response.InternalError(c, "Failed to send code")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Code sent"})
}

// VerifyOTP exchanges a code for a token pair
// POST /v1/auth/verify-otp
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	h.recordAttempt("otp")
	user, tokens, err := h.authService.VerifyOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidPhone):
			h.recordFailure("otp", "invalid_phone")
			response.ValidationError(c, "Invalid phone number")
		case errors.Is(err, auth.ErrInvalidOTP):
			h.recordFailure("otp", "invalid_code")
			response.Unauthorized(c, "Invalid or expired code")
		case errors.Is(err, auth.ErrTooManyAttempts):
			h.recordFailure("otp", "too_many_attempts")
			response.Error(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many verification attempts")
		default:
			h.recordFailure("otp", "internal")
			response.InternalError(c, "Verification failed")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":   user.ToResponse(),
		"tokens": tokens,
	})
}

// Refresh exchanges a refresh token for a new pair
// POST /v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	h.recordAttempt("refresh")
	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.recordFailure("refresh", "invalid_token")
		response.Unauthorized(c, "Invalid or expired token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": tokens})
}

// Logout revokes the caller's access token
// POST /v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		response.Unauthorized(c, "Authorization header required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), parts[1]); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			response.Unauthorized(c, "Invalid or expired token")
			return
		}
		response.InternalError(c, "Failed to log out")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) recordAttempt(method string) {
	if h.metrics != nil {
		h.metrics.RecordAuthAttempt(method)
	}
}

func (h *Handler) recordFailure(method, reason string) {
	if h.metrics != nil {
		h.metrics.RecordAuthFailure(method, reason)
	}
}
