package user

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"heartlink-backend/internal/domain"
	"heartlink-backend/internal/service/user"
	"heartlink-backend/internal/service/wallet"
	"heartlink-backend/pkg/pagination"
	"heartlink-backend/pkg/response"
)

// Handler handles user HTTP requests
type Handler struct {
	userService   *user.Service
	walletService *wallet.Service
}

// NewHandler creates a new user handler
func NewHandler(userService *user.Service, walletService *wallet.Service) *Handler {
	return &Handler{
		userService:   userService,
		walletService: walletService,
	}
}

// Me returns the authenticated user's profile
// GET /v1/users/me
func (h *Handler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		response.InternalError(c, "Failed to load profile")
		return
	}

	response.Success(c, http.StatusOK, profile.ToResponse())
}

// Get returns another user's public profile with their presence state
// GET /v1/users/:userId
func (h *Handler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.ValidationError(c, "Invalid user id")
		return
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		response.InternalError(c, "Failed to load profile")
		return
	}

	online, err := h.userService.IsOnline(c.Request.Context(), userID)
	if err != nil {
		online = false
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":     profile.ToResponse(),
		"isOnline": online,
	})
}

// Online returns users currently holding a live connection
// GET /v1/users/online
func (h *Handler) Online(c *gin.Context) {
	users, err := h.userService.ListOnline(c.Request.Context())
	if err != nil {
		response.InternalError(c, "Failed to list online users")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// History returns the authenticated user's call events for one day bucket
// GET /v1/users/me/call-history?bucket=20600&limit=20
func (h *Handler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	bucket, err := queryInt(c, "bucket", 0)
	if err != nil {
		response.ValidationError(c, "Invalid bucket")
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.ValidationError(c, "Invalid limit")
		return
	}

	events, err := h.userService.History(c.Request.Context(), userID, bucket, limit)
	if err != nil {
		if errors.Is(err, user.ErrHistoryUnavailable) {
			response.Error(c, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Call history is not available")
			return
		}
		response.InternalError(c, "Failed to load call history")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// Transactions returns the authenticated user's ledger page
// GET /v1/users/me/transactions?page=1&limit=20
func (h *Handler) Transactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.ParsePaginationParams(
		c.Query("page"), c.Query("limit"), "", "desc")
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	txs, err := h.walletService.GetTransactions(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.InternalError(c, "Failed to load transactions")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"transactions": txs,
		"page":         params.Page,
		"limit":        params.Limit,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// currentUserID reads the authenticated user from the Gin context.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	idStr, ok := val.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
