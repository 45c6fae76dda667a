package groupcall

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"heartlink-backend/internal/service/groupcall"
	"heartlink-backend/internal/service/wallet"
	"heartlink-backend/pkg/pagination"
	"heartlink-backend/pkg/response"
)

// Handler handles group call HTTP requests
type Handler struct {
	groupService *groupcall.Service
}

// NewHandler creates a new group call handler
func NewHandler(groupService *groupcall.Service) *Handler {
	return &Handler{
		groupService: groupService,
	}
}

// CreateRequest represents group call creation request
type CreateRequest struct {
	CallType        string `json:"callType" binding:"required,oneof=audio video"`
	MaxParticipants int    `json:"maxParticipants" binding:"omitempty,min=2,max=20"`
}

// Create opens a new group call room
// POST /v1/group-calls
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.groupService.Create(c.Request.Context(), userID, req.CallType, req.MaxParticipants)
	if err != nil {
		response.InternalError(c, "Failed to create group call")
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// Join registers the caller on a room's roster
// POST /v1/group-calls/:roomId/join
func (h *Handler) Join(c *gin.Context) {
	roomID := c.Param("roomId")

	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.groupService.Join(c.Request.Context(), roomID, userID)
	if err != nil {
		switch {
		case errors.Is(err, groupcall.ErrSessionNotFound):
			response.NotFound(c, "Group call not found")
		case errors.Is(err, groupcall.ErrSessionEnded):
			response.Error(c, http.StatusGone, "CALL_ENDED", "Group call has already ended")
		case errors.Is(err, groupcall.ErrSessionFull):
			response.Conflict(c, "Group call is full")
		case errors.Is(err, groupcall.ErrAlreadyInCall):
			response.Conflict(c, "Already joined this call")
		case errors.Is(err, wallet.ErrInsufficientCoins):
			response.Error(c, http.StatusPaymentRequired, "INSUFFICIENT_COINS", "Not enough coins to join")
		default:
			response.InternalError(c, "Failed to join group call")
		}
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Leave removes the caller from a room's roster
// POST /v1/group-calls/:roomId/leave
func (h *Handler) Leave(c *gin.Context) {
	roomID := c.Param("roomId")

	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.groupService.Leave(c.Request.Context(), roomID, userID)
	if err != nil {
		switch {
		case errors.Is(err, groupcall.ErrSessionNotFound):
			response.NotFound(c, "Group call not found")
		case errors.Is(err, groupcall.ErrNotParticipant):
			response.Forbidden(c, "Not a participant of this call")
		default:
			response.InternalError(c, "Failed to leave group call")
		}
		return
	}

	response.Success(c, http.StatusOK, session)
}

// End terminates a room; only the creator may end it
// POST /v1/group-calls/:roomId/end
func (h *Handler) End(c *gin.Context) {
	roomID := c.Param("roomId")

	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.groupService.End(c.Request.Context(), roomID, userID)
	if err != nil {
		switch {
		case errors.Is(err, groupcall.ErrSessionNotFound):
			response.NotFound(c, "Group call not found")
		case errors.Is(err, groupcall.ErrNotCreator):
			response.Forbidden(c, "Only the creator can end the call")
		case errors.Is(err, groupcall.ErrSessionEnded):
			response.Error(c, http.StatusGone, "CALL_ENDED", "Group call has already ended")
		default:
			response.InternalError(c, "Failed to end group call")
		}
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Get returns a single room by ID
// GET /v1/group-calls/:roomId
func (h *Handler) Get(c *gin.Context) {
	roomID := c.Param("roomId")

	session, err := h.groupService.GetByRoomID(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, groupcall.ErrSessionNotFound) {
			response.NotFound(c, "Group call not found")
			return
		}
		response.InternalError(c, "Failed to load group call")
		return
	}

	response.Success(c, http.StatusOK, session)
}

// ListOpen returns joinable rooms, optionally filtered by call type
// GET /v1/group-calls?type=video&page=1&limit=20
func (h *Handler) ListOpen(c *gin.Context) {
	params, err := pagination.ParsePaginationParams(
		c.Query("page"), c.Query("limit"), "", "desc")
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callType := c.Query("type")
	if callType != "" && callType != "audio" && callType != "video" {
		response.ValidationError(c, "type must be audio or video")
		return
	}

	sessions, total, err := h.groupService.ListOpen(c.Request.Context(), callType, params.Limit, params.Offset)
	if err != nil {
		response.InternalError(c, "Failed to list group calls")
		return
	}

	response.Success(c, http.StatusOK, pagination.BuildPaginationResponse(params, total, sessions))
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
