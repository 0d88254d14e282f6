package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-saga/internal/orchestrator"
	"booking-saga/internal/saga"
	"booking-saga/internal/status"
)

type Handler struct {
	coord Coordinator
}

func NewHandler(coord Coordinator) *Handler {
	return &Handler{coord: coord}
}

func NewRouter(coord Coordinator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h := NewHandler(coord)

	r.GET("/healthz", h.Healthz)

	s := r.Group("/api/saga")
	s.POST("/start", h.StartSaga)
	s.GET("", h.ListSagas)
	s.GET("/:id", h.GetSaga)
	s.GET("/:id/events", h.GetEvents)
	s.POST("/:id/complete-notifications", h.CompleteNotifications)
	s.POST("/:id/recover-payment", h.RecoverPayment)
	return r
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) StartSaga(c *gin.Context) {
	var req saga.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidJSON})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrValidation, Detail: err.Error()})
		return
	}

	sagaID, err := h.coord.Start(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrInternal})
		return
	}

	// Accepted, not created: the saga progresses asynchronously from here.
	c.JSON(http.StatusAccepted, StartResponse{SagaID: sagaID, Status: string(status.Started)})
}

func (h *Handler) GetSaga(c *gin.Context) {
	inst, err := h.coord.GetSaga(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrInternal})
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *Handler) ListSagas(c *gin.Context) {
	all, err := h.coord.GetAllSagas(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrInternal})
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *Handler) GetEvents(c *gin.Context) {
	records, err := h.coord.GetEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrInternal})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) CompleteNotifications(c *gin.Context) {
	sagaID := c.Param("id")
	if err := h.coord.RecoverStuckNotifications(c.Request.Context(), sagaID); err != nil {
		h.recoveryError(c, err)
		return
	}
	c.JSON(http.StatusOK, RecoveryResponse{SagaID: sagaID, Message: "notifications marked completed"})
}

func (h *Handler) RecoverPayment(c *gin.Context) {
	sagaID := c.Param("id")
	if err := h.coord.RecoverStuckPayment(c.Request.Context(), sagaID); err != nil {
		h.recoveryError(c, err)
		return
	}
	c.JSON(http.StatusOK, RecoveryResponse{SagaID: sagaID, Message: "payment marked completed"})
}

func (h *Handler) recoveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrNotFound})
	case errors.Is(err, orchestrator.ErrNotRecoverable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: ErrNotRecoverable})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrInternal})
	}
}
