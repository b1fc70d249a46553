package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mypup/backend/internal/http/dto"
	"github.com/mypup/backend/internal/middleware"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/services"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewTransactionHandler(escrowService *services.EscrowService, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{escrowService: escrowService, log: log}
}

// escrowError maps domain errors onto HTTP statuses. State conflicts
// are 409 so clients can distinguish "retry later" from "bad request".
func escrowError(c *fiber.Ctx, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "transaction not found"})
	case errors.Is(err, models.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a participant of this transaction"})
	case errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrAlreadyDisputed),
		errors.Is(err, models.ErrCannotDisputeCompleted):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidParticipants):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrPaymentIntentFailed):
		log.Error("payment intent failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment provider unavailable"})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
}

func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	var req dto.CreateTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing_id"})
	}

	buyerID := middleware.GetUserID(c)
	tx, err := h.escrowService.CreateTransaction(c.Context(), buyerID, listingID, req.MeetingLocation)
	if err != nil {
		return escrowError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: tx})
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	tx, err := h.escrowService.GetTransaction(c.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		return escrowError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}

	txs, err := h.escrowService.ListTransactions(c.Context(), userID, c.Query("role"), status, limit, offset)
	if err != nil {
		h.log.Error("list transactions failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

func (h *TransactionHandler) Confirm(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	tx, err := h.escrowService.Confirm(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return escrowError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

func (h *TransactionHandler) OpenDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	var req dto.OpenDisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	tx, err := h.escrowService.OpenDispute(c.Context(), id, middleware.GetUserID(c), req.Reason)
	if err != nil {
		return escrowError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}
