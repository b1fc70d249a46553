package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mypup/backend/internal/http/dto"
	"github.com/mypup/backend/internal/middleware"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/repositories"
	"github.com/mypup/backend/internal/services"
	"go.uber.org/zap"
)

type AdminHandler struct {
	escrowService *services.EscrowService
	txRepo        *repositories.TransactionRepo
	auditRepo     *repositories.AuditRepo
	log           *zap.Logger
}

func NewAdminHandler(escrowService *services.EscrowService, txRepo *repositories.TransactionRepo, auditRepo *repositories.AuditRepo, log *zap.Logger) *AdminHandler {
	return &AdminHandler{escrowService: escrowService, txRepo: txRepo, auditRepo: auditRepo, log: log}
}

// ListDisputes returns the open dispute queue, oldest unresolved first
// by default ordering of the repo.
func (h *AdminHandler) ListDisputes(c *fiber.Ctx) error {
	disputed := models.TxStatusDisputed
	filter := repositories.TransactionFilter{Status: &disputed, Limit: 50}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	txs, err := h.txRepo.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list disputes failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

func (h *AdminHandler) ResolveDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Outcome == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "outcome is required (release_to_seller, refund_to_buyer, cancel)"})
	}

	adminID := middleware.GetUserID(c)
	tx, err := h.escrowService.ResolveDispute(c.Context(), id, adminID, req.Outcome)
	if err != nil {
		return escrowError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

// GetAuditTrail exposes the audit log for one transaction.
func (h *AdminHandler) GetAuditTrail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	limit, offset := 50, 0
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

	entries, err := h.auditRepo.GetByEntity(c.Context(), "escrow_transaction", id, limit, offset)
	if err != nil {
		h.log.Error("get audit trail failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
