package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mypup/backend/internal/config"
	"github.com/mypup/backend/internal/http/dto"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/payments"
	"github.com/mypup/backend/internal/services"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	escrowService *services.EscrowService
	cfg           *config.Config
	log           *zap.Logger
}

func NewWebhookHandler(escrowService *services.EscrowService, cfg *config.Config, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{escrowService: escrowService, cfg: cfg, log: log}
}

// PaymentWebhook receives capture confirmations from the payment
// provider. The signature covers the raw body, so it is verified before
// any parsing. Replays are acknowledged without re-applying.
func (h *WebhookHandler) PaymentWebhook(c *fiber.Ctx) error {
	body := c.Body()
	sig := c.Get(payments.SignatureHeader)

	if err := payments.VerifySignature(h.cfg.PaymentWebhookSecret, body, sig); err != nil {
		h.log.Warn("webhook signature rejected", zap.String("ip", c.IP()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	var event payments.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payload"})
	}

	if event.Type != payments.EventPaymentCaptured {
		h.log.Debug("ignoring webhook event", zap.String("type", event.Type))
		return c.JSON(dto.SuccessResponse{OK: true})
	}

	var err error
	if txIDStr, ok := event.Data.Metadata["transaction_id"]; ok {
		var txID uuid.UUID
		if txID, err = uuid.Parse(txIDStr); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction_id in metadata"})
		}
		_, err = h.escrowService.MarkFundsHeld(c.Context(), txID)
	} else {
		_, err = h.escrowService.MarkFundsHeldByIntent(c.Context(), event.Data.PaymentIntentID)
	}

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "unknown transaction"})
		}
		if errors.Is(err, models.ErrInvalidStateTransition) {
			// already past funds_held, likely a late replay
			h.log.Info("webhook arrived for settled transaction",
				zap.String("payment_intent_id", event.Data.PaymentIntentID))
			return c.JSON(dto.SuccessResponse{OK: true})
		}
		h.log.Error("webhook processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}
