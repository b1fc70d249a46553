package handlers

import (
	"errors"
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

type ListingHandler struct {
	listingService *services.ListingService
	log            *zap.Logger
}

func NewListingHandler(listingService *services.ListingService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{listingService: listingService, log: log}
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	sellerID := middleware.GetUserID(c)
	listing, err := h.listingService.Create(c.Context(), sellerID, services.CreateListingInput{
		Title:       req.Title,
		Breed:       req.Breed,
		Sex:         req.Sex,
		BirthDate:   req.BirthDate,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Description: req.Description,
		City:        req.City,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	listing, err := h.listingService.Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "listing not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) ListListings(c *fiber.Ctx) error {
	filter := repositories.ListingFilter{Limit: 20}

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
	if v := c.Query("breed"); v != "" {
		filter.Breed = &v
	}
	if v := c.Query("city"); v != "" {
		filter.City = &v
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	} else {
		active := models.ListingStatusActive
		filter.Status = &active
	}

	listings, err := h.listingService.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: listings})
}

func (h *ListingHandler) MyListings(c *fiber.Ctx) error {
	sellerID := middleware.GetUserID(c)
	filter := repositories.ListingFilter{SellerID: &sellerID, Limit: 50}

	listings, err := h.listingService.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list own listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: listings})
}

func (h *ListingHandler) RemoveListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	sellerID := middleware.GetUserID(c)
	if err := h.listingService.Remove(c.Context(), id, sellerID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "listing not found"})
		case errors.Is(err, models.ErrUnauthorized):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not your listing"})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}
