package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodesk/flight-scheduling-backend/internal/location"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/response"
)

type LocationHandler struct {
	service location.Service
}

func NewHandler(service location.Service) *LocationHandler {
	return &LocationHandler{service: service}
}

// List retrieves a paginated list of locations with optional filtering.
func (h *LocationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := location.Filter{
		OrganizationID: c.Query("organization_id"),
		Keyword:        c.Query("q"),
		Page:           page,
		PageSize:       pageSize,
	}

	locs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]LocationResponse, len(locs))
	for i, l := range locs {
		items[i] = NewLocationResponse(l)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

// Get retrieves specific location details.
func (h *LocationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	loc, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewLocationResponse(loc))
}

// Create adds a new location.
func (h *LocationHandler) Create(c *gin.Context) {
	var body CreateLocationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	loc, err := h.service.Create(c.Request.Context(), location.CreateLocationRequest{
		OrganizationID: body.OrganizationID,
		Name:           body.Name,
		Timezone:       body.Timezone,
		Address:        body.Address,
		Description:    body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewLocationResponse(loc))
}

// Update applies a partial update to a location.
func (h *LocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	var body UpdateLocationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	loc, err := h.service.Update(c.Request.Context(), id, location.UpdateLocationRequest{
		Name:        body.Name,
		Timezone:    body.Timezone,
		Address:     body.Address,
		Description: body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewLocationResponse(loc))
}
