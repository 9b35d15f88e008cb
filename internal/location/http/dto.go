package http

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/location"
)

type LocationResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Timezone       string    `json:"timezone"`
	Address        string    `json:"address"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewLocationResponse(l *location.Location) LocationResponse {
	return LocationResponse{
		ID:             l.ID,
		OrganizationID: l.OrganizationID,
		Name:           l.Name,
		Timezone:       l.Timezone,
		Address:        l.Address,
		Description:    l.Description,
		CreatedAt:      l.CreatedAt,
	}
}

type CreateLocationBody struct {
	OrganizationID string `json:"organization_id" binding:"required,uuid"`
	Name           string `json:"name" binding:"required"`
	Timezone       string `json:"timezone"`
	Address        string `json:"address"`
	Description    string `json:"description"`
}

type UpdateLocationBody struct {
	Name        *string `json:"name"`
	Timezone    *string `json:"timezone"`
	Address     *string `json:"address"`
	Description *string `json:"description"`
}
