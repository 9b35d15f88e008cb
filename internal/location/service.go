package location

import (
	"context"
	"strings"
	"time"
)

// CreateLocationRequest carries data to create a location.
type CreateLocationRequest struct {
	OrganizationID string
	Name           string
	Timezone       string
	Address        string
	Description    string
}

// UpdateLocationRequest carries data for partial updates.
type UpdateLocationRequest struct {
	Name        *string
	Timezone    *string
	Address     *string
	Description *string
}

type Service interface {
	Create(ctx context.Context, req CreateLocationRequest) (*Location, error)
	GetByID(ctx context.Context, id string) (*Location, error)
	List(ctx context.Context, filter Filter) ([]*Location, int, error)
	Update(ctx context.Context, id string, req UpdateLocationRequest) (*Location, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validateTimezone(name string) error {
	if _, err := time.LoadLocation(name); err != nil {
		return ErrInvalidTimezone
	}
	return nil
}

func (s *service) Create(ctx context.Context, req CreateLocationRequest) (*Location, error) {
	if req.OrganizationID == "" {
		return nil, ErrOrgIDRequired
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrNameRequired
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if err := validateTimezone(req.Timezone); err != nil {
		return nil, err
	}

	loc := &Location{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Timezone:       req.Timezone,
		Address:        req.Address,
		Description:    req.Description,
	}

	if err := s.repo.Create(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Location, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Location, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateLocationRequest) (*Location, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrNameRequired
		}
		loc.Name = *req.Name
	}
	if req.Timezone != nil {
		if err := validateTimezone(*req.Timezone); err != nil {
			return nil, err
		}
		loc.Timezone = *req.Timezone
	}
	if req.Address != nil {
		loc.Address = *req.Address
	}
	if req.Description != nil {
		loc.Description = *req.Description
	}

	if err := s.repo.Update(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}
