package service

import (
	"errors"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/prometheus"

	"gorm.io/gorm"
)

// ErrOrgHasUsers is returned when deleting an organization that still has
// member accounts.
var ErrOrgHasUsers = errors.New("cannot delete organization with existing users")

// OrgService is the read/update surface over organizations. Creation goes
// through OrgTokenService exclusively.
type OrgService struct {
	db *gorm.DB
}

// NewOrgService returns an organization store backed by the given database.
func NewOrgService(db *gorm.DB) *OrgService {
	return &OrgService{db: db}
}

// GetByID loads an organization.
func (s *OrgService) GetByID(id uint) (*model.Organization, error) {
	var org model.Organization
	if err := s.db.First(&org, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, err
	}
	return &org, nil
}

// GetBySlug loads an active organization by its slug.
func (s *OrgService) GetBySlug(slug string) (*model.Organization, error) {
	var org model.Organization
	err := s.db.Where("slug = ? AND status = ?", slug, model.OrgStatusActive).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, err
	}
	return &org, nil
}

// List returns organizations, optionally filtered by status.
func (s *OrgService) List(status string) ([]model.Organization, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := s.db.Model(&model.Organization{}).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var orgs []model.Organization
	if err := query.Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

// OrgUpdate holds the fields an organization admin may change.
type OrgUpdate struct {
	Description *string
	Email       *string
	Status      *string
}

// Update applies the allowed fields and returns the fresh row.
func (s *OrgService) Update(id uint, upd OrgUpdate) (*model.Organization, error) {
	org, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.Email != nil {
		updates["email"] = *upd.Email
	}
	if upd.Status != nil {
		switch *upd.Status {
		case model.OrgStatusActive, model.OrgStatusInactive, model.OrgStatusSuspended:
			updates["status"] = *upd.Status
		default:
			return nil, errors.New("unknown organization status: " + *upd.Status)
		}
	}
	if len(updates) == 0 {
		return org, nil
	}

	if err := s.db.Model(org).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// Delete soft-deletes an organization by moving it to inactive. Refused
// while member accounts still reference it.
func (s *OrgService) Delete(id uint) error {
	org, err := s.GetByID(id)
	if err != nil {
		return err
	}

	var users int64
	if err := s.db.Model(&model.User{}).Where("organization_id = ?", id).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return ErrOrgHasUsers
	}

	return s.db.Model(org).Update("status", model.OrgStatusInactive).Error
}

// CountActive reports the number of active organizations, for the metrics
// gauge.
func (s *OrgService) CountActive() (int64, error) {
	var n int64
	err := s.db.Model(&model.Organization{}).Where("status = ?", model.OrgStatusActive).Count(&n).Error
	return n, err
}
