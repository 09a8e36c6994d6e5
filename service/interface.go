package service

import (
	"context"

	"github.com/google/uuid"
)

// TourCatalog defines the interface for the tour catalog collaborator.
// Read-only; the booking engine never mutates tours.
type TourCatalog interface {
	// GetTour retrieves pricing and the participant ceiling for a tour
	GetTour(ctx context.Context, tourID uuid.UUID) (*TourDetails, error)
}

// TourDetails represents tour information from the catalog
type TourDetails struct {
	TourID          uuid.UUID `json:"tour_id"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	MaxParticipants int       `json:"max_participants"`
}

// IdentityService defines the interface for the user identity collaborator.
type IdentityService interface {
	// GetContactInfo retrieves default contact details for a user
	GetContactInfo(ctx context.Context, userID uuid.UUID) (*ContactInfo, error)

	// GetRoles retrieves the role tags attached to a user
	GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// ContactInfo represents contact details from the identity service
type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Role tags recognised by the capability check.
const (
	RoleOperator = "operator"
	RoleStaff    = "staff"
)

// CapabilityChecker reports whether a user may manage availability for a
// tour. Injected into the API layer instead of scattering role checks.
type CapabilityChecker func(ctx context.Context, userID, tourID uuid.UUID) bool

// RoleBasedCapability builds a CapabilityChecker that grants management
// rights to operator and staff roles.
func RoleBasedCapability(identity IdentityService) CapabilityChecker {
	return func(ctx context.Context, userID, tourID uuid.UUID) bool {
		roles, err := identity.GetRoles(ctx, userID)
		if err != nil {
			return false
		}
		for _, role := range roles {
			if role == RoleOperator || role == RoleStaff {
				return true
			}
		}
		return false
	}
}
