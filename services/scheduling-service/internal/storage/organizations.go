package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

// GetOrganizationSettings falls back to model.DefaultSettings when the organization has no row.
func (s *Store) GetOrganizationSettings(ctx context.Context, orgID string) (model.OrganizationSettings, error) {
	settings := model.OrganizationSettings{OrganizationID: orgID}
	var minutes int
	err := s.db.QueryRow(ctx, `
		SELECT name, timezone, appointment_duration_minutes
		FROM organization_settings
		WHERE organization_id = $1
	`, orgID).Scan(&settings.Name, &settings.Timezone, &minutes)
	if IsNotFound(err) {
		return model.DefaultSettings(orgID), nil
	}
	if err != nil {
		return model.OrganizationSettings{}, err
	}
	settings.AppointmentDuration = time.Duration(minutes) * time.Minute
	return settings, nil
}

func (s *Store) GetContact(ctx context.Context, orgID, customerID string) (model.Contact, error) {
	c := model.Contact{CustomerID: customerID}
	err := s.db.QueryRow(ctx, `
		SELECT name, COALESCE(phone, '')
		FROM customers
		WHERE id = $1 AND organization_id = $2
	`, customerID, orgID).Scan(&c.Name, &c.Phone)
	if IsNotFound(err) {
		return model.Contact{}, fmt.Errorf("customer %s: %w", customerID, apperr.ErrNotFound)
	}
	if err != nil {
		return model.Contact{}, err
	}
	return c, nil
}
