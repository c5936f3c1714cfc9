package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
)

func (s *Store) GetAppointment(_ context.Context, orgID, appointmentID string) (model.Appointment, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok || a.OrganizationID != orgID {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, apperr.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetAppointmentsInRange(_ context.Context, orgID, professionalID string, start, end time.Time, exclude []model.Status) ([]model.Appointment, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := []model.Appointment{}
	for _, a := range s.appointments {
		if a.OrganizationID != orgID || a.ProfessionalID != professionalID || !a.Overlaps(start, end) {
			continue
		}
		if excluded(a.Status, exclude) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func excluded(status model.Status, exclude []model.Status) bool {
	for _, s := range exclude {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Store) GetWorkingPattern(_ context.Context, orgID, professionalID string, weekday time.Weekday) (model.WorkingPattern, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[patternKey{orgID: orgID, professionalID: professionalID, weekday: weekday}]
	return p, ok, nil
}

func (s *Store) ListWeek(_ context.Context, orgID, professionalID string) ([]model.WorkingPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.WorkingPattern{}
	for k, p := range s.patterns {
		if k.orgID == orgID && k.professionalID == professionalID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

// UpsertWeek replaces the professional's patterns for every weekday given.
func (s *Store) UpsertWeek(_ context.Context, orgID, professionalID string, patterns []model.WorkingPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		p.OrganizationID = orgID
		p.ProfessionalID = professionalID
		s.patterns[patternKey{orgID: orgID, professionalID: professionalID, weekday: p.Weekday}] = p
	}
	return nil
}

func (s *Store) PutPattern(p model.WorkingPattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[patternKey{orgID: p.OrganizationID, professionalID: p.ProfessionalID, weekday: p.Weekday}] = p
}

func (s *Store) GetOrganizationSettings(_ context.Context, orgID string) (model.OrganizationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if settings, ok := s.settings[orgID]; ok {
		return settings, nil
	}
	return model.DefaultSettings(orgID), nil
}

func (s *Store) PutSettings(settings model.OrganizationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.OrganizationID] = settings
}

func (s *Store) PutService(orgID, serviceID string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[refKey{orgID: orgID, id: serviceID}] = duration
}

func (s *Store) GetContact(_ context.Context, orgID, customerID string) (model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[refKey{orgID: orgID, id: customerID}]
	if !ok {
		return model.Contact{}, fmt.Errorf("customer %s: %w", customerID, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Store) PutContact(orgID string, c model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[refKey{orgID: orgID, id: c.CustomerID}] = c
}
