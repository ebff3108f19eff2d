package domain

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/routes-aggregator/engine/timetable"
)

// Validate checks that m is complete and internally consistent: every route
// point references a station of the model, and every non-empty time is a
// well-formed clock time. A model that fails validation must not be
// persisted.
func (m *Model) Validate() error {
	if strings.TrimSpace(m.AgentType) == "" {
		return NewValidationError("model", m.AgentType, ErrEmptyAgentType)
	}
	for id, s := range m.Stations {
		if s.AgentType != m.AgentType {
			return NewValidationError("station", id, fmt.Errorf("agent type %q differs from model", s.AgentType))
		}
	}
	for id, r := range m.Routes {
		if r.AgentType != m.AgentType {
			return NewValidationError("route", id, fmt.Errorf("agent type %q differs from model", r.AgentType))
		}
		for i, p := range r.Points {
			if m.Stations[p.StationID] == nil {
				return NewValidationError(fmt.Sprintf("route %s point %d", id, i), p.StationID, ErrUnknownStation)
			}
			for _, t := range []string{p.ArrivalTime, p.DepartureTime} {
				if t != "" && !timetable.Valid(t) {
					return NewValidationError(fmt.Sprintf("route %s point %d", id, i), t, ErrInvalidTime)
				}
			}
		}
	}
	return nil
}
