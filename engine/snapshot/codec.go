package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/klauspost/compress/zstd"
)

// formatVersion is bumped whenever the JSON layout changes incompatibly.
const formatVersion = 1

type modelDTO struct {
	Version   int          `json:"version"`
	AgentType string       `json:"agent_type"`
	Stations  []stationDTO `json:"stations"`
	Routes    []routeDTO   `json:"routes"`
}

type stationDTO struct {
	StationID  string            `json:"station_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

type routeDTO struct {
	RouteID        string            `json:"route_id"`
	RouteNumber    string            `json:"route_number"`
	ActiveFromDate string            `json:"active_from_date,omitempty"`
	ActiveToDate   string            `json:"active_to_date,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	Points         []pointDTO        `json:"points"`
}

type pointDTO struct {
	StationID     string `json:"station_id"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
}

func propsToDTO(p *domain.Properties) map[string]string {
	all := p.All()
	if len(all) == 0 {
		return nil
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k.String()] = v
	}
	return out
}

func propsFromDTO(p *domain.Properties, in map[string]string) {
	for name, v := range in {
		if key, ok := domain.ParsePropertyKey(name); ok {
			p.Set(key.Field, key.Language, v)
		}
	}
}

func toDTO(m *domain.Model) modelDTO {
	dto := modelDTO{Version: formatVersion, AgentType: m.AgentType}
	for _, s := range m.Stations {
		dto.Stations = append(dto.Stations, stationDTO{StationID: s.StationID, Properties: propsToDTO(&s.Properties)})
	}
	sort.Slice(dto.Stations, func(i, j int) bool { return dto.Stations[i].StationID < dto.Stations[j].StationID })

	for _, r := range m.Routes {
		rd := routeDTO{
			RouteID:        r.RouteID,
			RouteNumber:    r.RouteNumber,
			ActiveFromDate: r.ActiveFromDate,
			ActiveToDate:   r.ActiveToDate,
			Properties:     propsToDTO(&r.Properties),
			Points:         make([]pointDTO, len(r.Points)),
		}
		for i, p := range r.Points {
			rd.Points[i] = pointDTO{StationID: p.StationID, ArrivalTime: p.ArrivalTime, DepartureTime: p.DepartureTime}
		}
		dto.Routes = append(dto.Routes, rd)
	}
	sort.Slice(dto.Routes, func(i, j int) bool { return dto.Routes[i].RouteID < dto.Routes[j].RouteID })
	return dto
}

func fromDTO(dto modelDTO) *domain.Model {
	m := domain.NewModel(dto.AgentType)
	for _, sd := range dto.Stations {
		s := domain.NewStation(dto.AgentType, sd.StationID)
		propsFromDTO(&s.Properties, sd.Properties)
		m.AddStation(s)
	}
	for _, rd := range dto.Routes {
		r := domain.NewRoute(dto.AgentType, rd.RouteID)
		r.RouteNumber = rd.RouteNumber
		r.ActiveFromDate = rd.ActiveFromDate
		r.ActiveToDate = rd.ActiveToDate
		propsFromDTO(&r.Properties, rd.Properties)
		for _, p := range rd.Points {
			r.AddRoutePoint(domain.NewRoutePoint(dto.AgentType, rd.RouteID, p.StationID, p.ArrivalTime, p.DepartureTime))
		}
		m.AddRoute(r)
	}
	return m
}

// Encode serializes m into a compressed snapshot.
func Encode(m *domain.Model) ([]byte, error) {
	raw, err := json.Marshal(toDTO(m))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Decode restores a model from a snapshot produced by Encode.
func Decode(data []byte) (*domain.Model, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var dto modelDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if dto.Version != formatVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", dto.Version)
	}
	return fromDTO(dto), nil
}
