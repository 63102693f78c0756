package infra

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/shared/constants"
)

type roomCatalogue struct {
	Rooms []roomEntry `yaml:"rooms"`
}

type roomEntry struct {
	ID              string        `yaml:"id"`
	VolumeM3        float64       `yaml:"volume_m3"`
	FurnitureCount  *float64      `yaml:"furniture_count"`
	IndoorVentSpeed *float64      `yaml:"indoor_vent_speed"`
	OccupantCount   *float64      `yaml:"occupant_count"`
	Weights         *weightsEntry `yaml:"weights"`
}

type weightsEntry struct {
	Furniture      *float64 `yaml:"furniture"`
	Fans           *float64 `yaml:"fans"`
	ResidentialCFM *float64 `yaml:"residential_cfm"`
}

// LoadRooms reads the YAML room catalogue at path. Omitted inhibitor factors and
// weights take their defaults.
func LoadRooms(path string) ([]domain.RoomContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rooms: read %q: %w", path, err)
	}
	return ParseRooms(data)
}

// ParseRooms decodes a YAML room catalogue.
func ParseRooms(data []byte) ([]domain.RoomContext, error) {
	var catalogue roomCatalogue
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("rooms: decode: %w", err)
	}
	if len(catalogue.Rooms) == 0 {
		return nil, errors.New("rooms: catalogue is empty")
	}

	seen := make(map[string]struct{}, len(catalogue.Rooms))
	rooms := make([]domain.RoomContext, 0, len(catalogue.Rooms))
	for i, entry := range catalogue.Rooms {
		id, err := constants.ParseRoomID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("rooms: entry %d: %w", i, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("rooms: duplicate room id %q", id)
		}
		seen[id] = struct{}{}

		room := entry.toRoomContext(id)
		if err := room.Validate(); err != nil {
			return nil, fmt.Errorf("rooms: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (e roomEntry) toRoomContext(id string) domain.RoomContext {
	room := domain.NewRoomContext(id, e.VolumeM3)
	setIfPresent(&room.FurnitureCount, e.FurnitureCount)
	setIfPresent(&room.IndoorVentSpeed, e.IndoorVentSpeed)
	setIfPresent(&room.OccupantCount, e.OccupantCount)
	if e.Weights != nil {
		setIfPresent(&room.Weights.Furniture, e.Weights.Furniture)
		setIfPresent(&room.Weights.Fans, e.Weights.Fans)
		setIfPresent(&room.Weights.ResidentialCFM, e.Weights.ResidentialCFM)
	}
	return room
}

func setIfPresent(dst *float64, value *float64) {
	if value != nil {
		*dst = *value
	}
}
