package models

import (
	"fmt"
	"strings"

	"bookingcore/internal/domain"
)

// Capabilities describes what a vehicle category offers.
type Capabilities struct {
	Seats      int  `json:"seats"`
	AirCon     bool `json:"airCon"`
	Luggage    bool `json:"luggage"`
	Intercity  bool `json:"intercity"`
	SharedRide bool `json:"sharedRide"`
}

// VehicleCategory is closed over Auto, Car and Bus.
type VehicleCategory interface {
	Kind() string
	Capabilities() Capabilities
	vehicleCategory()
}

type Auto struct{}

func (Auto) Kind() string { return "auto" }
func (Auto) Capabilities() Capabilities {
	return Capabilities{Seats: 3}
}
func (Auto) vehicleCategory() {}

type Car struct{}

func (Car) Kind() string { return "car" }
func (Car) Capabilities() Capabilities {
	return Capabilities{Seats: 4, AirCon: true, Luggage: true, Intercity: true}
}
func (Car) vehicleCategory() {}

type Bus struct{}

func (Bus) Kind() string { return "bus" }
func (Bus) Capabilities() Capabilities {
	return Capabilities{Seats: 40, AirCon: true, Luggage: true, Intercity: true, SharedRide: true}
}
func (Bus) vehicleCategory() {}

func ParseVehicleCategory(raw string) (VehicleCategory, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "auto":
		return Auto{}, nil
	case "car":
		return Car{}, nil
	case "bus":
		return Bus{}, nil
	}
	return nil, domain.ValidationError{Field: "category", Msg: fmt.Sprintf("unknown vehicle category %q", raw)}
}
