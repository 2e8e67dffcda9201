package domain

import (
	"fmt"
	"math"
	"strings"
)

// ClientInput is the registration payload for a client.
type ClientInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate"`
}

// VehicleInput is the registration payload for a vehicle.
type VehicleInput struct {
	Model           string `json:"model"`
	Manufacturer    string `json:"manufacturer"`
	LicensePlate    string `json:"licensePlate"`
	VIN             string `json:"vin"`
	ManufactureYear int    `json:"manufactureYear"`
}

// RequireField fails when value is empty or only whitespace.
func RequireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, value, ErrRequired)
	}
	return nil
}

// ValidateClient checks that every mandatory client attribute is present.
func ValidateClient(in ClientInput) error {
	for _, f := range []struct{ name, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"birthDate", in.BirthDate},
	} {
		if err := RequireField(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateVehicle checks that every mandatory vehicle attribute is present.
func ValidateVehicle(in VehicleInput) error {
	for _, f := range []struct{ name, value string }{
		{"model", in.Model},
		{"manufacturer", in.Manufacturer},
		{"licensePlate", in.LicensePlate},
		{"vin", in.VIN},
	} {
		if err := RequireField(f.name, f.value); err != nil {
			return err
		}
	}
	if in.ManufactureYear <= 0 {
		return NewValidationError("manufactureYear", fmt.Sprintf("%d", in.ManufactureYear), ErrRequired)
	}
	return nil
}

// ValidateCoordinates checks a GPS fix.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return NewValidationError("latitude", fmt.Sprint(lat), ErrInvalidNumber)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return NewValidationError("longitude", fmt.Sprint(lon), ErrInvalidNumber)
	}
	if lat < -90 || lat > 90 {
		return NewValidationError("latitude", fmt.Sprint(lat), ErrOutOfRange)
	}
	if lon < -180 || lon > 180 {
		return NewValidationError("longitude", fmt.Sprint(lon), ErrOutOfRange)
	}
	return nil
}

// Normalize trims surrounding whitespace from every field.
func (in ClientInput) Normalize() ClientInput {
	return ClientInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		BirthDate: strings.TrimSpace(in.BirthDate),
	}
}

// Normalize trims surrounding whitespace from every string field.
func (in VehicleInput) Normalize() VehicleInput {
	in.Model = strings.TrimSpace(in.Model)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	in.LicensePlate = strings.TrimSpace(in.LicensePlate)
	in.VIN = strings.TrimSpace(in.VIN)
	return in
}
