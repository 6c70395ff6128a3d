// Package validation checks ingestion records before they reach storage.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/models"
)

// DateLayout is the only accepted flight date format.
const DateLayout = "2006-01-02"

// ValidateFlightInput checks record idx of a batch and converts it to a
// models.Flight. Required strings must be non-empty after trim, price must be
// non-negative, rain probability must lie in [0,1], and the three luggage
// fields must be all present or all absent. Errors wrap apperr.ErrInvalidPayload
// and name the record index and field. A missing or blank UUID is left empty
// for the caller to fill.
func ValidateFlightInput(idx int, in models.FlightInput) (models.Flight, error) {
	fail := func(field, msg string) (models.Flight, error) {
		return models.Flight{}, fmt.Errorf("%w: record %d: %s %s", apperr.ErrInvalidPayload, idx, field, msg)
	}

	required := []struct {
		name string
		v    *string
	}{
		{"date", in.Date},
		{"origin", in.Origin},
		{"destination", in.Destination},
		{"airline", in.Airline},
		{"duration", in.Duration},
		{"flightType", in.FlightType},
		{"originCountry", in.OriginCountry},
		{"destinationCountry", in.DestinationCountry},
		{"link", in.Link},
	}
	for _, r := range required {
		if r.v == nil || strings.TrimSpace(*r.v) == "" {
			return fail(r.name, "is required")
		}
	}
	if _, err := time.Parse(DateLayout, strings.TrimSpace(*in.Date)); err != nil {
		return fail("date", "must be YYYY-MM-DD")
	}

	if in.PriceINR == nil {
		return fail("price_inr", "is required")
	}
	if *in.PriceINR < 0 {
		return fail("price_inr", "must be >= 0")
	}
	if in.RainProbability == nil {
		return fail("rainProbability", "is required")
	}
	if p := *in.RainProbability; p < 0 || p > 1 || p != p {
		return fail("rainProbability", "must be within [0,1]")
	}
	if in.FreeMeal == nil {
		return fail("freeMeal", "is required")
	}

	set := 0
	for _, present := range []bool{in.MinCheckedLuggagePrice != nil, in.MinCheckedLuggageWeight != nil, in.TotalWithMinLuggage != nil} {
		if present {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fail("luggage", "fields must be all present or all absent")
	}

	f := models.Flight{
		Date:                    strings.TrimSpace(*in.Date),
		Origin:                  strings.TrimSpace(*in.Origin),
		Destination:             strings.TrimSpace(*in.Destination),
		Airline:                 strings.TrimSpace(*in.Airline),
		Duration:                strings.TrimSpace(*in.Duration),
		FlightType:              strings.TrimSpace(*in.FlightType),
		PriceINR:                *in.PriceINR,
		OriginCountry:           strings.TrimSpace(*in.OriginCountry),
		DestinationCountry:      strings.TrimSpace(*in.DestinationCountry),
		Link:                    strings.TrimSpace(*in.Link),
		RainProbability:         *in.RainProbability,
		FreeMeal:                *in.FreeMeal,
		MinCheckedLuggagePrice:  in.MinCheckedLuggagePrice,
		MinCheckedLuggageWeight: in.MinCheckedLuggageWeight,
		TotalWithMinLuggage:     in.TotalWithMinLuggage,
	}
	if in.UUID != nil {
		f.UUID = strings.TrimSpace(*in.UUID)
	}
	return f, nil
}
