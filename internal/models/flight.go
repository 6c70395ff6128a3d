package models

// Flight is one stored listing. Luggage fields are either all set or all nil.
type Flight struct {
	ID                      int64   `json:"id"`
	UUID                    string  `json:"uuid"`
	Date                    string  `json:"date"`
	Origin                  string  `json:"origin"`
	Destination             string  `json:"destination"`
	Airline                 string  `json:"airline"`
	Duration                string  `json:"duration"`
	FlightType              string  `json:"flight_type"`
	PriceINR                int     `json:"price_inr"`
	OriginCountry           string  `json:"origin_country"`
	DestinationCountry      string  `json:"destination_country"`
	Link                    string  `json:"link"`
	RainProbability         float64 `json:"rain_probability"`
	FreeMeal                bool    `json:"free_meal"`
	MinCheckedLuggagePrice  *int    `json:"min_checked_luggage_price"`
	MinCheckedLuggageWeight *string `json:"min_checked_luggage_weight"`
	TotalWithMinLuggage     *int    `json:"total_with_min_luggage"`
}

// HasLuggage reports whether the luggage group is present.
func (f Flight) HasLuggage() bool {
	return f.MinCheckedLuggagePrice != nil
}

// FlightInput is one element of an ingestion payload. Pointer fields
// distinguish "missing" from a zero value so validation can reject
// incomplete records.
type FlightInput struct {
	UUID                    *string  `json:"uuid"`
	Date                    *string  `json:"date"`
	Origin                  *string  `json:"origin"`
	Destination             *string  `json:"destination"`
	Airline                 *string  `json:"airline"`
	Duration                *string  `json:"duration"`
	FlightType              *string  `json:"flightType"`
	PriceINR                *int     `json:"price_inr"`
	OriginCountry           *string  `json:"originCountry"`
	DestinationCountry      *string  `json:"destinationCountry"`
	Link                    *string  `json:"link"`
	RainProbability         *float64 `json:"rainProbability"`
	FreeMeal                *bool    `json:"freeMeal"`
	MinCheckedLuggagePrice  *int     `json:"minCheckedLuggagePrice"`
	MinCheckedLuggageWeight *string  `json:"minCheckedLuggageWeight"`
	TotalWithMinLuggage     *int     `json:"totalWithMinLuggage"`
}

// FlightPage is the paginated listing response.
type FlightPage struct {
	Data       []Flight `json:"data"`
	Page       int      `json:"page"`
	TotalPages int64    `json:"totalPages"`
	TotalItems int64    `json:"totalItems"`
}

// IngestResponse is the body returned by a successful (or degraded) ingestion.
type IngestResponse struct {
	Status    string `json:"status"`
	Inserted  int    `json:"inserted"`
	SyncError string `json:"syncError,omitempty"`
}
