package maps

// GeocodeRequest is a forward lookup.
type GeocodeRequest struct {
	Query string `form:"q" validate:"required,min=3,max=300"`
}

// ReverseRequest is a reverse lookup.
type ReverseRequest struct {
	Lat *float64 `form:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `form:"lng" validate:"required,gte=-180,lte=180"`
}

// Place is a normalised geocoding result.
type Place struct {
	Label       string  `json:"label"`
	Street      string  `json:"street,omitempty"`
	HouseNumber string  `json:"houseNumber,omitempty"`
	PostalCode  string  `json:"postalCode,omitempty"`
	City        string  `json:"city,omitempty"`
	Province    string  `json:"province,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

type nominatimAddress struct {
	Road         string `json:"road"`
	HouseNumber  string `json:"house_number"`
	Postcode     string `json:"postcode"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	Suburb       string `json:"suburb"`
	State        string `json:"state"`
}

// nominatimPlace mirrors the relevant parts of the OSM search and reverse payloads.
type nominatimPlace struct {
	DisplayName string           `json:"display_name"`
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}
