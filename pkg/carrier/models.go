package carrier

// Address is a structured delivery or pickup address. Fields recovered from a
// free-text parse may be empty; providers accept partial addresses.
type Address struct {
	Street       string
	Suburb       string
	State        string
	Postcode     string
	CountryCode  string // ISO 3166-1 alpha-2, e.g. "AU"
	Instructions string
}

// Contact is the customer attached to a consignment.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Package is one parcel in a consignment. Dimensions in cm, weight in kg.
type Package struct {
	Weight      float64
	Length      float64
	Width       float64
	Height      float64
	Quantity    int
	Description string
	Value       float64
}

// RateRequest asks a provider to price a consignment between two postcodes.
type RateRequest struct {
	FromPostcode string
	ToPostcode   string
	Packages     []Package
}

// RateResponse is a provider's price for a consignment.
type RateResponse struct {
	Carrier     string
	ServiceName string
	Amount      float64
	Currency    string
}

// CreateOrderRequest books a consignment. Reference is the caller's
// correlation key and doubles as the provider-side idempotency key.
type CreateOrderRequest struct {
	Reference   string
	OrderDate   string
	ServiceType string
	Customer    Contact
	Delivery    Address
	Packages    []Package
	Description string
	Value       float64
}

// CreateOrderResponse is the provider's booking confirmation.
type CreateOrderResponse struct {
	Carrier        string
	OrderID        string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
}
