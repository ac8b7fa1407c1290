package gateway

// Shopify order webhook payload. Only the fields the ingestion path reads.

// ShopifyOrder is the order-created/updated webhook body.
type ShopifyOrder struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"` // e.g. "#1001"
	OrderNumber     int64             `json:"order_number"`
	Email           string            `json:"email"`
	FinancialStatus string            `json:"financial_status"`
	TotalPrice      string            `json:"total_price"`
	TotalWeight     int64             `json:"total_weight"` // grams
	Customer        ShopifyCustomer   `json:"customer"`
	ShippingAddress *ShopifyAddress   `json:"shipping_address"`
	LineItems       []ShopifyLineItem `json:"line_items"`
}

// ShopifyCustomer is the buyer record on the order.
type ShopifyCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ShopifyAddress is the shipping address on the order.
type ShopifyAddress struct {
	Name         string `json:"name"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	ProvinceCode string `json:"province_code"`
	Zip          string `json:"zip"`
	Phone        string `json:"phone"`
}

// ShopifyLineItem is one order line.
type ShopifyLineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Grams    int64  `json:"grams"`
}
