package domain

// CartLine is a raw line item as returned by the external cart API. It is
// reconstructed on every cart read and has no local identity beyond what the
// external system returns. The display fields (Name, Price, Image) may or may
// not be populated depending on how the org is configured.
type CartLine struct {
	CartItemID string `json:"cart_item_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Name       string `json:"name,omitempty"`
	Price      string `json:"price,omitempty"`
	Image      string `json:"image,omitempty"`
}

// EnrichedCartLine joins a CartLine with a ProductSnapshot (preferred) or the
// line's own inline display fields (fallback). Never persisted, recomputed per
// request.
type EnrichedCartLine struct {
	ProductID  string `json:"product_id"`
	CartItemID string `json:"cart_item_id"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	Image      string `json:"image,omitempty"`
}

// Cart is the display-ready cart. The source of truth is the external
// commerce system; ItemCount and Total are recomputed on every read.
type Cart struct {
	Items     []EnrichedCartLine `json:"items"`
	ItemCount int                `json:"item_count"`
	Total     string             `json:"total"`
}
