package domain

// ProductSnapshot is the normalized read model produced by the product
// resolver. It is immutable once constructed; raw upstream records never
// leave the salesforce package.
type ProductSnapshot struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  string   `json:"price"` // decimal string, "0" when upstream carries none
	Handle string   `json:"handle,omitempty"`
	URL    string   `json:"url,omitempty"`
	Images []string `json:"images,omitempty"`
	// InStock is nil when the upstream record does not report availability.
	InStock *bool `json:"in_stock,omitempty"`
}

// Image returns the primary image URL, or "" when none was resolved.
func (p *ProductSnapshot) Image() string {
	if p == nil || len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
