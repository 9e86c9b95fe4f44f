package salesforce

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

// CartResult is the uniform envelope every cart operation returns. Transport
// failures become Success=false with a message rather than an error, so the
// enrichment layer can render a partial or empty cart.
type CartResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Items   []domain.CartLine `json:"items,omitempty"`
}

// CartAdapter is a thin, literal translation of add/update/remove/get to the
// Apex cart endpoints. No business logic lives here: a quantity of zero or
// less on update is passed through as-is and the org interprets it as
// deletion.
type CartAdapter struct {
	client *Client
	logger *zap.Logger
}

func NewCartAdapter(client *Client, logger *zap.Logger) *CartAdapter {
	return &CartAdapter{client: client, logger: logger}
}

// rawCartResponse tolerates the item-list spellings the Apex endpoint has
// shipped with over time.
type rawCartResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Items     []map[string]any `json:"items"`
	CartItems []map[string]any `json:"cartItems"`
	Lines     []map[string]any `json:"lines"`
}

func (a *CartAdapter) AddItem(ctx context.Context, sessionID, productID string, quantity int) CartResult {
	body := map[string]any{
		"session_id": sessionID,
		"product_id": productID,
		"quantity":   quantity,
	}
	return a.mutate(ctx, apexBase+"/cart/add", body)
}

func (a *CartAdapter) UpdateItem(ctx context.Context, sessionID, cartItemID string, quantity int) CartResult {
	body := map[string]any{
		"session_id":   sessionID,
		"cart_item_id": cartItemID,
		"quantity":     quantity,
	}
	return a.mutate(ctx, apexBase+"/cart/update", body)
}

func (a *CartAdapter) RemoveItem(ctx context.Context, sessionID, cartItemID string) CartResult {
	body := map[string]any{
		"session_id":   sessionID,
		"cart_item_id": cartItemID,
	}
	return a.mutate(ctx, apexBase+"/cart/remove", body)
}

func (a *CartAdapter) GetCart(ctx context.Context, sessionID string) CartResult {
	var raw rawCartResponse
	path := apexBase + "/cart?session_id=" + url.QueryEscape(sessionID)
	if err := a.client.GetJSON(ctx, path, &raw); err != nil {
		a.logger.Warn("cart read failed", zap.String("session_id", sessionID), zap.Error(err))
		return CartResult{Success: false, Message: err.Error()}
	}
	return a.toResult(raw)
}

func (a *CartAdapter) mutate(ctx context.Context, path string, body map[string]any) CartResult {
	var raw rawCartResponse
	if err := a.client.PostJSON(ctx, path, body, &raw); err != nil {
		a.logger.Warn("cart mutation failed", zap.String("path", path), zap.Error(err))
		return CartResult{Success: false, Message: err.Error()}
	}
	return a.toResult(raw)
}

func (a *CartAdapter) toResult(raw rawCartResponse) CartResult {
	items := raw.Items
	if items == nil {
		items = raw.CartItems
	}
	if items == nil {
		items = raw.Lines
	}

	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, decodeCartLine(item))
	}
	return CartResult{Success: raw.Success, Message: raw.Message, Items: lines}
}

// decodeCartLine reads a raw line item, checking the field-name spellings the
// org may emit, in fixed priority order.
func decodeCartLine(item map[string]any) domain.CartLine {
	raw := RawProduct(item)
	return domain.CartLine{
		CartItemID: pickString(raw, "cartItemId", "cart_item_id", "itemId", "id"),
		ProductID:  pickString(raw, "productId", "product_id", "Product2Id"),
		Quantity:   pickInt(raw, "quantity", "qty", "Quantity"),
		Name:       pickString(raw, "name", "productName", "title", "Name"),
		Price:      pickOptionalPrice(raw, "price", "unitPrice", "Price"),
		Image:      pickString(raw, "image", "imageUrl", "image_url"),
	}
}

func pickInt(raw RawProduct, keys ...string) int {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

// pickOptionalPrice is like pickPrice but keeps absence as "" so the
// enrichment layer can distinguish "no inline price" from a real zero.
func pickOptionalPrice(raw RawProduct, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return formatNumber(v)
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ""
}
