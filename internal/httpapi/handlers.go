// Package httpapi exposes the gateway's HTTP surface to the widget and
// storefront. Adapters below this layer absorb their own transport failures;
// only unexpected panics become 500s, via the chi recoverer.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/analytics"
	"github.com/nareda9819/easymart-v2-sub000/internal/chat"
	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
	"github.com/nareda9819/easymart-v2-sub000/internal/salesforce"
)

// mediaIDPattern validates a Salesforce record id before any upstream call.
var mediaIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{15,18}$`)

// ChatService handles one widget message.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, message string) *chat.Response
}

// CartBackend is the external-commerce cart adapter surface.
type CartBackend interface {
	AddItem(ctx context.Context, sessionID, productID string, quantity int) salesforce.CartResult
	UpdateItem(ctx context.Context, sessionID, cartItemID string, quantity int) salesforce.CartResult
	RemoveItem(ctx context.Context, sessionID, cartItemID string) salesforce.CartResult
	GetCart(ctx context.Context, sessionID string) salesforce.CartResult
}

// CartEnricher joins raw cart lines into a display cart.
type CartEnricher interface {
	EnrichCart(ctx context.Context, lines []domain.CartLine) domain.Cart
}

// MediaResolver resolves a media id to binary image data.
type MediaResolver interface {
	Resolve(ctx context.Context, mediaID string) (data []byte, contentType string, ok bool)
}

// AssistantCart proxies cart operations for non-Salesforce product ids.
type AssistantCart interface {
	CartAction(ctx context.Context, sessionID, productID string, quantity int, action string) (map[string]any, error)
}

type HealthInfo struct {
	SalesforceConfigured bool
	AssistantConfigured  bool
	RedisEnabled         bool
	AnalyticsEnabled     bool
}

type Handlers struct {
	chat     ChatService
	carts    CartBackend
	enricher CartEnricher
	media    MediaResolver
	bridge   AssistantCart
	events   *analytics.Emitter
	health   HealthInfo
	logger   *zap.Logger
}

func NewHandlers(
	chatSvc ChatService,
	carts CartBackend,
	enricher CartEnricher,
	media MediaResolver,
	bridge AssistantCart,
	events *analytics.Emitter,
	health HealthInfo,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		chat:     chatSvc,
		carts:    carts,
		enricher: enricher,
		media:    media,
		bridge:   bridge,
		events:   events,
		health:   health,
		logger:   logger,
	}
}

// Chat handles POST /api/chat.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	resp := h.chat.HandleMessage(r.Context(), req.SessionID, req.Message)
	respondJSON(w, http.StatusOK, resp)
}

type cartActionRequest struct {
	ProductID  string `json:"product_id"`
	CartItemID string `json:"cart_item_id"`
	// Quantity is a pointer so an explicit 0 (delete-on-zero for "set") is
	// distinguishable from an absent field (defaults to 1 for "add").
	Quantity  *int   `json:"quantity"`
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

// quantityOr returns the request quantity, or fallback when absent.
func (req cartActionRequest) quantityOr(fallback int) int {
	if req.Quantity != nil {
		return *req.Quantity
	}
	return fallback
}

// CartAction handles POST /api/cart/add: product ids that look like
// Salesforce records go to the org cart, everything else is proxied to the
// assistant backend's cart.
func (h *Handlers) CartAction(w http.ResponseWriter, r *http.Request) {
	var req cartActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if req.Action == "" {
		req.Action = "add"
	}

	if salesforce.IsProductID(req.ProductID) {
		h.salesforceCartAction(w, r, req)
		return
	}

	out, err := h.bridge.CartAction(r.Context(), req.SessionID, req.ProductID, req.quantityOr(1), req.Action)
	if err != nil {
		h.logger.Warn("assistant cart proxy failed", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "message": "cart backend unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// salesforceCartAction executes one combined-route cart action. The widget
// addresses lines by product id on this route, so "set" and "remove" first
// resolve the matching cart line.
func (h *Handlers) salesforceCartAction(w http.ResponseWriter, r *http.Request, req cartActionRequest) {
	ctx := r.Context()
	var result salesforce.CartResult
	switch req.Action {
	case "add":
		qty := req.quantityOr(1)
		result = h.carts.AddItem(ctx, req.SessionID, req.ProductID, qty)
		h.events.Emit(ctx, analytics.Event{Type: analytics.EventCartAdd, SessionID: req.SessionID, ProductID: req.ProductID, Quantity: qty})
	case "set":
		if req.Quantity == nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required for set")
			return
		}
		itemID, ok := h.resolveCartItemID(ctx, req.SessionID, req.ProductID, req.CartItemID)
		if !ok {
			respondError(w, http.StatusNotFound, "not_found", "no cart line matches product_id")
			return
		}
		result = h.carts.UpdateItem(ctx, req.SessionID, itemID, *req.Quantity)
		h.events.Emit(ctx, analytics.Event{Type: analytics.EventCartUpdate, SessionID: req.SessionID, ProductID: req.ProductID, Quantity: *req.Quantity})
	case "remove":
		itemID, ok := h.resolveCartItemID(ctx, req.SessionID, req.ProductID, req.CartItemID)
		if !ok {
			respondError(w, http.StatusNotFound, "not_found", "no cart line matches product_id")
			return
		}
		result = h.carts.RemoveItem(ctx, req.SessionID, itemID)
		h.events.Emit(ctx, analytics.Event{Type: analytics.EventCartRemove, SessionID: req.SessionID, ProductID: req.ProductID})
	case "clear":
		result = h.carts.GetCart(ctx, req.SessionID)
		lines := append([]domain.CartLine(nil), result.Items...)
		for _, line := range lines {
			result = h.carts.RemoveItem(ctx, req.SessionID, line.CartItemID)
		}
		h.events.Emit(ctx, analytics.Event{Type: analytics.EventCartRemove, SessionID: req.SessionID})
	default:
		respondError(w, http.StatusBadRequest, "invalid_action", fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	h.respondCart(w, r, req.SessionID, result)
}

// resolveCartItemID maps a product id onto its cart line when the caller did
// not name the line directly.
func (h *Handlers) resolveCartItemID(ctx context.Context, sessionID, productID, cartItemID string) (string, bool) {
	if cartItemID != "" {
		return cartItemID, true
	}
	current := h.carts.GetCart(ctx, sessionID)
	for _, line := range current.Items {
		if line.ProductID == productID {
			return line.CartItemID, true
		}
	}
	return "", false
}

// GetCart handles GET /api/cart and GET /api/salesforce-cart.
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	result := h.carts.GetCart(r.Context(), sessionID)
	h.respondCart(w, r, sessionID, result)
}

// SalesforceCartAdd handles POST /api/salesforce-cart/add.
func (h *Handlers) SalesforceCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and product_id are required")
		return
	}
	qty := req.quantityOr(1)
	result := h.carts.AddItem(r.Context(), req.SessionID, req.ProductID, qty)
	h.events.Emit(r.Context(), analytics.Event{Type: analytics.EventCartAdd, SessionID: req.SessionID, ProductID: req.ProductID, Quantity: qty})
	h.respondCart(w, r, req.SessionID, result)
}

// SalesforceCartUpdate handles POST /api/salesforce-cart/update. Quantity is
// passed through as-is; the org interprets zero or less as deletion.
func (h *Handlers) SalesforceCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req cartActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.CartItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and cart_item_id are required")
		return
	}
	qty := req.quantityOr(0)
	result := h.carts.UpdateItem(r.Context(), req.SessionID, req.CartItemID, qty)
	h.events.Emit(r.Context(), analytics.Event{Type: analytics.EventCartUpdate, SessionID: req.SessionID, Quantity: qty})
	h.respondCart(w, r, req.SessionID, result)
}

// SalesforceCartRemove handles POST /api/salesforce-cart/remove.
func (h *Handlers) SalesforceCartRemove(w http.ResponseWriter, r *http.Request) {
	var req cartActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.CartItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and cart_item_id are required")
		return
	}
	result := h.carts.RemoveItem(r.Context(), req.SessionID, req.CartItemID)
	h.events.Emit(r.Context(), analytics.Event{Type: analytics.EventCartRemove, SessionID: req.SessionID})
	h.respondCart(w, r, req.SessionID, result)
}

// SalesforceCartCount handles GET /api/salesforce-cart/count.
func (h *Handlers) SalesforceCartCount(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	result := h.carts.GetCart(r.Context(), sessionID)
	count := 0
	for _, line := range result.Items {
		count += line.Quantity
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": result.Success, "count": count})
}

// respondCart renders the enriched display cart. A failed upstream read
// still yields a well-formed (empty) cart with success=false.
func (h *Handlers) respondCart(w http.ResponseWriter, r *http.Request, sessionID string, result salesforce.CartResult) {
	// A mutation response may not echo the full cart; re-read when empty.
	items := result.Items
	if result.Success && len(items) == 0 {
		if refreshed := h.carts.GetCart(r.Context(), sessionID); refreshed.Success {
			items = refreshed.Items
		}
	}

	cart := h.enricher.EnrichCart(r.Context(), items)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": result.Success,
		"message": result.Message,
		"cart":    cart,
	})
}

// Media handles GET /api/media/salesforce/{mediaID}. The id is validated
// before any upstream call; resolved binaries are cacheable for an hour.
func (h *Handlers) Media(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")
	if !mediaIDPattern.MatchString(mediaID) {
		respondError(w, http.StatusBadRequest, "invalid_media_id", "media id must be 15-18 alphanumeric characters")
		return
	}

	data, contentType, ok := h.media.Resolve(r.Context(), mediaID)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"salesforce": h.health.SalesforceConfigured,
		"assistant":  h.health.AssistantConfigured,
		"redis":      h.health.RedisEnabled,
		"analytics":  h.health.AnalyticsEnabled,
	})
}
