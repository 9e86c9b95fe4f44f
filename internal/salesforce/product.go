package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

// productIDPrefix is the Product2 sObject key prefix. Used to route cart
// operations that carry a Salesforce-style product id.
const productIDPrefix = "01t"

// IsProductID reports whether id looks like a Salesforce Product2 record id.
func IsProductID(id string) bool {
	return strings.HasPrefix(id, productIDPrefix) && (len(id) == 15 || len(id) == 18)
}

const apexBase = "/services/apexrest/easycart"

// ProductResolver resolves product ids and free-text queries to normalized
// snapshots, insulating callers from the catalog's irregular schema.
//
// Search and GetByID hit different upstream endpoints with different
// normalization completeness; a record found by both may carry more fields in
// one result than the other. That asymmetry is deliberate and not unified.
type ProductResolver struct {
	client *Client
	logger *zap.Logger
}

func NewProductResolver(client *Client, logger *zap.Logger) *ProductResolver {
	return &ProductResolver{client: client, logger: logger}
}

// Search resolves a free-text query to snapshots. Best-effort: any failure,
// including a missing Apex endpoint, returns an empty slice so the caller can
// degrade to "no products found".
func (r *ProductResolver) Search(ctx context.Context, query string, limit int) []domain.ProductSnapshot {
	if limit <= 0 {
		limit = 5
	}

	if raws, err := r.apexSearch(ctx, query, limit); err == nil {
		return r.normalizeAll(raws)
	} else if !errors.Is(err, ErrNotFound) {
		r.logger.Debug("apex product search failed, trying SOQL", zap.Error(err))
	}

	raws, err := r.soqlSearch(ctx, query, limit)
	if err != nil {
		r.logger.Warn("product search exhausted all strategies", zap.String("query", query), zap.Error(err))
		return nil
	}
	return r.normalizeAll(raws)
}

// GetByID resolves a single product id. Any failure is "not found", never an
// error.
func (r *ProductResolver) GetByID(ctx context.Context, id string) (*domain.ProductSnapshot, bool) {
	if id == "" {
		return nil, false
	}

	var raw RawProduct
	err := r.client.GetJSON(ctx, apexBase+"/products/"+url.PathEscape(id), &raw)
	if err == nil && len(raw) > 0 {
		snap := NormalizeProduct(raw, r.client.SiteURL())
		return &snap, true
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.Debug("apex product lookup failed, trying sObject REST", zap.String("id", id), zap.Error(err))
	}

	raw = nil
	err = r.client.GetJSON(ctx, r.client.restPath("/sobjects/Product2/"+url.PathEscape(id)), &raw)
	if err == nil && len(raw) > 0 {
		snap := NormalizeProduct(raw, r.client.SiteURL())
		return &snap, true
	}

	var result soqlResult
	soql := fmt.Sprintf("SELECT Id, Name, Description FROM Product2 WHERE Id = '%s' LIMIT 1", escapeSOQL(id))
	if err := r.client.Query(ctx, soql, &result); err != nil || len(result.Records) == 0 {
		r.logger.Debug("product lookup exhausted all strategies", zap.String("id", id))
		return nil, false
	}
	snap := NormalizeProduct(result.Records[0], r.client.SiteURL())
	return &snap, true
}

// apexSearchResponse tolerates both a bare array and a {products: [...]}
// envelope, both of which exist in the wild.
type apexSearchResponse struct {
	Products []RawProduct `json:"products"`
}

func (r *ProductResolver) apexSearch(ctx context.Context, query string, limit int) ([]RawProduct, error) {
	path := fmt.Sprintf("%s/products/search?q=%s&limit=%d", apexBase, url.QueryEscape(query), limit)

	// Fetch once; try both response shapes against the buffered body.
	var raw json.RawMessage
	if err := r.client.GetJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	var bare []RawProduct
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var envelope apexSearchResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Products, nil
}

type soqlResult struct {
	Records []RawProduct `json:"records"`
}

func (r *ProductResolver) soqlSearch(ctx context.Context, query string, limit int) ([]RawProduct, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Description FROM Product2 WHERE Name LIKE '%%%s%%' AND IsActive = true LIMIT %d",
		escapeSOQL(query), limit,
	)
	var result soqlResult
	if err := r.client.Query(ctx, soql, &result); err != nil {
		return nil, err
	}
	return result.Records, nil
}

func (r *ProductResolver) normalizeAll(raws []RawProduct) []domain.ProductSnapshot {
	snaps := make([]domain.ProductSnapshot, 0, len(raws))
	for _, raw := range raws {
		snaps = append(snaps, NormalizeProduct(raw, r.client.SiteURL()))
	}
	return snaps
}

// RawProduct is an untyped upstream product record. Field spellings vary
// between the Apex, sObject and SOQL endpoints; NormalizeProduct applies one
// documented priority list per field.
type RawProduct map[string]any

// NormalizeProduct maps an upstream record to a snapshot. Priority per field:
//
//	id:     id > productId > Id > sku, numeric ids stringified
//	name:   name > Name > title > productName
//	price:  price > Price > unitPrice, stringified, absent -> "0"
//	handle: handle, else slugified name
//	url:    url > productUrl, else {siteBase}/s/product/{handle}/{id}
//	images: image > imageUrl > image_url as a singleton, else empty
func NormalizeProduct(raw RawProduct, siteBase string) domain.ProductSnapshot {
	snap := domain.ProductSnapshot{
		ID:    pickString(raw, "id", "productId", "Id", "sku"),
		Name:  pickString(raw, "name", "Name", "title", "productName"),
		Price: pickPrice(raw, "price", "Price", "unitPrice"),
	}

	snap.Handle = pickString(raw, "handle")
	if snap.Handle == "" {
		snap.Handle = Slugify(snap.Name)
	}

	snap.URL = pickString(raw, "url", "productUrl")
	if snap.URL == "" && siteBase != "" && snap.Handle != "" {
		snap.URL = fmt.Sprintf("%s/s/product/%s/%s", strings.TrimSuffix(siteBase, "/"), snap.Handle, snap.ID)
	}

	if img := pickString(raw, "image", "imageUrl", "image_url"); img != "" {
		snap.Images = []string{img}
	}

	if v, ok := raw["inStock"]; ok {
		if b, ok := v.(bool); ok {
			snap.InStock = &b
		}
	} else if v, ok := raw["in_stock"]; ok {
		if b, ok := v.(bool); ok {
			snap.InStock = &b
		}
	}

	return snap
}

var slugCollapse = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL handle from a product name: lowercased, runs outside
// [a-z0-9-] collapsed to a single hyphen, leading/trailing hyphens stripped.
// Adjacent separators merge, so no handle ever carries a double hyphen.
func Slugify(name string) string {
	slug := slugCollapse.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// pickString returns the first non-empty string value among keys. Numeric
// values are stringified, covering numeric-id-as-number payloads.
func pickString(raw RawProduct, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return formatNumber(v)
		}
	}
	return ""
}

// pickPrice normalizes the price field to a non-negative decimal string,
// defaulting to "0" when absent.
func pickPrice(raw RawProduct, keys ...string) string {
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
	return "0"
}

// formatNumber renders whole numbers without a decimal point and everything
// else with minimal digits, matching the upstream JSON representation.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
