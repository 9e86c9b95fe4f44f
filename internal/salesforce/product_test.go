package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeProduct_PriceDefaultsToZero(t *testing.T) {
	snap := NormalizeProduct(RawProduct{"id": "01tAB0000004C9Z", "name": "Chair"}, "")
	assert.Equal(t, "0", snap.Price)
}

func TestNormalizeProduct_FieldPriorities(t *testing.T) {
	snap := NormalizeProduct(RawProduct{
		"Id":    "01tAB0000004C9Z",
		"id":    "explicit-id",
		"Name":  "Alpine Chair",
		"price": 129.5,
		"image": "https://cdn.example.com/chair.jpg",
	}, "")
	assert.Equal(t, "explicit-id", snap.ID)
	assert.Equal(t, "Alpine Chair", snap.Name)
	assert.Equal(t, "129.5", snap.Price)
	assert.Equal(t, []string{"https://cdn.example.com/chair.jpg"}, snap.Images)
}

func TestNormalizeProduct_NumericID(t *testing.T) {
	snap := NormalizeProduct(RawProduct{"id": float64(884755), "name": "Desk"}, "")
	assert.Equal(t, "884755", snap.ID)
}

func TestNormalizeProduct_WholePriceHasNoDecimalPoint(t *testing.T) {
	snap := NormalizeProduct(RawProduct{"name": "Desk", "price": float64(25)}, "")
	assert.Equal(t, "25", snap.Price)
}

func TestNormalizeProduct_CanonicalURL(t *testing.T) {
	snap := NormalizeProduct(RawProduct{"id": "01tAB0000004C9Z", "name": "Alpine Chair"}, "https://shop.example.com")
	assert.Equal(t, "https://shop.example.com/s/product/alpine-chair/01tAB0000004C9Z", snap.URL)

	// An explicit upstream URL always wins.
	snap = NormalizeProduct(RawProduct{"id": "x", "name": "y", "url": "https://other.example.com/p/1"}, "https://shop.example.com")
	assert.Equal(t, "https://other.example.com/p/1", snap.URL)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Alpine Chair", "alpine-chair"},
		{"  Déjà--Vu!! Sofa  ", "d-j-vu-sofa"},
		{"---", ""},
		{"Chair (Oak & Steel)", "chair-oak-steel"},
		{"already-a-slug", "already-a-slug"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.name), "Slugify(%q)", tt.name)
	}
}

func TestSearch_FallsBackToSOQL(t *testing.T) {
	org := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/services/apexrest/"):
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/services/data/v60.0/query"):
			assert.Contains(t, r.URL.Query().Get("q"), "LIKE '%chair%'")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"Id": "01tAB0000004C9Z", "Name": "Alpine Chair"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer org.Close()

	r := NewProductResolver(newTestClient(org.URL), zap.NewNop())
	snaps := r.Search(context.Background(), "chair", 5)
	require.Len(t, snaps, 1)
	assert.Equal(t, "01tAB0000004C9Z", snaps[0].ID)
	assert.Equal(t, "Alpine Chair", snaps[0].Name)
	assert.Equal(t, "0", snaps[0].Price)
}

func TestSearch_AllStrategiesFail_ReturnsEmpty(t *testing.T) {
	org := httptest.NewServer(http.NotFoundHandler())
	defer org.Close()

	r := NewProductResolver(newTestClient(org.URL), zap.NewNop())
	snaps := r.Search(context.Background(), "nonexistent-zzz", 5)
	assert.Empty(t, snaps)
}

func TestSearch_ApexEnvelope(t *testing.T) {
	var hits int
	org := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/services/apexrest/easycart/products/search") {
			hits++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"products": []map[string]any{
					{"id": "01tAB0000004C9Z", "name": "Alpine Chair", "price": 199.0},
				},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer org.Close()

	r := NewProductResolver(newTestClient(org.URL), zap.NewNop())
	snaps := r.Search(context.Background(), "alpine", 0)
	require.Len(t, snaps, 1)
	assert.Equal(t, "199", snaps[0].Price)
	// Both body shapes are tried against one buffered response.
	assert.Equal(t, 1, hits)
}

func TestGetByID_SObjectFallback(t *testing.T) {
	org := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/data/v60.0/sobjects/Product2/01tAB0000004C9Z" {
			_ = json.NewEncoder(w).Encode(map[string]any{"Id": "01tAB0000004C9Z", "Name": "Alpine Chair"})
			return
		}
		http.NotFound(w, r)
	}))
	defer org.Close()

	r := NewProductResolver(newTestClient(org.URL), zap.NewNop())
	snap, ok := r.GetByID(context.Background(), "01tAB0000004C9Z")
	require.True(t, ok)
	assert.Equal(t, "Alpine Chair", snap.Name)
}

func TestGetByID_NotFound(t *testing.T) {
	org := httptest.NewServer(http.NotFoundHandler())
	defer org.Close()

	r := NewProductResolver(newTestClient(org.URL), zap.NewNop())
	_, ok := r.GetByID(context.Background(), "01tDOESNOTEXIST")
	assert.False(t, ok)
}

func TestIsProductID(t *testing.T) {
	assert.True(t, IsProductID("01tAB0000004C9Z"))
	assert.True(t, IsProductID("01tAB0000004C9ZAAW"))
	assert.False(t, IsProductID("shopify-884755"))
	assert.False(t, IsProductID("01t"))
}
