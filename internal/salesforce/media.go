package salesforce

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// cdnHost is the storefront CDN some orgs mirror media paths onto. When a
// managed-content record carries a name shaped like a CDN path, the URL can
// be reconstructed directly.
const cdnHost = "https://cdn.shopify.com"

var cdnPathPattern = regexp.MustCompile(`^s/files/\S+$`)

var absoluteURLPattern = regexp.MustCompile(`^https?://\S+$`)

// maxScanDepth bounds the recursive scan of a raw managed-content record.
const maxScanDepth = 4

// MediaResolver turns an opaque media id into binary image data. Orgs
// populate their media model inconsistently, so resolution is an ordered list
// of named strategies evaluated until the first one yields a URL. Exhaustion
// is "not found", never an error; callers render a placeholder.
type MediaResolver struct {
	client     *Client
	siteDomain string
	logger     *zap.Logger

	// plain fetches absolute external URLs without org authentication.
	plain *http.Client

	mu        sync.Mutex
	channelID string
}

func NewMediaResolver(client *Client, logger *zap.Logger) *MediaResolver {
	siteDomain := ""
	if u, err := url.Parse(client.SiteURL()); err == nil {
		siteDomain = u.Host
	}
	return &MediaResolver{
		client:     client,
		siteDomain: siteDomain,
		logger:     logger,
		plain: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type mediaContext struct {
	mediaID    string
	record     map[string]any
	contentKey string
}

type mediaStrategy struct {
	name    string
	resolve func(ctx context.Context, mc *mediaContext) (string, bool)
}

func (m *MediaResolver) strategies() []mediaStrategy {
	return []mediaStrategy{
		{name: "delivery_api", resolve: m.resolveViaDeliveryAPI},
		{name: "record_scan", resolve: m.resolveViaRecordScan},
		{name: "cdn_pattern", resolve: m.resolveViaCDNPattern},
		{name: "content_version", resolve: m.resolveViaContentVersion},
	}
}

// Resolve returns the binary payload and MIME type for a media id, or false
// when every strategy is exhausted.
func (m *MediaResolver) Resolve(ctx context.Context, mediaID string) ([]byte, string, bool) {
	mc := &mediaContext{mediaID: mediaID}
	m.loadRecord(ctx, mc)

	var resolved string
	for _, s := range m.strategies() {
		u, ok := s.resolve(ctx, mc)
		if !ok {
			continue
		}
		m.logger.Info("media URL resolved",
			zap.String("media_id", mediaID),
			zap.String("strategy", s.name),
		)
		resolved = u
		break
	}
	if resolved == "" {
		m.logger.Info("media not found after all strategies", zap.String("media_id", mediaID))
		return nil, "", false
	}

	data, contentType, err := m.fetch(ctx, resolved)
	if err != nil {
		m.logger.Warn("media fetch failed", zap.String("url", resolved), zap.Error(err))
		return nil, "", false
	}
	return data, contentType, true
}

// loadRecord fetches the managed-content record backing the media id. A
// missing record is not fatal; later strategies work without it.
func (m *MediaResolver) loadRecord(ctx context.Context, mc *mediaContext) {
	var record map[string]any
	err := m.client.GetJSON(ctx, m.client.restPath("/connect/cms/contents/"+url.PathEscape(mc.mediaID)), &record)
	if err != nil {
		m.logger.Debug("managed content fetch failed, trying sObject",
			zap.String("media_id", mc.mediaID), zap.Error(err))
		record = nil
		err = m.client.GetJSON(ctx, m.client.restPath("/sobjects/ManagedContent/"+url.PathEscape(mc.mediaID)), &record)
		if err != nil {
			m.logger.Debug("managed content record unavailable", zap.String("media_id", mc.mediaID))
			return
		}
	}
	mc.record = record
	mc.contentKey = firstStringField(record, "contentKey", "managedContentKey", "key")
}

// resolveViaDeliveryAPI asks the managed-content delivery capability for a
// URL, which requires both a content key and a delivery channel.
func (m *MediaResolver) resolveViaDeliveryAPI(ctx context.Context, mc *mediaContext) (string, bool) {
	if mc.contentKey == "" {
		return "", false
	}
	channel, err := m.channel(ctx)
	if err != nil || channel == "" {
		return "", false
	}

	var resp map[string]any
	path := m.client.restPath("/connect/cms/delivery/channels/" + channel + "/contents/" + url.PathEscape(mc.contentKey))
	if err := m.client.GetJSON(ctx, path, &resp); err != nil {
		m.logger.Debug("delivery API lookup failed", zap.String("content_key", mc.contentKey), zap.Error(err))
		return "", false
	}

	// Accept only an explicit URL field, at the top level or on a content
	// node. Anything else falls through to the raw record scan.
	if u := firstStringField(resp, "url", "unauthenticatedUrl", "downloadUrl"); u != "" {
		return u, true
	}
	if nodes, ok := resp["contentNodes"].(map[string]any); ok {
		for _, node := range nodes {
			if nm, ok := node.(map[string]any); ok {
				if u := firstStringField(nm, "url", "unauthenticatedUrl"); u != "" {
					return u, true
				}
			}
		}
	}
	return "", false
}

// resolveViaRecordScan walks the raw record looking for the first string that
// is an absolute HTTP(S) URL, to a bounded depth.
func (m *MediaResolver) resolveViaRecordScan(_ context.Context, mc *mediaContext) (string, bool) {
	if mc.record == nil {
		return "", false
	}
	return scanForURL(mc.record, 0)
}

// resolveViaCDNPattern reconstructs a CDN URL when the record's name carries
// a storefront CDN path.
func (m *MediaResolver) resolveViaCDNPattern(_ context.Context, mc *mediaContext) (string, bool) {
	if mc.record == nil {
		return "", false
	}
	name := firstStringField(mc.record, "name", "Name", "title", "Title")
	if name == "" || !cdnPathPattern.MatchString(name) {
		return "", false
	}
	return cdnHost + "/" + name, true
}

// resolveViaContentVersion falls back to the direct ContentVersion binary
// endpoint for ids with the ContentVersion key prefix.
func (m *MediaResolver) resolveViaContentVersion(_ context.Context, mc *mediaContext) (string, bool) {
	if !strings.HasPrefix(mc.mediaID, "068") && !strings.HasPrefix(mc.mediaID, "069") {
		return "", false
	}
	return m.client.restPath("/sobjects/ContentVersion/" + url.PathEscape(mc.mediaID) + "/VersionData"), true
}

type deliveryChannel struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	Domain      string `json:"domain"`
}

type deliveryChannelList struct {
	Channels []deliveryChannel `json:"channels"`
}

// channel discovers the delivery channel id once and caches it process-wide,
// preferring a channel whose domain matches the configured site domain.
func (m *MediaResolver) channel(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelID != "" {
		return m.channelID, nil
	}

	var list deliveryChannelList
	if err := m.client.GetJSON(ctx, m.client.restPath("/connect/cms/delivery/channels"), &list); err != nil {
		return "", err
	}
	if len(list.Channels) == 0 {
		return "", errors.New("no delivery channels")
	}

	chosen := list.Channels[0]
	if m.siteDomain != "" {
		for _, ch := range list.Channels {
			if ch.Domain != "" && strings.Contains(ch.Domain, m.siteDomain) {
				chosen = ch
				break
			}
		}
	}
	m.channelID = chosen.ChannelID
	m.logger.Info("delivery channel selected",
		zap.String("channel_id", chosen.ChannelID),
		zap.String("channel_name", chosen.ChannelName),
	)
	return m.channelID, nil
}

// fetch retrieves the resolved URL: org-relative URLs go through the
// authenticated client, absolute URLs through a plain client.
func (m *MediaResolver) fetch(ctx context.Context, resolved string) ([]byte, string, error) {
	if !strings.HasPrefix(resolved, "http://") && !strings.HasPrefix(resolved, "https://") {
		return m.client.FetchBinary(ctx, resolved)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := m.plain.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", errors.New("media fetch status " + resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// scanForURL walks maps and slices depth-first for an absolute HTTP(S) URL.
// Map keys are visited in sorted order so resolution is deterministic.
func scanForURL(v any, depth int) (string, bool) {
	if depth > maxScanDepth {
		return "", false
	}
	switch val := v.(type) {
	case string:
		if absoluteURLPattern.MatchString(val) {
			return val, true
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u, ok := scanForURL(val[k], depth+1); ok {
				return u, ok
			}
		}
	case []any:
		for _, child := range val {
			if u, ok := scanForURL(child, depth+1); ok {
				return u, ok
			}
		}
	}
	return "", false
}

func firstStringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := record[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
