// Package chat receives widget messages, classifies them, and answers either
// from the commerce catalog or through the external assistant.
package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/analytics"
	"github.com/nareda9819/easymart-v2-sub000/internal/assistant"
	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

// ProductSearcher is the catalog slice the gateway needs for search intents.
type ProductSearcher interface {
	Search(ctx context.Context, query string, limit int) []domain.ProductSnapshot
}

// AssistantBridge forwards general messages to the external assistant.
type AssistantBridge interface {
	Send(ctx context.Context, sessionID, message string) *assistant.Reply
}

// Response is the normalized chat reply the widget receives. It is always
// well-formed; degraded states show up as fallback text, never as an error.
type Response struct {
	SessionID     string                   `json:"session_id"`
	Message       string                   `json:"message"`
	Intent        string                   `json:"intent,omitempty"`
	Products      []domain.ProductSnapshot `json:"products,omitempty"`
	Actions       []assistant.Action       `json:"actions,omitempty"`
	FollowupChips []string                 `json:"followup_chips,omitempty"`
}

const searchLimit = 5

type Service struct {
	detector  Detector
	products  ProductSearcher
	assistant AssistantBridge
	events    *analytics.Emitter
	logger    *zap.Logger
}

func NewService(detector Detector, products ProductSearcher, bridge AssistantBridge, events *analytics.Emitter, logger *zap.Logger) *Service {
	return &Service{
		detector:  detector,
		products:  products,
		assistant: bridge,
		events:    events,
		logger:    logger,
	}
}

// HandleMessage is stateless per request apart from the session id it
// threads through, generating one when the widget sends none.
func (s *Service) HandleMessage(ctx context.Context, sessionID, message string) *Response {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	intent := s.detector.Detect(message)
	s.logger.Info("chat message received",
		zap.String("session_id", sessionID),
		zap.String("intent", intent.Kind),
		zap.Int("message_length", len(message)),
	)

	var resp *Response
	if intent.Kind == IntentSearch {
		resp = s.handleSearch(ctx, sessionID, intent)
	} else {
		resp = s.handleGeneral(ctx, sessionID, message)
	}

	s.events.Emit(ctx, analytics.Event{
		Type:      analytics.EventChatMessage,
		SessionID: sessionID,
		Intent:    resp.Intent,
		Query:     intent.Query,
	})
	return resp
}

func (s *Service) handleSearch(ctx context.Context, sessionID string, intent Intent) *Response {
	products := s.products.Search(ctx, intent.Query, searchLimit)
	resp := &Response{
		SessionID: sessionID,
		Intent:    IntentSearch,
		Products:  products,
	}
	if len(products) == 0 {
		resp.Message = fmt.Sprintf("I couldn't find any products matching %q. Try a different search term.", intent.Query)
		resp.FollowupChips = chipsFor(IntentSearch, false)
		return resp
	}
	resp.Message = fmt.Sprintf("Here's what I found for %q:", intent.Query)
	resp.FollowupChips = chipsFor(IntentSearch, true)
	return resp
}

func (s *Service) handleGeneral(ctx context.Context, sessionID, message string) *Response {
	reply := s.assistant.Send(ctx, sessionID, message)

	intent := reply.Intent
	if intent == "" {
		intent = IntentGeneral
	}
	chips := reply.FollowupChips
	if len(chips) == 0 && !reply.Degraded {
		chips = chipsFor(intent, len(reply.Products) > 0)
	}

	return &Response{
		SessionID:     reply.SessionID,
		Message:       reply.Message,
		Intent:        intent,
		Products:      reply.Products,
		Actions:       reply.Actions,
		FollowupChips: chips,
	}
}

// chipsFor suggests follow-up chips by intent. Kept deliberately short; the
// assistant's own chips always win when present.
func chipsFor(intent string, hasResults bool) []string {
	switch intent {
	case IntentSearch:
		if hasResults {
			return []string{"Tell me about option 1", "Add option 1 to cart", "Is option 1 in stock?"}
		}
		return []string{"Search for office chairs", "Search for sofas", "Search for desks"}
	case "cart_add", "cart_show":
		return []string{"Show my cart", "Search for more products"}
	default:
		return nil
	}
}
