package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// AI implements the document processing pipeline: uploaded documents are
// classified asynchronously, then classification results drive follow-up
// suggestions.
type AI struct {
	subs subscriptions

	mu  sync.Mutex
	bus domain.Bus
	wg  sync.WaitGroup
}

// NewAI creates the AI document pipeline registry.
func NewAI() *AI {
	return &AI{}
}

func (r *AI) Name() string { return "ai" }

// RegisterAll subscribes the document pipeline handlers.
func (r *AI) RegisterAll(b domain.Bus) {
	r.mu.Lock()
	r.bus = b
	r.mu.Unlock()

	r.subs.add(b.On("document.uploaded", r.handleUploaded))
	r.subs.add(b.On("document.processed", r.handleProcessed))
}

// Stop unsubscribes the handlers and waits for in-flight classifications.
func (r *AI) Stop() {
	r.subs.stop()
	r.wg.Wait()
}

// Wait blocks until all in-flight classifications have completed. Used by
// callers that need the full pipeline to settle, such as tests and shutdown.
func (r *AI) Wait() {
	r.wg.Wait()
}

// HealthCheck reports whether the pipeline is accepting documents.
func (r *AI) HealthCheck(ctx context.Context) error {
	return nil
}

// handleUploaded kicks off asynchronous classification of an uploaded
// document. Classification runs off the dispatch goroutine so slow models
// never stall sibling handlers.
func (r *AI) handleUploaded(ctx context.Context, evt *domain.Event) error {
	p, ok := evt.Payload.(*domain.AIPayload)
	if !ok {
		slog.Warn("document upload without AI payload, skipping classification",
			"event_id", evt.ID,
			"team_id", evt.TeamID,
		)
		return nil
	}

	r.mu.Lock()
	b := r.bus
	r.mu.Unlock()
	if b == nil {
		return nil
	}

	doc := *p
	teamID := evt.TeamID
	userID := evt.UserID

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		docType, confidence := classifyDocument(doc.FileName)
		processed := &domain.Event{
			ID:     uuid.New().String(),
			Type:   "document.processed",
			TeamID: teamID,
			UserID: userID,
			Source: domain.SourceAI,
			Payload: &domain.AIPayload{
				DocumentID:   doc.DocumentID,
				DocumentType: docType,
				FileName:     doc.FileName,
				Confidence:   confidence,
			},
		}

		if err := b.Emit(context.Background(), processed); err != nil {
			slog.Error("failed to emit document classification",
				"document_id", doc.DocumentID,
				"team_id", teamID,
				"error", err,
			)
		}
	}()

	return nil
}

// handleProcessed turns a classification result into follow-up suggestions.
func (r *AI) handleProcessed(ctx context.Context, evt *domain.Event) error {
	p, ok := evt.Payload.(*domain.AIPayload)
	if !ok {
		return nil
	}

	suggestions := suggestionsFor(p.DocumentType)
	if len(suggestions) == 0 {
		return nil
	}

	r.mu.Lock()
	b := r.bus
	r.mu.Unlock()
	if b == nil {
		return nil
	}

	suggestion := &domain.Event{
		ID:     uuid.New().String(),
		Type:   "ai.suggestion_generated",
		TeamID: evt.TeamID,
		UserID: evt.UserID,
		Source: domain.SourceAI,
		Payload: &domain.AIPayload{
			DocumentID:   p.DocumentID,
			DocumentType: p.DocumentType,
			FileName:     p.FileName,
			Confidence:   p.Confidence,
			Suggestions:  suggestions,
		},
	}

	if err := b.Emit(ctx, suggestion); err != nil {
		slog.Error("failed to emit suggestions",
			"document_id", p.DocumentID,
			"team_id", evt.TeamID,
			"error", err,
		)
	}
	return nil
}

// classifyDocument infers the document type from its file name. A heuristic
// stand-in for the model call; unknown names classify with low confidence.
func classifyDocument(fileName string) (string, float64) {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "invoice"):
		return "invoice", 0.92
	case strings.Contains(name, "contract"):
		return "contract", 0.90
	case strings.Contains(name, "receipt"):
		return "payment_receipt", 0.88
	default:
		return "unknown", 0.30
	}
}

// suggestionsFor maps a document type to follow-up actions.
func suggestionsFor(docType string) []domain.Suggestion {
	switch docType {
	case "invoice":
		return []domain.Suggestion{{
			Action:      "create_expense",
			EntityType:  "expense",
			Description: "Create an expense from the invoice",
			Confidence:  0.85,
		}}
	case "contract":
		return []domain.Suggestion{{
			Action:      "create_contract",
			EntityType:  "contract",
			Description: "Register the contract",
			Confidence:  0.85,
		}}
	case "payment_receipt":
		return []domain.Suggestion{{
			Action:      "record_payment",
			EntityType:  "receivable",
			Description: "Record the payment against its receivable",
			Confidence:  0.80,
		}}
	default:
		return nil
	}
}

var _ Registry = (*AI)(nil)
