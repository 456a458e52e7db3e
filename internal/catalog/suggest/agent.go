package suggest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"
)

const (
	agentSource  = "agent"
	agentAppName = "catalog-classifier"
)

// RecordSuggestionInput is what the model submits per variation.
type RecordSuggestionInput struct {
	VariationID    string  `json:"variationId"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
}

type RecordSuggestionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// suggestionCollector receives tool calls for the run in progress.
type suggestionCollector struct {
	mu       sync.Mutex
	allowed  map[uuid.UUID]bool
	verdicts map[uuid.UUID]Verdict
	order    []uuid.UUID
}

func (c *suggestionCollector) reset(candidates []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowed = make(map[uuid.UUID]bool, len(candidates))
	c.verdicts = make(map[uuid.UUID]Verdict, len(candidates))
	c.order = c.order[:0]
	for _, cand := range candidates {
		c.allowed[cand.VariationID] = true
	}
}

func (c *suggestionCollector) drain() []Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Verdict, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.verdicts[id])
	}
	return out
}

func (c *suggestionCollector) handleRecordSuggestion(_ tool.Context, in RecordSuggestionInput) (RecordSuggestionOutput, error) {
	id, err := uuid.Parse(strings.TrimSpace(in.VariationID))
	if err != nil {
		return RecordSuggestionOutput{Message: "variationId must be one of the listed IDs"}, nil
	}
	class, ok := domain.ParseClassification(in.Classification)
	if !ok {
		return RecordSuggestionOutput{Message: "classification must be subscription, addon or ignored"}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowed[id] {
		return RecordSuggestionOutput{Message: "unknown variationId"}, nil
	}
	if _, seen := c.verdicts[id]; !seen {
		c.order = append(c.order, id)
	}
	c.verdicts[id] = Verdict{
		VariationID:    id,
		Classification: class,
		Confidence:     clampConfidence(in.Confidence),
		Rationale:      strings.TrimSpace(in.Rationale),
		Source:         agentSource,
	}
	return RecordSuggestionOutput{Success: true, Message: "recorded"}, nil
}

// Agent asks an LLM to classify candidates through a record_suggestion tool.
type Agent struct {
	runner         *runner.Runner
	sessionService session.Service
	collector      *suggestionCollector
	runMu          sync.Mutex
}

// NewAgent builds the classifier agent on top of llm.
func NewAgent(llm model.LLM) (*Agent, error) {
	collector := &suggestionCollector{}

	recordTool, err := functiontool.New(functiontool.Config{
		Name:        "record_suggestion",
		Description: "Record the proposed classification of one product variation. Call once per variation you can classify.",
	}, collector.handleRecordSuggestion)
	if err != nil {
		return nil, fmt.Errorf("failed to create record_suggestion tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "CatalogClassifier",
		Model:       llm,
		Description: "Classifies subscription-box store products.",
		Instruction: classifierInstruction,
		Tools:       []tool.Tool{recordTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        agentAppName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier runner: %w", err)
	}

	return &Agent{runner: r, sessionService: sessionService, collector: collector}, nil
}

func (a *Agent) Name() string { return agentSource }

func (a *Agent) Suggest(ctx context.Context, candidates []Candidate) ([]Verdict, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.collector.reset(candidates)

	sessionID := uuid.New().String()
	userID := "classifier"
	if _, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   agentAppName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return nil, fmt.Errorf("failed to create classifier session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   agentAppName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	msg := &genai.Content{Role: "user", Parts: []*genai.Part{{Text: buildPrompt(candidates)}}}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for _, err := range a.runner.Run(ctx, userID, sessionID, msg, runConfig) {
		if err != nil {
			return a.collector.drain(), fmt.Errorf("classifier run: %w", err)
		}
	}
	return a.collector.drain(), nil
}

const classifierInstruction = `You review products sold by a subscription-box store.
Each product variation is one of:
- subscription: a numbered or recurring installment of the box itself
- addon: an extra item bought alongside the box (merch, upgrades, bundles)
- ignored: not a physical shipment (gift cards, shipping protection, tips, tests)
Call record_suggestion once per variation you are reasonably sure about.
Confidence is between 0 and 1. Skip variations you cannot judge.`

func buildPrompt(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Classify these product variations:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- variationId=%s product=%q variant=%q sku=%q orders=%d\n",
			c.VariationID, c.ProductName, c.VariantTitle, c.SKU, c.OrderCount)
	}
	return b.String()
}
