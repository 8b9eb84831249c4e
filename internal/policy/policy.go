// Package policy provides the CEL-Go based event rule engine backing the
// access-control middleware and audit security alerting.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// Rule is a compiled boolean CEL expression over event attributes.
type Rule struct {
	ID         string
	Severity   string
	Expression string

	program cel.Program
}

// Match reports a rule that evaluated to true for an event.
type Match struct {
	RuleID   string
	Severity string
}

// Engine holds compiled rules and evaluates them against event activations.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*Rule
}

// NewEngine creates a rule engine with the event variable declarations.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("total_value", cel.DoubleType),
		cel.Variable("payment_amount", cel.DoubleType),
		cel.Variable("item_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// AddRule compiles and loads a rule into the engine.
func (e *Engine) AddRule(id, severity, expression string) error {
	if id == "" || expression == "" {
		return fmt.Errorf("rule id and expression are required")
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile rule %s: %w", id, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to build program for rule %s: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &Rule{
		ID:         id,
		Severity:   severity,
		Expression: expression,
		program:    program,
	})
	return nil
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs all rules against an activation and returns the matches.
// Rules that fail to evaluate never match; evaluation errors are swallowed
// so one broken expression cannot block emission or alerting.
func (e *Engine) Evaluate(activation map[string]any) []Match {
	e.mu.RLock()
	rules := make([]*Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var matches []Match
	for _, rule := range rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			matches = append(matches, Match{RuleID: rule.ID, Severity: rule.Severity})
		}
	}
	return matches
}

// Activation builds the CEL variable bindings for an event. Monetary and
// count variables default to zero when the payload variant does not carry
// them.
func Activation(evt *domain.Event) map[string]any {
	var amount, totalValue, paymentAmount float64
	var itemCount int

	switch p := evt.Payload.(type) {
	case *domain.ContractPayload:
		totalValue = p.TotalValue
	case *domain.ReceivablePayload:
		amount = p.Amount
		paymentAmount = p.PaymentAmount
	case *domain.ExpensePayload:
		amount = p.Amount
	case *domain.BulkPayload:
		itemCount = p.ItemCount
	case domain.GenericPayload:
		amount = toFloat(p["amount"])
		totalValue = toFloat(p["totalValue"])
		paymentAmount = toFloat(p["paymentAmount"])
		itemCount = int(toFloat(p["itemCount"]))
	}

	eventVars := map[string]any{
		"id":     evt.ID,
		"type":   evt.Type,
		"teamId": evt.TeamID,
	}

	return map[string]any{
		"event":          eventVars,
		"event_type":     evt.Type,
		"category":       evt.Category(),
		"action":         evt.Action(),
		"source":         string(evt.Source),
		"user_id":        evt.UserID,
		"amount":         amount,
		"total_value":    totalValue,
		"payment_amount": paymentAmount,
		"item_count":     itemCount,
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
