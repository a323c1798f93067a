// Package mcp exposes the purchase engine over the Model Context
// Protocol so conversational agents can buy immediately, set up
// deferred watches, and inspect their transactions.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ghostcart/ghostcart/pkg/engine"
	"github.com/ghostcart/ghostcart/pkg/mandate"
	"github.com/ghostcart/ghostcart/pkg/store"
)

// Server adapts the purchase engine to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	store     *store.Store
}

// NewServer creates a new MCP server instance.
func NewServer(eng *engine.Engine, st *store.Store) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ghostcart",
			"1.0.0",
		),
		engine: eng,
		store:  st,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// ghostcart://transactions/{userId} would need templates; keep a
	// flat recent-transactions view plus active watches.
	s.mcpServer.AddResource(mcp.NewResource(
		"ghostcart://transactions",
		"Recent Transactions",
		mcp.WithResourceDescription("Recently recorded purchase transactions with their outcomes"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadTransactions)

	s.mcpServer.AddResource(mcp.NewResource(
		"ghostcart://watches",
		"Active Watches",
		mcp.WithResourceDescription("Active monitoring jobs waiting for their purchase conditions"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadWatches)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"buy_now",
		mcp.WithDescription("Buy a product immediately. The user signs the exact cart before payment."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("The buyer's user id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text product search, e.g. 'espresso machine'")),
	), s.handleBuyNow)

	s.mcpServer.AddTool(mcp.NewTool(
		"watch_product",
		mcp.WithDescription("Pre-authorize an autonomous purchase: watch a product and buy it automatically once price and delivery fall inside the given ceilings."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("The buyer's user id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text product search to watch")),
		mcp.WithNumber("max_price_cents", mcp.Required(), mcp.Description("Price ceiling in minor currency units")),
		mcp.WithNumber("max_delivery_days", mcp.Required(), mcp.Description("Delivery estimate ceiling in days")),
		mcp.WithNumber("expires_in_hours", mcp.Description("Watch lifetime in hours (default 168, min 1, max 720)")),
		mcp.WithNumber("check_interval_seconds", mcp.Description("Evaluation interval in seconds (default 300)")),
	), s.handleWatchProduct)

	s.mcpServer.AddTool(mcp.NewTool(
		"cancel_watch",
		mcp.WithDescription("Cancel one of the user's active watches before it triggers."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("The watch owner's user id")),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("The watch to cancel")),
	), s.handleCancelWatch)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"ghostcart-aware",
		mcp.WithPromptDescription("Explains mandates, flows, and when to use each purchase tool"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadTransactions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	txs, err := s.store.TransactionsByStatus(ctx, mandate.StatusAuthorized)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	declined, err := s.store.TransactionsByStatus(ctx, mandate.StatusDeclined)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	txs = append(txs, declined...)

	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transactions: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadWatches(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.store.ActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch watches: %w", err)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal watches: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleBuyNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")
	query := mcp.ParseString(request, "query", "")
	if userID == "" || query == "" {
		return mcp.NewToolResultError("user_id and query are required"), nil
	}

	tx, err := s.engine.BuyNow(ctx, userID, query)
	if err != nil {
		var verr *mandate.Error
		if errors.As(err, &verr) && tx != nil {
			return mcp.NewToolResultText(fmt.Sprintf(
				"Payment declined: %s\nTransaction: %s (status %s)", verr.Message, tx.ID, tx.Status)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Purchase failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Purchase authorized.\nTransaction: %s\nAmount: %s\nAuthorization code: %s",
		tx.ID, tx.AmountCents.String(), tx.AuthorizationCode)), nil
}

func (s *Server) handleWatchProduct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")
	query := mcp.ParseString(request, "query", "")
	maxPrice := mcp.ParseFloat64(request, "max_price_cents", 0)
	maxDelivery := mcp.ParseFloat64(request, "max_delivery_days", 0)
	expiresHours := mcp.ParseFloat64(request, "expires_in_hours", 168)
	intervalSecs := mcp.ParseFloat64(request, "check_interval_seconds", 300)

	if userID == "" || query == "" {
		return mcp.NewToolResultError("user_id and query are required"), nil
	}
	if maxPrice <= 0 {
		return mcp.NewToolResultError("max_price_cents must be positive"), nil
	}

	constraints := mandate.Constraints{
		MaxPriceCents:   mandate.Cents(maxPrice),
		MaxDeliveryDays: int(maxDelivery),
		Currency:        mandate.DefaultCurrency,
	}
	expiration := time.Now().Add(time.Duration(expiresHours * float64(time.Hour)))
	interval := time.Duration(intervalSecs) * time.Second

	job, err := s.engine.WatchProduct(ctx, userID, query, constraints, expiration, interval)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Watch setup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Watch created.\nJob: %s\nCeiling: %s, delivery within %d days\nExpires: %s",
		job.ID, job.Constraints.MaxPriceCents.String(), job.Constraints.MaxDeliveryDays,
		job.ExpiresAt.Format(time.RFC3339))), nil
}

func (s *Server) handleCancelWatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")
	jobID := mcp.ParseString(request, "job_id", "")
	if userID == "" || jobID == "" {
		return mcp.NewToolResultError("user_id and job_id are required"), nil
	}

	if err := s.engine.CancelWatch(ctx, jobID, userID); err != nil {
		if errors.Is(err, engine.ErrNotCancellable) {
			return mcp.NewToolResultError(fmt.Sprintf("Watch %s cannot be cancelled right now: %v", jobID, err)), nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("No watch %s for user %s", jobID, userID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Cancel failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Watch %s cancelled.", jobID)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "ghostcart-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with GhostCart, a payment authorization engine for agent purchases.

Concepts:
- Mandate: a signed, immutable record authorizing one step (intent to shop, a concrete cart, a payment).
- Immediate flow: the user signs the exact cart; use the 'buy_now' tool.
- Deferred flow: the user pre-signs a constrained intent; an autonomous agent buys later once conditions are met. Use the 'watch_product' tool with a price ceiling and delivery ceiling.
- A watch fires at most once. If the purchase attempt fails, a new watch must be created explicitly.

Use 'cancel_watch' to stop a watch before it triggers. Read 'ghostcart://watches' and 'ghostcart://transactions' to report current state.
`

	return mcp.NewGetPromptResult(
		"ghostcart-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
