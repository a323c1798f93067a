// Package engine owns the monitoring-job lifecycle: periodic
// constraint evaluation against live catalog state, autonomous cart
// construction when conditions are met, invocation of the chain
// validator, and terminal-state handling. It also drives the
// immediate purchase flow end to end.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostcart/ghostcart/pkg/ledger"
	"github.com/ghostcart/ghostcart/pkg/mandate"
	"github.com/ghostcart/ghostcart/pkg/provider"
	"github.com/ghostcart/ghostcart/pkg/signature"
	"github.com/ghostcart/ghostcart/pkg/store"
	"github.com/ghostcart/ghostcart/pkg/validator"
)

// Autonomous carts are built from the current catalog line with a
// fixed quantity of one, a flat tax rate, and flat shipping.
const (
	taxRatePercent = 8
	shippingCents  = mandate.Cents(1000)
)

// Locker is an optional distributed per-job lock for deployments
// running more than one daemon against the same database. A nil
// Locker means the store's atomic claim is the only guard, which is
// sufficient for a single instance.
type Locker interface {
	Acquire(ctx context.Context, jobID, holderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID, holderID string) error
}

// OutcomeKind classifies the result of one evaluation cycle.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeExpired   OutcomeKind = "expired"
	OutcomePending   OutcomeKind = "conditions_not_met"
	OutcomeTerminal  OutcomeKind = "already_terminal"
	OutcomeBusy      OutcomeKind = "busy"
)

// Outcome reports what one evaluation cycle did, including the
// observed market values for cycles that stayed pending.
type Outcome struct {
	JobID                string            `json:"job_id"`
	Kind                 OutcomeKind       `json:"kind"`
	Status               mandate.JobStatus `json:"status"`
	TransactionID        string            `json:"transaction_id,omitempty"`
	Err                  *mandate.Error    `json:"error,omitempty"`
	ObservedPriceCents   mandate.Cents     `json:"observed_price_cents,omitempty"`
	ObservedDeliveryDays int               `json:"observed_delivery_days,omitempty"`
	InStock              bool              `json:"in_stock"`
}

// Engine wires the validator, recorder, signer, and capabilities
// behind the job state machine. Safe for concurrent use; per-job
// mutual exclusion comes from the store claim plus the optional lock.
type Engine struct {
	store     *store.Store
	catalog   provider.Catalog
	validator *validator.Validator
	recorder  *ledger.Recorder
	signer    *signature.Service
	locks     Locker
	holderID  string
	logger    *slog.Logger

	catalogTimeout time.Duration
	lockTTL        time.Duration
	now            func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocker enables the distributed per-job lock.
func WithLocker(l Locker, holderID string) Option {
	return func(e *Engine) {
		e.locks = l
		e.holderID = holderID
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(st *store.Store, catalog provider.Catalog, v *validator.Validator, rec *ledger.Recorder, signer *signature.Service, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		catalog:        catalog,
		validator:      v,
		recorder:       rec,
		signer:         signer,
		logger:         slog.Default(),
		catalogTimeout: 5 * time.Second,
		lockTTL:        30 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one evaluation cycle for a job. It is the one-shot
// the scheduling layer invokes per tick; it never loops. Calling it
// on a terminal job is a no-op that re-reports the terminal state.
func (e *Engine) Evaluate(ctx context.Context, jobID string) (*Outcome, error) {
	if e.locks != nil {
		ok, err := e.locks.Acquire(ctx, jobID, e.holderID, e.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire job lock: %w", err)
		}
		if !ok {
			return &Outcome{JobID: jobID, Kind: OutcomeBusy}, nil
		}
		defer func() {
			if rerr := e.locks.Release(context.WithoutCancel(ctx), jobID, e.holderID); rerr != nil {
				e.logger.Warn("release job lock", "job_id", jobID, "error", rerr)
			}
		}()
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() || !job.Active {
		return &Outcome{JobID: job.ID, Kind: OutcomeTerminal, Status: job.Status, TransactionID: job.TransactionID}, nil
	}

	claimed, err := e.store.ClaimJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		// Another evaluator holds the job, or it just went terminal.
		return &Outcome{JobID: job.ID, Kind: OutcomeBusy, Status: job.Status}, nil
	}

	now := e.now().UTC()
	if now.After(job.ExpiresAt) {
		if err := e.store.FinishJob(ctx, jobID, mandate.JobExpired, "", now); err != nil {
			return nil, fmt.Errorf("expire job %s: %w", jobID, err)
		}
		jobEvaluations.WithLabelValues(string(OutcomeExpired)).Inc()
		return &Outcome{JobID: job.ID, Kind: OutcomeExpired, Status: mandate.JobExpired}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	product, found, lerr := e.catalog.Lookup(lookupCtx, job.Query)
	cancel()
	if lerr != nil {
		// Transient catalog trouble is never treated as conditions
		// met; release and let a later tick retry.
		if rerr := e.store.ReleaseJob(ctx, jobID, now); rerr != nil {
			return nil, rerr
		}
		e.logger.Warn("catalog lookup failed", "job_id", jobID, "error", lerr)
		jobEvaluations.WithLabelValues(string(OutcomePending)).Inc()
		return &Outcome{JobID: job.ID, Kind: OutcomePending, Status: mandate.JobPending}, nil
	}

	// The price ceiling applies to the amount that will actually be
	// charged, not the sticker price.
	if !found || !product.InStock ||
		estimatedCartTotal(product.PriceCents) > job.Constraints.MaxPriceCents ||
		product.DeliveryEstimateDays > job.Constraints.MaxDeliveryDays {
		if rerr := e.store.ReleaseJob(ctx, jobID, now); rerr != nil {
			return nil, rerr
		}
		jobEvaluations.WithLabelValues(string(OutcomePending)).Inc()
		out := &Outcome{JobID: job.ID, Kind: OutcomePending, Status: mandate.JobPending, InStock: found && product.InStock}
		if found {
			out.ObservedPriceCents = product.PriceCents
			out.ObservedDeliveryDays = product.DeliveryEstimateDays
		}
		return out, nil
	}

	// Conditions met. One attempt only; the job deactivates whatever
	// the validator says, so a changed price is never silently
	// retried against.
	if err := e.store.MarkTriggering(ctx, jobID); err != nil {
		return nil, err
	}
	return e.trigger(ctx, job, product, now)
}

func (e *Engine) trigger(ctx context.Context, job *mandate.MonitoringJob, product provider.Product, now time.Time) (*Outcome, error) {
	intent, err := e.store.GetIntent(ctx, job.IntentMandateID)
	if err != nil {
		return nil, e.requeue(ctx, job.ID, now, fmt.Errorf("load intent %s: %w", job.IntentMandateID, err))
	}

	cart := e.buildCart(job.UserID, product, job.IntentMandateID)
	sig, err := e.signer.Sign(cart.SigningContent(), signature.RoleAgent, mandate.SignerAgent)
	if err != nil {
		return nil, e.requeue(ctx, job.ID, now, fmt.Errorf("sign cart: %w", err))
	}
	cart.Signature = sig
	if err := e.store.SaveCart(ctx, cart); err != nil {
		return nil, e.requeue(ctx, job.ID, now, err)
	}

	// The attempt is made past this point. Whatever happens, the job
	// must deactivate; a bookkeeping hiccup must never re-arm an
	// autonomous purchase.
	res, verr := e.validator.AuthorizeDeferred(ctx, intent, cart)
	if verr != nil {
		tx, rerr := e.recordFailure(ctx, cart, intent.ID, verr)
		if rerr != nil {
			return nil, e.abandon(ctx, job.ID, mandate.JobFailed, "", now, rerr)
		}
		if err := e.store.FinishJob(ctx, job.ID, mandate.JobFailed, tx.ID, now); err != nil {
			return nil, err
		}
		e.logger.Info("autonomous purchase failed", "job_id", job.ID, "code", verr.Code(), "reason", verr.Message)
		jobEvaluations.WithLabelValues(string(OutcomeFailed)).Inc()
		purchases.WithLabelValues(string(tx.Status)).Inc()
		return &Outcome{JobID: job.ID, Kind: OutcomeFailed, Status: mandate.JobFailed, TransactionID: tx.ID, Err: verr}, nil
	}

	if err := e.store.SavePayment(ctx, res.Payment); err != nil {
		return nil, e.abandon(ctx, job.ID, mandate.JobCompleted, res.TransactionID, now, err)
	}
	tx, err := e.recorder.RecordAuthorized(ctx, res, cart, intent.ID)
	if err != nil {
		return nil, e.abandon(ctx, job.ID, mandate.JobCompleted, res.TransactionID, now, err)
	}
	if err := e.store.LinkTransaction(ctx, tx.ID, intent.ID, cart.ID, res.Payment.ID); err != nil {
		return nil, e.abandon(ctx, job.ID, mandate.JobCompleted, tx.ID, now, err)
	}
	if err := e.store.FinishJob(ctx, job.ID, mandate.JobCompleted, tx.ID, now); err != nil {
		return nil, err
	}
	e.logger.Info("autonomous purchase completed",
		"job_id", job.ID, "transaction_id", tx.ID, "amount", tx.AmountCents.String())
	jobEvaluations.WithLabelValues(string(OutcomeCompleted)).Inc()
	purchases.WithLabelValues(string(mandate.StatusAuthorized)).Inc()
	authorizedCents.Add(float64(tx.AmountCents))
	return &Outcome{JobID: job.ID, Kind: OutcomeCompleted, Status: mandate.JobCompleted, TransactionID: tx.ID}, nil
}

func (e *Engine) recordFailure(ctx context.Context, cart *mandate.CartMandate, intentID string, verr *mandate.Error) (*mandate.Transaction, error) {
	if verr.Kind == mandate.KindPaymentDeclined {
		return e.recorder.RecordDeclined(ctx, cart, intentID, verr)
	}
	return e.recorder.RecordFailed(ctx, cart, intentID, verr)
}

// requeue returns a triggering job to pending after an infrastructure
// failure that happened before any purchase attempt, so a later tick
// retries instead of leaving the job wedged mid-flight.
func (e *Engine) requeue(ctx context.Context, jobID string, now time.Time, cause error) error {
	e.logger.Warn("purchase attempt aborted, job requeued", "job_id", jobID, "error", cause)
	if rerr := e.store.ReleaseJob(ctx, jobID, now); rerr != nil {
		return errors.Join(cause, rerr)
	}
	return cause
}

// abandon deactivates a job whose purchase attempt already ran but
// whose bookkeeping failed. Deactivating is the safe direction; a
// re-armed job could charge twice.
func (e *Engine) abandon(ctx context.Context, jobID string, status mandate.JobStatus, txID string, now time.Time, cause error) error {
	e.logger.Error("purchase bookkeeping failed, job deactivated",
		"job_id", jobID, "status", status, "error", cause)
	if ferr := e.store.FinishJob(ctx, jobID, status, txID, now); ferr != nil {
		return errors.Join(cause, ferr)
	}
	return cause
}

// estimatedCartTotal mirrors buildCart's arithmetic for the condition
// check.
func estimatedCartTotal(price mandate.Cents) mandate.Cents {
	return price + price*taxRatePercent/100 + shippingCents
}

// buildCart assembles an unsigned single-item cart from the current
// catalog observation. The caller signs it under the role its flow
// requires.
func (e *Engine) buildCart(userID string, product provider.Product, intentID string) *mandate.CartMandate {
	subtotal := product.PriceCents
	tax := subtotal * taxRatePercent / 100
	cart := &mandate.CartMandate{
		ID:     mandate.NewCartID(),
		UserID: userID,
		Items: []mandate.LineItem{{
			ProductID:      product.ProductID,
			Name:           product.Name,
			Quantity:       1,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: product.PriceCents,
		}},
		Total: mandate.Total{
			SubtotalCents:   subtotal,
			TaxCents:        tax,
			ShippingCents:   shippingCents,
			GrandTotalCents: subtotal + tax + shippingCents,
			Currency:        mandate.DefaultCurrency,
		},
		Merchant: mandate.MerchantInfo{
			MerchantID:   "merch_ghostcart_demo",
			MerchantName: "GhostCart Demo Store",
			MerchantURL:  "https://store.ghostcart.example",
		},
		DeliveryEstimateDays: product.DeliveryEstimateDays,
		References:           mandate.CartReferences{IntentMandateID: intentID},
	}
	return cart
}

// WatchProduct creates a signed deferred Intent and its monitoring
// job. The expiration must land inside the allowed window.
func (e *Engine) WatchProduct(ctx context.Context, userID, query string, constraints mandate.Constraints, expiration time.Time, interval time.Duration) (*mandate.MonitoringJob, error) {
	now := e.now().UTC()
	if err := mandate.CheckExpirationWindow(now, expiration); err != nil {
		return nil, err
	}
	if constraints.Currency == "" {
		constraints.Currency = mandate.DefaultCurrency
	}

	exp := expiration.UTC()
	intent := &mandate.IntentMandate{
		ID:          mandate.NewIntentID(),
		UserID:      userID,
		Scenario:    mandate.ScenarioDeferred,
		Query:       query,
		Constraints: &constraints,
		Expiration:  &exp,
	}
	// The demo vaults the user key engine-side; a production keyring
	// would hold it client-side and receive signed intents instead.
	sig, err := e.signer.Sign(intent.SigningContent(), signature.RoleUser, userID)
	if err != nil {
		return nil, fmt.Errorf("sign intent: %w", err)
	}
	intent.Signature = sig
	if verr := mandate.ValidateIntent(intent); verr != nil {
		return nil, verr
	}
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		return nil, err
	}

	job := &mandate.MonitoringJob{
		ID:              mandate.NewJobID(),
		IntentMandateID: intent.ID,
		UserID:          userID,
		Query:           query,
		Constraints:     constraints,
		Interval:        interval,
		Status:          mandate.JobPending,
		Active:          true,
		CreatedAt:       now,
		ExpiresAt:       exp,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	e.logger.Info("monitoring job created",
		"job_id", job.ID, "user_id", userID, "query", query,
		"max_price", constraints.MaxPriceCents.String(), "expires_at", exp)
	return job, nil
}

// CancelWatch deactivates a user's pending monitoring job. Returns
// ErrNotCancellable when the job is mid-evaluation or already
// terminal; cancellation then takes effect only if a later tick never
// runs, which the caller may retry.
func (e *Engine) CancelWatch(ctx context.Context, jobID, userID string) error {
	ok, err := e.store.CancelJob(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if !ok {
		job, gerr := e.store.GetJob(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		if job.UserID != userID {
			return fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
		}
		return fmt.Errorf("job %s in state %s: %w", jobID, job.Status, ErrNotCancellable)
	}
	e.logger.Info("monitoring job cancelled", "job_id", jobID, "user_id", userID)
	return nil
}

// ErrNotCancellable means the job is mid-evaluation or already
// terminal.
var ErrNotCancellable = errors.New("job not cancellable")

// BuyNow runs the immediate flow end to end: catalog lookup, cart
// construction, user signature, chain validation, and transaction
// recording. On a decline the declined transaction is recorded and
// returned together with the typed error.
func (e *Engine) BuyNow(ctx context.Context, userID, query string) (*mandate.Transaction, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	product, found, err := e.catalog.Lookup(lookupCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no product matches %q", query)
	}
	if !product.InStock {
		return nil, fmt.Errorf("product %s is out of stock", product.ProductID)
	}

	// Audit record of the original request.
	intent := &mandate.IntentMandate{
		ID:       mandate.NewIntentID(),
		UserID:   userID,
		Scenario: mandate.ScenarioImmediate,
		Query:    query,
	}
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		return nil, err
	}

	cart := e.buildCart(userID, product, "")
	// Immediate flow: the buyer signs the exact cart themselves.
	sig, err := e.signer.Sign(cart.SigningContent(), signature.RoleUser, userID)
	if err != nil {
		return nil, fmt.Errorf("sign cart: %w", err)
	}
	cart.Signature = sig
	if err := e.store.SaveCart(ctx, cart); err != nil {
		return nil, err
	}

	res, verr := e.validator.AuthorizeImmediate(ctx, cart)
	if verr != nil {
		if verr.Kind == mandate.KindPaymentDeclined {
			tx, rerr := e.recorder.RecordDeclined(ctx, cart, intent.ID, verr)
			if rerr != nil {
				return nil, rerr
			}
			purchases.WithLabelValues(string(mandate.StatusDeclined)).Inc()
			return tx, verr
		}
		return nil, verr
	}

	if err := e.store.SavePayment(ctx, res.Payment); err != nil {
		return nil, err
	}
	tx, err := e.recorder.RecordAuthorized(ctx, res, cart, intent.ID)
	if err != nil {
		return nil, err
	}
	if err := e.store.LinkTransaction(ctx, tx.ID, intent.ID, cart.ID, res.Payment.ID); err != nil {
		return nil, err
	}
	e.logger.Info("purchase authorized",
		"user_id", userID, "transaction_id", tx.ID, "amount", tx.AmountCents.String())
	purchases.WithLabelValues(string(mandate.StatusAuthorized)).Inc()
	authorizedCents.Add(float64(tx.AmountCents))
	return tx, nil
}
