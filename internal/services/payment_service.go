package services

import (
	"context"
	"fmt"
	"strings"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/repositories"
)

var gatewayActor = domain.Actor{ID: "gateway", Role: domain.RoleSystem}

// PaymentService records payment intents and settles legs from gateway
// confirmations and cash collection.
type PaymentService struct {
	Deps
}

func NewPaymentService(d Deps) PaymentService { return PaymentService{Deps: d} }

type Split struct {
	Online domain.Money `json:"online"`
	Cash   domain.Money `json:"cash"`
}

type PaymentIntent struct {
	ExpectedVersion  int64
	Actor            domain.Actor
	Method           domain.PaymentMethod
	Amount           domain.Money
	IsPartialPayment bool
	Split            *Split
}

// GatewayConfirmation is a provider callback for the online leg.
type GatewayConfirmation struct {
	BookingID      int64                `json:"bookingId"`
	TransactionID  string               `json:"transactionId"`
	Outcome        domain.PaymentStatus `json:"status"`
	Amount         domain.Money         `json:"amount"`
	IdempotencyKey string               `json:"idempotencyKey"`
}

// Key is the confirmation's idempotency key. Providers that send none are
// keyed by transaction and outcome.
func (c GatewayConfirmation) Key() string {
	if k := strings.TrimSpace(c.IdempotencyKey); k != "" {
		return k
	}
	return fmt.Sprintf("txn:%s:%s", strings.TrimSpace(c.TransactionID), c.Outcome)
}

type CashCollection struct {
	ExpectedVersion  int64
	Actor            domain.Actor
	CollectedBy      string
	CollectedByModel domain.ActorRole
	IdempotencyKey   string
}

// PaymentResult is returned by settlement calls. Replayed is set when the
// same event was already applied and nothing changed.
type PaymentResult struct {
	Booking  models.BookingView `json:"booking"`
	Replayed bool               `json:"replayed"`
}

type LedgerStatement struct {
	BookingID int64                `json:"bookingId"`
	Entries   []models.LedgerEntry `json:"entries"`
	Balance   domain.Money         `json:"balance"`
}

// RecordPaymentIntent sets how the booking will be paid. A split must add up
// to the pricing total exactly.
func (s PaymentService) RecordPaymentIntent(ctx context.Context, id int64, in PaymentIntent) (models.BookingView, error) {
	if err := in.Actor.Validate(); err != nil {
		return models.BookingView{}, err
	}
	b, err := s.load(ctx, id, in.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}
	if b.Status == domain.StatusCancelled || b.Status == domain.StatusCancellationRequested {
		return models.BookingView{}, domain.StateError{Op: "record payment", Msg: "booking is being cancelled"}
	}
	if b.Payment.AnySettled() {
		return models.BookingView{}, domain.StateError{Op: "record payment", Msg: "payment already settled"}
	}

	total := b.Pricing.TotalAmount
	now := s.now()
	pay := models.PaymentState{
		Method:           in.Method,
		Status:           domain.PaymentPending,
		IsPartialPayment: in.IsPartialPayment,
		Amount:           total,
	}
	var ledger []models.LedgerEntry

	if in.IsPartialPayment {
		sp := in.Split
		switch {
		case sp == nil:
			return models.BookingView{}, domain.ValidationError{Field: "partialPaymentDetails", Msg: "split required for partial payment"}
		case sp.Online <= 0 || sp.Cash <= 0:
			return models.BookingView{}, domain.ValidationError{Field: "partialPaymentDetails", Msg: "both legs must be positive"}
		case !in.Method.Online():
			return models.BookingView{}, domain.ValidationError{Field: "method", Msg: "online leg needs an online method"}
		}
		if sum := sp.Online + sp.Cash; sum != total {
			return models.BookingView{}, domain.AmountMismatchError{Expected: total, Got: sum}
		}
		pay.PartialPaymentDetails = &models.PartialPaymentDetails{
			OnlineAmount:        sp.Online,
			CashAmount:          sp.Cash,
			OnlinePaymentStatus: domain.PaymentPending,
			CashPaymentStatus:   domain.CashPending,
		}
		ledger = append(ledger,
			models.LedgerEntry{Leg: models.LegOnline, Kind: models.KindIntent, Amount: sp.Online, Actor: in.Actor.ID, CreatedAt: now},
			models.LedgerEntry{Leg: models.LegCash, Kind: models.KindIntent, Amount: sp.Cash, Actor: in.Actor.ID, CreatedAt: now},
		)
	} else {
		if in.Amount != total {
			return models.BookingView{}, domain.AmountMismatchError{Expected: total, Got: in.Amount}
		}
		leg := models.LegFull
		if in.Method == domain.MethodCash {
			leg = models.LegCash
		}
		ledger = append(ledger, models.LedgerEntry{Leg: leg, Kind: models.KindIntent, Amount: total, Actor: in.Actor.ID, CreatedAt: now})
	}

	next := b.Clone()
	next.Payment = pay
	after, err := s.commit(ctx, "payment_intent", events.TypePaymentUpdated, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Ledger:          ledger,
	}, in.Actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}

// ApplyGatewayConfirmation settles or fails the online leg. A key that was
// already applied returns the current state untouched. Version conflicts
// with concurrent writers are retried against a fresh read.
func (s PaymentService) ApplyGatewayConfirmation(ctx context.Context, c GatewayConfirmation) (PaymentResult, error) {
	c.TransactionID = strings.TrimSpace(c.TransactionID)
	switch {
	case c.BookingID <= 0:
		return PaymentResult{}, domain.ValidationError{Field: "bookingId", Msg: "invalid booking id"}
	case c.TransactionID == "":
		return PaymentResult{}, domain.ValidationError{Field: "transactionId", Msg: "required"}
	case c.Outcome != domain.PaymentCompleted && c.Outcome != domain.PaymentFailed:
		return PaymentResult{}, domain.ValidationError{Field: "status", Msg: "must be completed or failed"}
	}
	key := c.Key()

	for attempt := 1; ; attempt++ {
		seen, err := s.keyApplied(ctx, c.BookingID, key)
		if err != nil {
			return PaymentResult{}, err
		}
		if seen {
			s.Metrics.Confirmation(string(c.Outcome), true)
			return s.replayed(ctx, c.BookingID)
		}

		b, err := s.Store.Get(ctx, c.BookingID)
		if err != nil {
			return PaymentResult{}, err
		}
		next, entry, err := s.applyConfirmation(b, c, key)
		if isReplay(err) {
			s.Metrics.Confirmation(string(c.Outcome), true)
			return s.replayed(ctx, c.BookingID)
		}
		if err != nil {
			return PaymentResult{}, err
		}

		after, err := s.commit(ctx, "gateway_confirmation", events.TypePaymentUpdated, b, repositories.Mutation{
			Booking:         next,
			ExpectedVersion: b.Version,
			Ledger:          []models.LedgerEntry{entry},
		}, gatewayActor)
		switch {
		case err == nil:
			s.Metrics.Confirmation(string(c.Outcome), false)
			return PaymentResult{Booking: models.NewBookingView(after)}, nil
		case isReplay(err):
			// Lost a race on the key, or the same transaction was redelivered
			// under a new key.
			if _, err := s.keyApplied(ctx, c.BookingID, key); err != nil {
				return PaymentResult{}, err
			}
			s.Metrics.Confirmation(string(c.Outcome), true)
			return s.replayed(ctx, c.BookingID)
		case domain.IsConflict(err) && attempt < s.conflictRetries():
			s.log().Debug("confirmation lost version race, retrying", "booking_id", c.BookingID, "attempt", attempt)
			continue
		default:
			return PaymentResult{}, err
		}
	}
}

func onlineLegAmount(p models.PaymentState) domain.Money {
	if p.IsPartialPayment && p.PartialPaymentDetails != nil {
		return p.PartialPaymentDetails.OnlineAmount
	}
	return p.Amount
}

// applyConfirmation computes the booking after a confirmation. A failure
// never overrides a completed leg; a success after a failure counts as a
// successful retry. The transaction that settled the leg is never credited
// twice: redelivered under another key it is a replay, and a different
// transaction settling the same leg is recorded as a duplicate.
func (s PaymentService) applyConfirmation(b models.Booking, c GatewayConfirmation, key string) (models.Booking, models.LedgerEntry, error) {
	if !b.Payment.HasOnlineLeg() {
		return models.Booking{}, models.LedgerEntry{}, domain.StateError{Op: "gateway confirmation", Msg: "booking has no online payment leg"}
	}
	amount := onlineLegAmount(b.Payment)
	if c.Amount != 0 && c.Amount != amount {
		return models.Booking{}, models.LedgerEntry{}, domain.AmountMismatchError{Expected: amount, Got: c.Amount}
	}

	now := s.now()
	next := b.Clone()
	p := &next.Payment
	current := p.OnlineLegStatus()
	leg := models.LegFull
	if p.IsPartialPayment {
		leg = models.LegOnline
	}

	if current == domain.PaymentCompleted && c.Outcome == domain.PaymentCompleted {
		if c.TransactionID == onlineTransactionID(b.Payment) {
			return models.Booking{}, models.LedgerEntry{}, domain.ErrIdempotentReplay
		}
		p.DuplicateAmount += amount
		return next, models.LedgerEntry{
			Leg:            leg,
			Kind:           models.KindDuplicateSettlement,
			Outcome:        string(c.Outcome),
			Amount:         amount,
			Reference:      c.TransactionID,
			IdempotencyKey: key,
			Actor:          gatewayActor.ID,
			CreatedAt:      now,
		}, nil
	}

	settledNow := c.Outcome == domain.PaymentCompleted && current != domain.PaymentCompleted

	if current != domain.PaymentCompleted {
		if p.IsPartialPayment {
			p.PartialPaymentDetails.OnlinePaymentStatus = c.Outcome
			p.PartialPaymentDetails.OnlinePaymentID = c.TransactionID
			p.Status = models.OverallPaymentStatus(*p)
		} else {
			p.Status = c.Outcome
		}
		p.TransactionID = c.TransactionID
	}
	if models.OverallPaymentStatus(*p) == domain.PaymentCompleted && p.SettledAt == nil {
		p.SettledAt = &now
	}

	// Money arriving after cancellation is refundable; once a refund is under
	// way it is flagged instead of silently absorbed.
	if settledNow && next.Status == domain.StatusCancelled && next.Cancellation != nil {
		if next.Cancellation.RefundStatus == domain.RefundPending {
			next.Cancellation.RefundAmount += amount
		} else {
			next.Cancellation.UnrefundedAmount += amount
		}
	}

	entry := models.LedgerEntry{
		Leg:            leg,
		Kind:           models.KindConfirmation,
		Outcome:        string(c.Outcome),
		Amount:         amount,
		Reference:      c.TransactionID,
		IdempotencyKey: key,
		Actor:          gatewayActor.ID,
		CreatedAt:      now,
	}
	return next, entry, nil
}

// onlineTransactionID is the transaction recorded on the online leg.
func onlineTransactionID(p models.PaymentState) string {
	if p.IsPartialPayment && p.PartialPaymentDetails != nil && p.PartialPaymentDetails.OnlinePaymentID != "" {
		return p.PartialPaymentDetails.OnlinePaymentID
	}
	return p.TransactionID
}

func (s PaymentService) replayed(ctx context.Context, id int64) (PaymentResult, error) {
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return PaymentResult{}, err
	}
	s.log().Info("idempotent replay", "booking_id", id, "request_id", s.RequestID)
	return PaymentResult{Booking: models.NewBookingView(b), Replayed: true}, nil
}

// MarkCashCollected settles the cash leg, either the cash half of a split or
// a booking paid fully in cash. Repeating a call with the same idempotency
// key is a replay; collecting an already collected leg without one is a
// state error.
func (s PaymentService) MarkCashCollected(ctx context.Context, id int64, in CashCollection) (PaymentResult, error) {
	if err := in.Actor.Validate(); err != nil {
		return PaymentResult{}, err
	}
	if in.Actor.Role != domain.RoleDriver && in.Actor.Role != domain.RoleAdmin {
		return PaymentResult{}, domain.ForbiddenError{Role: in.Actor.Role, Op: "collect cash"}
	}
	if strings.TrimSpace(in.CollectedBy) == "" {
		in.CollectedBy = in.Actor.ID
	}
	if in.CollectedByModel == "" {
		in.CollectedByModel = in.Actor.Role
	}
	if in.CollectedByModel != domain.RoleDriver && in.CollectedByModel != domain.RoleAdmin {
		return PaymentResult{}, domain.ValidationError{Field: "collectedByModel", Msg: "must be Driver or Admin"}
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		seen, err := s.keyApplied(ctx, id, key)
		if err != nil {
			return PaymentResult{}, err
		}
		if seen {
			return s.replayed(ctx, id)
		}
	}
	ledgerKey := key
	if ledgerKey == "" {
		ledgerKey = fmt.Sprintf("cash:%d", id)
	}

	b, err := s.load(ctx, id, in.ExpectedVersion)
	if err != nil {
		return PaymentResult{}, err
	}
	if b.Status == domain.StatusCancelled {
		return PaymentResult{}, domain.StateError{Op: "collect cash", Msg: "booking is cancelled"}
	}
	if !b.Payment.HasCashLeg() {
		return PaymentResult{}, domain.StateError{Op: "collect cash", Msg: "booking has no cash leg"}
	}
	if b.Payment.CashLegStatus() != domain.CashPending {
		return PaymentResult{}, domain.StateError{Op: "collect cash", Msg: "cash leg already " + string(b.Payment.CashLegStatus())}
	}

	now := s.now()
	next := b.Clone()
	p := &next.Payment
	amount := p.Amount
	if p.IsPartialPayment {
		d := p.PartialPaymentDetails
		amount = d.CashAmount
		d.CashPaymentStatus = domain.CashCollected
		d.CashCollectedAt = &now
		d.CashCollectedBy = in.CollectedBy
		d.CashCollectedByModel = in.CollectedByModel
		p.Status = models.OverallPaymentStatus(*p)
	} else {
		p.Status = domain.PaymentCompleted
		p.CollectedBy = in.CollectedBy
		p.CollectedByModel = in.CollectedByModel
	}
	if models.OverallPaymentStatus(*p) == domain.PaymentCompleted && p.SettledAt == nil {
		p.SettledAt = &now
	}

	after, err := s.commit(ctx, "cash_collected", events.TypePaymentUpdated, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Ledger: []models.LedgerEntry{{
			Leg:            models.LegCash,
			Kind:           models.KindCashCollected,
			Outcome:        string(domain.CashCollected),
			Amount:         amount,
			IdempotencyKey: ledgerKey,
			Actor:          in.CollectedBy,
			CreatedAt:      now,
		}},
	}, in.Actor)
	if isReplay(err) {
		if key == "" {
			return PaymentResult{}, domain.StateError{Op: "collect cash", Msg: "cash leg already collected"}
		}
		if _, err := s.keyApplied(ctx, id, key); err != nil {
			return PaymentResult{}, err
		}
		return s.replayed(ctx, id)
	}
	if err != nil {
		return PaymentResult{}, err
	}
	s.Metrics.CashCollected()
	return PaymentResult{Booking: models.NewBookingView(after)}, nil
}

// Ledger lists every payment and refund entry of a booking with its balance.
func (s PaymentService) Ledger(ctx context.Context, id int64) (LedgerStatement, error) {
	if _, err := s.Store.Get(ctx, id); err != nil {
		return LedgerStatement{}, err
	}
	entries, err := s.Store.Ledger(ctx, id)
	if err != nil {
		return LedgerStatement{}, err
	}
	return LedgerStatement{BookingID: id, Entries: entries, Balance: models.LedgerBalance(entries)}, nil
}
