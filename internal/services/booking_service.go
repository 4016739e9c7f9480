package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/events"
	"bookingcore/internal/repositories"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BookingService owns booking creation, reads and plain status transitions.
type BookingService struct {
	Deps
}

func NewBookingService(d Deps) BookingService { return BookingService{Deps: d} }

type CreateBookingInput struct {
	CustomerID  string       `json:"customerId" validate:"required,max=64"`
	DriverID    string       `json:"driverId" validate:"omitempty,max=64"`
	Category    string       `json:"category" validate:"required,oneof=auto car bus"`
	TripType    string       `json:"tripType" validate:"required,max=32"`
	DistanceKm  float64      `json:"distance" validate:"gt=0"`
	RatePerKm   domain.Money `json:"ratePerKm" validate:"gte=0"`
	TotalAmount domain.Money `json:"totalAmount" validate:"gt=0"`
}

// validationError turns the first validator failure into a ValidationError.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		f := ve[0]
		return domain.ValidationError{Field: f.Field(), Msg: fmt.Sprintf("failed %q check", f.Tag())}
	}
	return domain.ValidationError{Msg: err.Error()}
}

func (s BookingService) bookingNumber() string {
	return fmt.Sprintf("BK-%s-%s", s.now().Format("20060102"), s.shortID(10))
}

// CreateBooking stores a pending booking with its pricing snapshot and the
// first audit entry.
func (s BookingService) CreateBooking(ctx context.Context, in CreateBookingInput, actor domain.Actor) (models.BookingView, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.DriverID = strings.TrimSpace(in.DriverID)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.TripType = strings.TrimSpace(in.TripType)
	if err := validate.Struct(in); err != nil {
		return models.BookingView{}, validationError(err)
	}
	if err := actor.Validate(); err != nil {
		return models.BookingView{}, err
	}
	category, err := models.ParseVehicleCategory(in.Category)
	if err != nil {
		return models.BookingView{}, err
	}

	b := models.Booking{
		BookingNumber: s.bookingNumber(),
		Status:        domain.StatusPending,
		CustomerID:    in.CustomerID,
		DriverID:      in.DriverID,
		Pricing: models.PricingSnapshot{
			RatePerKm:   in.RatePerKm,
			TotalAmount: in.TotalAmount,
			TripType:    in.TripType,
			DistanceKm:  in.DistanceKm,
			Category:    category,
		},
	}
	created, err := s.Store.Create(ctx, b, *s.auditEntry(domain.StatusPending, actor, "", "booking created"))
	if err != nil {
		return models.BookingView{}, err
	}
	s.afterWrite(ctx, "create", events.TypeBookingCreated, created, actor)
	return models.NewBookingView(created), nil
}

// GetBooking returns the projection, served from the cache when present.
func (s BookingService) GetBooking(ctx context.Context, id int64) (models.BookingView, error) {
	if id <= 0 {
		return models.BookingView{}, domain.ValidationError{Field: "id", Msg: "invalid booking id"}
	}
	if s.Cache != nil {
		if v, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
			return v, nil
		} else if err != nil {
			s.log().Warn("cache read failed", "booking_id", id, "error", err)
		}
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return models.BookingView{}, err
	}
	v := models.NewBookingView(b)
	if s.Cache != nil {
		if _, err := s.Cache.Set(ctx, v); err != nil {
			s.log().Warn("cache write failed", "booking_id", id, "error", err)
		}
	}
	return v, nil
}

func (s BookingService) ListBookings(ctx context.Context, q repositories.ListQuery) ([]models.BookingView, domain.Pagination, error) {
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, domain.Pagination{}, domain.ValidationError{Field: "from", Msg: "must be before to"}
	}
	q = q.Normalize()
	list, total, err := s.Store.Query(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	out := make([]models.BookingView, 0, len(list))
	for _, b := range list {
		out = append(out, models.NewBookingView(b))
	}
	return out, domain.Pagination{Page: q.Page, PageSize: q.Limit, Total: total}, nil
}

// History collects the audit trail of an existing booking, oldest first.
func (s BookingService) History(ctx context.Context, id int64) ([]models.AuditEntry, error) {
	if _, err := s.Store.Get(ctx, id); err != nil {
		return nil, err
	}
	out := []models.AuditEntry{}
	for e, err := range s.Audit.List(ctx, id) {
		if err != nil {
			return nil, domain.InternalError{Msg: "read audit trail", Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

type TransitionRequest struct {
	Target          domain.BookingStatus
	ExpectedVersion int64
	Actor           domain.Actor
	Reason          string
	Notes           string
	// RefundAmount only applies when the target is cancelled.
	RefundAmount *domain.Money
}

// RequestTransition moves a booking along one edge of the lifecycle.
// Cancellation targets go through the cancellation workflow so the record
// and refund bookkeeping are kept in step with the status.
func (s BookingService) RequestTransition(ctx context.Context, id int64, req TransitionRequest) (models.BookingView, error) {
	if !req.Target.Valid() {
		return models.BookingView{}, domain.ValidationError{Field: "status", Msg: "unknown status " + string(req.Target)}
	}
	b, err := s.load(ctx, id, req.ExpectedVersion)
	if err != nil {
		return models.BookingView{}, err
	}

	cancellations := CancellationService{Deps: s.Deps}
	switch req.Target {
	case domain.StatusCancellationRequested:
		return cancellations.request(ctx, b, req.Actor, req.Reason, req.Notes)
	case domain.StatusCancelled:
		if b.Status == domain.StatusCancellationRequested {
			return cancellations.approve(ctx, b, req.Actor, req.RefundAmount, req.Notes)
		}
		return cancellations.cancelDirect(ctx, b, req.Actor, req.Reason, req.Notes, req.RefundAmount)
	}

	if err := domain.CheckTransition(b.Status, req.Target, req.Actor, req.Reason); err != nil {
		return models.BookingView{}, err
	}
	next := b.Clone()
	next.Status = req.Target
	if req.Target == domain.StatusAccepted && req.Actor.Role == domain.RoleDriver && next.DriverID == "" {
		next.DriverID = req.Actor.ID
	}

	after, err := s.commit(ctx, "transition", events.TypeStatusChanged, b, repositories.Mutation{
		Booking:         next,
		ExpectedVersion: b.Version,
		Audit:           s.auditEntry(req.Target, req.Actor, req.Reason, req.Notes),
	}, req.Actor)
	if err != nil {
		return models.BookingView{}, err
	}
	return models.NewBookingView(after), nil
}
