package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Outcome describes what Reconcile did with the customer record.
type Outcome int

const (
	// Skipped means no record was touched.
	Skipped Outcome = iota
	// Incremented means an existing record gained one order.
	Incremented
	// Created means a new guest record was inserted with one order.
	Created
)

func (o Outcome) String() string {
	switch o {
	case Incremented:
		return "incremented"
	case Created:
		return "created"
	default:
		return "skipped"
	}
}

// Reconciler maps order contacts to customer records and keeps their order
// counters.
type Reconciler struct {
	repo        Repository
	guestDomain string
	now         func() time.Time
	newID       func() string
}

// NewReconciler creates a Reconciler. An empty guestDomain falls back to
// DefaultGuestDomain.
func NewReconciler(repo Repository, guestDomain string) *Reconciler {
	if guestDomain == "" {
		guestDomain = DefaultGuestDomain
	}
	return &Reconciler{
		repo:        repo,
		guestDomain: guestDomain,
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
}

// GuestDomain returns the domain used for synthesized guest emails.
func (r *Reconciler) GuestDomain() string { return r.guestDomain }

// ResolveIdentity computes the canonical owner of an order from the submitted
// email and user id. A sentinel guest token without a concrete email gets a
// synthesized address; a checkout without a registered user id is a guest
// checkout.
func (r *Reconciler) ResolveIdentity(email, userID string) Identity {
	email = NormalizeEmail(email)
	userID = strings.TrimSpace(userID)
	guestUser := isSentinel(NormalizeEmail(userID))

	if email == "" && guestUser {
		email = guestSentinel
	}
	synthesized := isSentinel(email)
	if synthesized {
		email = synthesizeGuestEmail(r.now(), r.guestDomain)
	}
	if email == "" {
		return Identity{UserID: userID, Guest: userID == ""}
	}

	guest := userID == "" || guestUser || IsGuestEmail(email, r.guestDomain)
	if guest {
		return Identity{Email: email, UserID: email, Guest: true, Synthesized: synthesized}
	}
	return Identity{Email: email, UserID: userID}
}

// Reconcile attributes one order to the identity's customer record.
//
// A registered record for the email always wins. Otherwise guests are
// incremented or created, and a lost creation race falls back to the
// increment. Registered identities without a record are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, id Identity, c Contact) (Outcome, error) {
	if id.Email == "" {
		return Skipped, nil
	}

	err := r.repo.IncrementRegistered(ctx, id.Email, c)
	switch {
	case err == nil:
		return Incremented, nil
	case !errors.Is(err, ErrNotFound):
		return Skipped, errors.Wrap(err, "increment registered customer")
	}
	if !id.Guest {
		return Skipped, nil
	}

	if out, err := r.incrementGuest(ctx, id.Email, c); err == nil || !errors.Is(err, ErrNotFound) {
		return out, err
	}

	now := r.now()
	err = r.repo.CreateGuest(ctx, &Customer{
		ID:        r.newID(),
		Email:     id.Email,
		Name:      c.Name,
		Phone:     c.Phone,
		City:      c.City,
		Address:   c.Address,
		Orders:    1,
		Guest:     true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	switch {
	case err == nil:
		return Created, nil
	case errors.Is(err, ErrDuplicate):
		// Another request created the record in between.
		return r.incrementGuest(ctx, id.Email, c)
	default:
		return Skipped, errors.Wrap(err, "create guest customer")
	}
}

func (r *Reconciler) incrementGuest(ctx context.Context, email string, c Contact) (Outcome, error) {
	if err := r.repo.IncrementGuest(ctx, email, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Skipped, err
		}
		return Skipped, errors.Wrap(err, "increment guest customer")
	}
	return Incremented, nil
}

// RecountResult reports how many counters a recount changed.
type RecountResult struct {
	Registered int64
	Guests     int64
}

// RecountOrders recomputes every order counter from stored orders. The two
// customer kinds are recounted concurrently.
func (r *Reconciler) RecountOrders(ctx context.Context) (RecountResult, error) {
	var res RecountResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.repo.RecountRegistered(gctx)
		if err != nil {
			return errors.Wrap(err, "recount registered")
		}
		res.Registered = n
		return nil
	})
	g.Go(func() error {
		n, err := r.repo.RecountGuests(gctx)
		if err != nil {
			return errors.Wrap(err, "recount guests")
		}
		res.Guests = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return RecountResult{}, err
	}
	return res, nil
}
