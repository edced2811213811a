package credits

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbontwin/ledger-backend/internal/events"
	"carbontwin/ledger-backend/internal/payments"
	"carbontwin/ledger-backend/pkg/workflows"
)

// Earliest vintage year the registry accepts.
const vintageEpochYear = 2000

// Config carries the registry's policy knobs.
type Config struct {
	// RetireWhenEmpty treats a lot whose amount reached zero as retired,
	// rejecting further trades on it.
	RetireWhenEmpty bool
}

// Service owns the authoritative credit registry state. All writes run
// under one mutex so trades, retirements and mints on the same lot never
// interleave. While a trade settles its escrow leg the mutex is released
// and the lots involved sit in the settling set: a payout hook that
// re-enters the trade or retire path for one of those lots is rejected,
// while operations on unrelated lots proceed normally.
type Service struct {
	mu       sync.Mutex
	settling map[int64]struct{}

	logger    *zap.Logger
	repo      Repository
	events    events.Publisher
	escrow    *payments.Escrow
	lifecycle *workflows.StateMachine
	now       func() time.Time
	cfg       Config

	nextID  int64
	credits map[int64]*CarbonCredit
	byOwner map[string]map[int64]struct{}
}

func NewService(repo Repository, escrow *payments.Escrow, pub events.Publisher, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		settling:  make(map[int64]struct{}),
		logger:    logger,
		repo:      repo,
		events:    pub,
		escrow:    escrow,
		lifecycle: workflows.NewCreditLifecycle(),
		now:       time.Now,
		cfg:       cfg,
		nextID:    1,
		credits:   make(map[int64]*CarbonCredit),
		byOwner:   make(map[string]map[int64]struct{}),
	}
}

// Restore reloads journaled lots at startup.
func (s *Service) Restore(credits []CarbonCredit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range credits {
		c := credits[i]
		s.credits[c.ID] = &c
		s.index(c.Owner, c.ID)
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
}

// MintCarbonCredit creates a new lot owned by the caller.
func (s *Service) MintCarbonCredit(ctx context.Context, caller string, amount, pricePerTon uint64, certificationHash, projectDetails string, vintage int, creditType string) (int64, error) {
	ct, err := ParseCreditType(creditType)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if vintage < vintageEpochYear || vintage > s.now().Year() {
		return 0, ErrInvalidVintage
	}

	credit := &CarbonCredit{
		ID:                s.nextID,
		Owner:             caller,
		Amount:            amount,
		PricePerTon:       pricePerTon,
		CertificationHash: certificationHash,
		ProjectDetails:    projectDetails,
		Vintage:           vintage,
		CreditType:        ct,
		Status:            StatusMinted,
		CreatedAt:         s.now().UTC(),
	}
	s.nextID++
	s.credits[credit.ID] = credit
	s.index(caller, credit.ID)

	if s.repo != nil {
		if err := s.repo.SaveCredit(ctx, credit); err != nil {
			s.logger.Error("failed to journal minted credit", zap.Int64("credit_id", credit.ID), zap.Error(err))
		}
	}
	s.publish(events.TypeCreditMinted, map[string]interface{}{
		"credit_id":   credit.ID,
		"owner":       caller,
		"amount":      amount,
		"vintage":     vintage,
		"credit_type": string(ct),
	})

	s.logger.Info("carbon credit minted",
		zap.Int64("credit_id", credit.ID),
		zap.String("owner", caller),
		zap.Uint64("amount", amount))
	return credit.ID, nil
}

// TradeCarbonCredit transfers amount tons of the lot to the buyer against
// the buyer's attached escrow payment. A full-amount trade reassigns the
// lot wholesale; a partial trade decrements the source lot and mints a
// fresh lot for the buyer. All registry state is mutated before any funds
// move, and the exact required total goes to the seller with the excess
// refunded to the buyer.
func (s *Service) TradeCarbonCredit(ctx context.Context, buyer string, creditID int64, amount, attachedPayment uint64) error {
	seller, required, newCreditID, err := s.executeTrade(ctx, buyer, creditID, amount, attachedPayment)
	if err != nil {
		return err
	}

	// Registry state is final and the mutex is released; only now does
	// money move. The VerifySettlement precondition inside executeTrade
	// makes a failure here an invariant violation, not a caller-visible
	// error, and a payout hook may freely operate on unrelated lots.
	if s.escrow != nil {
		if err := s.escrow.Settle(buyer, seller, attachedPayment, required); err != nil {
			s.logger.Error("escrow settlement failed after state mutation",
				zap.Int64("credit_id", creditID),
				zap.String("buyer", buyer),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	delete(s.settling, creditID)
	if newCreditID != 0 {
		delete(s.settling, newCreditID)
	}
	s.mu.Unlock()

	s.publish(events.TypeCreditTraded, map[string]interface{}{
		"credit_id":     creditID,
		"from":          seller,
		"to":            buyer,
		"amount":        amount,
		"total_price":   required,
		"new_credit_id": newCreditID,
	})

	s.logger.Info("carbon credit traded",
		zap.Int64("credit_id", creditID),
		zap.String("from", seller),
		zap.String("to", buyer),
		zap.Uint64("amount", amount),
		zap.Uint64("total_price", required))
	return nil
}

// executeTrade validates and applies the trade under the registry mutex,
// marking the lots involved as settling. The caller settles the escrow
// leg and clears the settling marks.
func (s *Service) executeTrade(ctx context.Context, buyer string, creditID int64, amount, attachedPayment uint64) (seller string, required uint64, newCreditID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, ok := s.credits[creditID]
	if !ok {
		return "", 0, 0, ErrCreditNotFound
	}
	if _, busy := s.settling[creditID]; busy {
		return "", 0, 0, ErrReentrantCall
	}
	if credit.Retired || !s.lifecycle.CanTransition(credit.Status, StatusTraded) {
		return "", 0, 0, ErrCreditRetired
	}
	if s.cfg.RetireWhenEmpty && credit.Amount == 0 {
		return "", 0, 0, ErrCreditRetired
	}
	if amount == 0 {
		return "", 0, 0, ErrInvalidAmount
	}
	if amount > credit.Amount {
		return "", 0, 0, ErrInsufficientAmount
	}
	// The true total exceeds what uint64 can carry, so no attached
	// payment can cover it.
	if credit.PricePerTon != 0 && amount > math.MaxUint64/credit.PricePerTon {
		return "", 0, 0, ErrInsufficientPayment
	}
	required = credit.PricePerTon * amount
	if attachedPayment < required {
		return "", 0, 0, ErrInsufficientPayment
	}
	if buyer == credit.Owner {
		return "", 0, 0, ErrSelfTrade
	}
	if s.escrow != nil {
		if verr := s.escrow.VerifySettlement(buyer, credit.Owner, attachedPayment, required); verr != nil {
			if errors.Is(verr, payments.ErrInsufficientFunds) {
				return "", 0, 0, ErrInsufficientPayment
			}
			return "", 0, 0, verr
		}
	}

	seller = credit.Owner

	if amount == credit.Amount {
		// Full trade: the lot moves wholesale.
		s.unindex(seller, credit.ID)
		credit.Owner = buyer
		credit.Status = StatusTraded
	} else {
		// Partial trade: split off a fresh lot for the buyer.
		credit.Amount -= amount
		credit.Status = StatusTraded

		split := &CarbonCredit{
			ID:                s.nextID,
			Owner:             buyer,
			Amount:            amount,
			PricePerTon:       credit.PricePerTon,
			CertificationHash: credit.CertificationHash,
			ProjectDetails:    credit.ProjectDetails,
			Vintage:           credit.Vintage,
			CreditType:        credit.CreditType,
			Status:            StatusTraded,
			CreatedAt:         s.now().UTC(),
		}
		s.nextID++
		s.credits[split.ID] = split
		s.index(buyer, split.ID)
		newCreditID = split.ID

		if s.repo != nil {
			if err := s.repo.SaveCredit(ctx, split); err != nil {
				s.logger.Error("failed to journal split credit", zap.Int64("credit_id", split.ID), zap.Error(err))
			}
		}
	}

	if s.repo != nil {
		if err := s.repo.UpdateCredit(ctx, credit); err != nil {
			s.logger.Error("failed to journal traded credit", zap.Int64("credit_id", credit.ID), zap.Error(err))
		}
	}

	s.settling[creditID] = struct{}{}
	if newCreditID != 0 {
		s.settling[newCreditID] = struct{}{}
	}
	return seller, required, newCreditID, nil
}

// RetireCarbonCredit permanently removes the lot from circulation. Only
// the current owner may retire, and retirement never reverses.
func (s *Service) RetireCarbonCredit(ctx context.Context, caller string, creditID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, ok := s.credits[creditID]
	if !ok {
		return ErrCreditNotFound
	}
	if _, busy := s.settling[creditID]; busy {
		return ErrReentrantCall
	}
	if credit.Retired || !s.lifecycle.CanTransition(credit.Status, StatusRetired) {
		return ErrCreditRetired
	}
	if credit.Owner != caller {
		return ErrNotOwner
	}

	credit.Retired = true
	credit.Status = StatusRetired

	if s.repo != nil {
		if err := s.repo.UpdateCredit(ctx, credit); err != nil {
			s.logger.Error("failed to journal retirement", zap.Int64("credit_id", creditID), zap.Error(err))
		}
	}
	s.publish(events.TypeCreditRetired, map[string]interface{}{
		"credit_id": creditID,
		"owner":     caller,
		"amount":    credit.Amount,
	})

	s.logger.Info("carbon credit retired",
		zap.Int64("credit_id", creditID),
		zap.String("owner", caller),
		zap.Uint64("amount", credit.Amount))
	return nil
}

// Credit returns a copy of the lot.
func (s *Service) Credit(id int64) (CarbonCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, ok := s.credits[id]
	if !ok {
		return CarbonCredit{}, ErrCreditNotFound
	}
	return *credit, nil
}

// CreditIDsByOwner returns the owner's lot ids in ascending order.
func (s *Service) CreditIDsByOwner(owner string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.byOwner[owner]))
	for id := range s.byOwner[owner] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListActive returns every non-retired lot, the marketplace read model.
func (s *Service) ListActive() []CarbonCredit {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]CarbonCredit, 0, len(s.credits))
	for _, credit := range s.credits {
		if !credit.Retired {
			active = append(active, *credit)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

func (s *Service) CreditCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.credits))
}

func (s *Service) index(owner string, id int64) {
	set, ok := s.byOwner[owner]
	if !ok {
		set = make(map[int64]struct{})
		s.byOwner[owner] = set
	}
	set[id] = struct{}{}
}

func (s *Service) unindex(owner string, id int64) {
	if set, ok := s.byOwner[owner]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byOwner, owner)
		}
	}
}

func (s *Service) publish(t events.Type, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(t, payload)
	}
}
