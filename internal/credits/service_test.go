package credits

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"carbontwin/ledger-backend/internal/payments"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveCredit(ctx context.Context, credit *CarbonCredit) error {
	args := m.Called(ctx, credit)
	return args.Error(0)
}

func (m *MockRepository) UpdateCredit(ctx context.Context, credit *CarbonCredit) error {
	args := m.Called(ctx, credit)
	return args.Error(0)
}

func (m *MockRepository) LoadCredits(ctx context.Context) ([]CarbonCredit, error) {
	args := m.Called(ctx)
	return args.Get(0).([]CarbonCredit), args.Error(1)
}

const (
	seller = "0xseller"
	buyer  = "0xbuyer"
)

func newTestService(escrow *payments.Escrow) *Service {
	svc := NewService(nil, escrow, nil, nil, Config{})
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func mintLot(t *testing.T, svc *Service, owner string, amount, price uint64) int64 {
	t.Helper()
	id, err := svc.MintCarbonCredit(context.Background(), owner, amount, price,
		"QmCert", "reforestation in the Andes", 2024, string(TypeForestConservation))
	assert.NoError(t, err)
	return id
}

func TestMintValidation(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.MintCarbonCredit(ctx, seller, 0, 10, "h", "d", 2024, string(TypeCarbonCapture))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.MintCarbonCredit(ctx, seller, 100, 10, "h", "d", 1999, string(TypeCarbonCapture))
	assert.ErrorIs(t, err, ErrInvalidVintage)

	_, err = svc.MintCarbonCredit(ctx, seller, 100, 10, "h", "d", 2027, string(TypeCarbonCapture))
	assert.ErrorIs(t, err, ErrInvalidVintage)

	_, err = svc.MintCarbonCredit(ctx, seller, 100, 10, "h", "d", 2024, "biochar")
	assert.ErrorIs(t, err, ErrInvalidCreditType)

	// Epoch year and current year are both inclusive.
	_, err = svc.MintCarbonCredit(ctx, seller, 100, 10, "h", "d", 2000, string(TypeCarbonCapture))
	assert.NoError(t, err)
	_, err = svc.MintCarbonCredit(ctx, seller, 100, 10, "h", "d", 2026, string(TypeCarbonCapture))
	assert.NoError(t, err)
}

func TestPartialTradeSplitsLot(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 100, 10)

	assert.NoError(t, svc.TradeCarbonCredit(ctx, buyer, id, 40, 400))

	source, _ := svc.Credit(id)
	assert.Equal(t, seller, source.Owner)
	assert.Equal(t, uint64(60), source.Amount)

	buyerIDs := svc.CreditIDsByOwner(buyer)
	assert.Len(t, buyerIDs, 1)
	assert.NotEqual(t, id, buyerIDs[0])

	split, _ := svc.Credit(buyerIDs[0])
	assert.Equal(t, uint64(40), split.Amount)
	assert.Equal(t, uint64(10), split.PricePerTon)
	assert.Equal(t, source.Vintage, split.Vintage)
	assert.Equal(t, source.CreditType, split.CreditType)
	assert.Equal(t, source.CertificationHash, split.CertificationHash)

	assert.Equal(t, uint64(400), escrow.Balance(seller))
	assert.Equal(t, uint64(600), escrow.Balance(buyer))
}

func TestFullTradeReassignsLot(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 50, 10)

	assert.NoError(t, svc.TradeCarbonCredit(ctx, buyer, id, 50, 500))

	credit, _ := svc.Credit(id)
	assert.Equal(t, buyer, credit.Owner)
	assert.Equal(t, uint64(50), credit.Amount)
	assert.Empty(t, svc.CreditIDsByOwner(seller))
	assert.Equal(t, []int64{id}, svc.CreditIDsByOwner(buyer))
	assert.Equal(t, int64(1), svc.CreditCount())
}

func TestTradeRefundsExcessPayment(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)

	id := mintLot(t, svc, seller, 100, 10)
	assert.NoError(t, svc.TradeCarbonCredit(context.Background(), buyer, id, 40, 405))

	assert.Equal(t, uint64(400), escrow.Balance(seller))
	assert.Equal(t, uint64(600), escrow.Balance(buyer))
}

func TestTradePreconditions(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 50)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 100, 10)

	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, 999, 10, 100), ErrCreditNotFound)
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 0, 100), ErrInvalidAmount)
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 101, 2000), ErrInsufficientAmount)
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 10, 99), ErrInsufficientPayment)
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, seller, id, 10, 100), ErrSelfTrade)
	// Declared payment exceeds the buyer's escrowed funds.
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 10, 100), ErrInsufficientPayment)

	credit, _ := svc.Credit(id)
	assert.Equal(t, seller, credit.Owner)
	assert.Equal(t, uint64(100), credit.Amount)
}

func TestRetirementIsTerminal(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 50, 10)
	assert.NoError(t, svc.RetireCarbonCredit(ctx, seller, id))

	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 10, 100), ErrCreditRetired)
	assert.ErrorIs(t, svc.RetireCarbonCredit(ctx, seller, id), ErrCreditRetired)

	credit, _ := svc.Credit(id)
	assert.True(t, credit.Retired)
	assert.Equal(t, seller, credit.Owner)
	assert.Equal(t, uint64(50), credit.Amount)
	assert.Equal(t, uint64(1000), escrow.Balance(buyer))
}

func TestRetireRequiresOwnership(t *testing.T) {
	svc := newTestService(nil)
	id := mintLot(t, svc, seller, 50, 10)

	assert.ErrorIs(t, svc.RetireCarbonCredit(context.Background(), buyer, id), ErrNotOwner)

	credit, _ := svc.Credit(id)
	assert.False(t, credit.Retired)
}

func TestConservationAcrossSplitChain(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 10000)
	escrow.Deposit("0xcarol", 10000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 100, 10)
	assert.NoError(t, svc.TradeCarbonCredit(ctx, buyer, id, 30, 300))
	assert.NoError(t, svc.TradeCarbonCredit(ctx, "0xcarol", id, 25, 250))
	buyerLot := svc.CreditIDsByOwner(buyer)[0]
	assert.NoError(t, svc.TradeCarbonCredit(ctx, "0xcarol", buyerLot, 10, 100))

	var total uint64
	for owner, want := range map[string]int{seller: 1, buyer: 1, "0xcarol": 2} {
		ids := svc.CreditIDsByOwner(owner)
		assert.Len(t, ids, want)
		for _, cid := range ids {
			credit, err := svc.Credit(cid)
			assert.NoError(t, err)
			total += credit.Amount
		}
	}
	assert.Equal(t, uint64(100), total)
}

func TestCreditIDsAreMonotonicAcrossFailures(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	first := mintLot(t, svc, seller, 10, 1)
	_, err := svc.MintCarbonCredit(ctx, seller, 0, 1, "h", "d", 2024, string(TypeCarbonCapture))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	second := mintLot(t, svc, seller, 10, 1)

	assert.Equal(t, first+1, second)
}

func TestReentrantTradeOnSettlingLotIsRejected(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	escrow.Deposit("0xcarol", 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 100, 10)

	var tradeErr, retireErr error
	escrow.RegisterPayoutHook(seller, func(account string, amount uint64) {
		// A malicious payee re-entering the lot mid-settlement must be
		// rejected, not deadlocked.
		tradeErr = svc.TradeCarbonCredit(ctx, "0xcarol", id, 10, 100)
		retireErr = svc.RetireCarbonCredit(ctx, seller, id)
	})

	assert.NoError(t, svc.TradeCarbonCredit(ctx, buyer, id, 10, 100))
	assert.ErrorIs(t, tradeErr, ErrReentrantCall)
	assert.ErrorIs(t, retireErr, ErrReentrantCall)

	source, _ := svc.Credit(id)
	assert.Equal(t, seller, source.Owner)
	assert.Equal(t, uint64(90), source.Amount)
	assert.False(t, source.Retired)
	assert.Empty(t, svc.CreditIDsByOwner("0xcarol"))
}

func TestPayoutHookMayOperateOnOtherLots(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	id := mintLot(t, svc, seller, 100, 10)
	other := mintLot(t, svc, seller, 100, 10)

	var retireErr error
	var mintErr error
	escrow.RegisterPayoutHook(seller, func(account string, amount uint64) {
		// Unrelated lots are not settling, so the hook works with them
		// like any other caller.
		retireErr = svc.RetireCarbonCredit(ctx, seller, other)
		_, mintErr = svc.MintCarbonCredit(ctx, seller, 5, 1, "h", "d", 2024, string(TypeCarbonCapture))
	})

	done := make(chan struct{})
	var tradeErr error
	go func() {
		tradeErr = svc.TradeCarbonCredit(ctx, buyer, id, 10, 100)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("trade did not complete while its payout hook used the registry")
	}

	assert.NoError(t, tradeErr)
	assert.NoError(t, retireErr)
	assert.NoError(t, mintErr)
	retired, _ := svc.Credit(other)
	assert.True(t, retired.Retired)
}

func TestConcurrentTradesOnDistinctLots(t *testing.T) {
	const lots = 50

	escrow := payments.NewEscrow()
	svc := newTestService(escrow)
	ctx := context.Background()

	ids := make([]int64, lots)
	buyers := make([]string, lots)
	for i := 0; i < lots; i++ {
		owner := fmt.Sprintf("0xseller%02d", i)
		buyers[i] = fmt.Sprintf("0xbuyer%02d", i)
		ids[i] = mintLot(t, svc, owner, 100, 10)
		assert.NoError(t, escrow.Deposit(buyers[i], 1000))
	}

	errs := make([]error, lots)
	var wg sync.WaitGroup
	for i := 0; i < lots; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.TradeCarbonCredit(ctx, buyers[i], ids[i], 10, 100)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "lot %d", ids[i])
	}
}

func TestTradeRejectsPriceOverflow(t *testing.T) {
	escrow := payments.NewEscrow()
	escrow.Deposit(buyer, 1000)
	svc := newTestService(escrow)
	ctx := context.Background()

	// 4 * 2^62 wraps uint64 to 0; the true total is unpayable.
	id := mintLot(t, svc, seller, 4, 1<<62)

	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 4, 0), ErrInsufficientPayment)
	assert.ErrorIs(t, svc.TradeCarbonCredit(ctx, buyer, id, 4, 1000), ErrInsufficientPayment)

	credit, _ := svc.Credit(id)
	assert.Equal(t, seller, credit.Owner)
	assert.Equal(t, uint64(4), credit.Amount)
	assert.Equal(t, uint64(1000), escrow.Balance(buyer))
}

func TestListActiveExcludesRetired(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	keep := mintLot(t, svc, seller, 10, 1)
	gone := mintLot(t, svc, seller, 20, 1)
	assert.NoError(t, svc.RetireCarbonCredit(ctx, seller, gone))

	active := svc.ListActive()
	assert.Len(t, active, 1)
	assert.Equal(t, keep, active[0].ID)
}

func TestMintJournaledToRepository(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveCredit", mock.Anything, mock.AnythingOfType("*credits.CarbonCredit")).Return(nil)

	svc := NewService(repo, nil, nil, nil, Config{})
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	_, err := svc.MintCarbonCredit(context.Background(), seller, 10, 1, "h", "d", 2024, string(TypeRenewableEnergy))
	assert.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestRestoreResumesIDSequence(t *testing.T) {
	svc := newTestService(nil)
	svc.Restore([]CarbonCredit{
		{ID: 3, Owner: seller, Amount: 10, Status: StatusMinted},
		{ID: 9, Owner: buyer, Amount: 5, Status: StatusTraded},
	})

	assert.Equal(t, []int64{3}, svc.CreditIDsByOwner(seller))
	id := mintLot(t, svc, seller, 10, 1)
	assert.Equal(t, int64(10), id)
}

func TestRetireWhenEmptyConfig(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, Config{RetireWhenEmpty: true})
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	svc.Restore([]CarbonCredit{{ID: 1, Owner: seller, Amount: 0, Status: StatusTraded}})

	err := svc.TradeCarbonCredit(context.Background(), buyer, 1, 0, 0)
	assert.ErrorIs(t, err, ErrCreditRetired)
}
