package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/memory"
)

func newCatalog() *memory.Catalog {
	return memory.NewCatalog(
		domain.Product{ID: "apple", Name: "Apple", Price: decimal.NewFromInt(120), Stock: 10, Available: true},
		domain.Product{ID: "milk", Name: "Milk", Price: decimal.NewFromInt(60), Stock: 5, Available: true},
		domain.Product{ID: "bread", Name: "Bread", Price: decimal.NewFromInt(45), Stock: 1, Available: true},
	)
}

func stock(t *testing.T, c *memory.Catalog, id string) domain.Product {
	t.Helper()
	p, err := c.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestLedger_ReserveRejectsNonPositiveQuantity(t *testing.T) {
	ledger := inventory.NewLedger(newCatalog())

	_, err := ledger.Reserve(context.Background(), "apple", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = ledger.Release(context.Background(), "apple", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestLedger_SellToZeroFlipsAvailability(t *testing.T) {
	catalog := newCatalog()
	ledger := inventory.NewLedger(catalog)

	level, err := ledger.Reserve(context.Background(), "bread", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Stock)
	assert.False(t, level.Available)

	level, err = ledger.Release(context.Background(), "bread", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, level.Stock)
	assert.True(t, level.Available, "restore is on by default")
}

func TestLedger_ReleaseWithoutRestoreKeepsUnavailable(t *testing.T) {
	catalog := newCatalog()
	ledger := inventory.NewLedger(catalog, inventory.WithRestoreAvailability(false))

	_, err := ledger.Reserve(context.Background(), "bread", 1)
	require.NoError(t, err)
	level, err := ledger.Release(context.Background(), "bread", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, level.Stock)
	assert.False(t, level.Available)
}

func TestLedger_ReserveAllAtomicCompensatesInReverse(t *testing.T) {
	catalog := newCatalog()
	reg := prometheus.NewRegistry()
	ledger := inventory.NewLedger(catalog, inventory.WithMetrics(metrics.NewOrderMetricsWithRegisterer(reg)))

	reservation, err := ledger.ReserveAll(context.Background(), []domain.StockRequest{
		{ProductID: "apple", Quantity: 3},
		{ProductID: "milk", Quantity: 2},
		{ProductID: "bread", Quantity: 5, ProductName: "Bread"},
	})

	var oos *domain.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 5, oos.Requested)
	assert.Equal(t, 1, oos.Available)
	assert.Empty(t, reservation.Lines)

	assert.Equal(t, 10, stock(t, catalog, "apple").Stock)
	assert.Equal(t, 5, stock(t, catalog, "milk").Stock)
	assert.Equal(t, 1, stock(t, catalog, "bread").Stock)
}

func TestLedger_ReserveAllPartialKeepsEarlierLines(t *testing.T) {
	catalog := newCatalog()
	ledger := inventory.NewLedger(catalog, inventory.WithMode(inventory.ModePartial))

	reservation, err := ledger.ReserveAll(context.Background(), []domain.StockRequest{
		{ProductID: "apple", Quantity: 3},
		{ProductID: "bread", Quantity: 5},
	})

	var partial *inventory.PartialReservationError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	require.Len(t, reservation.Lines, 1)
	assert.Equal(t, "apple", reservation.Lines[0].ProductID)
	assert.Equal(t, 7, stock(t, catalog, "apple").Stock)

	require.NoError(t, ledger.ReleaseAll(context.Background(), reservation))
	assert.Equal(t, 10, stock(t, catalog, "apple").Stock)
}

func TestLedger_ReleaseAllSkipsMissingProduct(t *testing.T) {
	catalog := newCatalog()
	ledger := inventory.NewLedger(catalog)

	err := ledger.ReleaseAll(context.Background(), inventory.Reservation{Lines: []domain.StockRequest{
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "milk", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, 6, stock(t, catalog, "milk").Stock)
}

func TestLedger_ReserveUnknownProduct(t *testing.T) {
	_, err := inventory.NewLedger(newCatalog()).Reserve(context.Background(), "ghost", 1)
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	catalog := memory.NewCatalog(domain.Product{ID: "tea", Name: "Tea", Stock: 5, Available: true})
	ledger := inventory.NewLedger(catalog)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(context.Background(), "tea", 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	p := stock(t, catalog, "tea")
	assert.Equal(t, 0, p.Stock)
	assert.False(t, p.Available)
}

func TestParseMode(t *testing.T) {
	mode, err := inventory.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, inventory.ModeAtomic, mode)

	mode, err = inventory.ParseMode("partial")
	require.NoError(t, err)
	assert.Equal(t, inventory.ModePartial, mode)

	_, err = inventory.ParseMode("eventual")
	assert.Error(t, err)
}
