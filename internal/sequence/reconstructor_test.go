package sequence

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/internal/orders"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func testSeries(total *int) snapshot.Series {
	return snapshot.Series{ID: seriesID, Name: "Book Club", Sequential: true, TotalInstallments: total}
}

func testSnapshot() *snapshot.Snapshot {
	other := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	aliases := []snapshot.Alias{}
	for seq := 1; seq <= 12; seq++ {
		aliases = append(aliases, snapshot.Alias{Key: fmt.Sprintf("BOX-%02d", seq), Target: snapshot.Target{SeriesID: seriesID, Sequence: seq}})
	}
	aliases = append(aliases, snapshot.Alias{Key: "KIDS-1", Target: snapshot.Target{SeriesID: other, Sequence: 1}})

	return snapshot.New(uuid.New(), []snapshot.Series{testSeries(nil), {ID: other, Name: "Kids"}}, aliases, []snapshot.VariationRule{
		{ProductName: "Tote Bag", SKU: "TOTE", Classification: domain.Addon},
		{ProductName: "QA Order", SKU: "QA", Classification: domain.Ignored},
	})
}


func order(id, number string, at time.Time, skus ...string) orders.Order {
	o := orders.Order{ID: id, OrderNumber: number, CreatedAt: at, FinancialStatus: "paid"}
	for _, sku := range skus {
		o.LineItems = append(o.LineItems, orders.LineItem{ProductName: "Item " + sku, SKU: sku, Quantity: 1})
	}
	return o
}

func day(d int) time.Time { return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d) }

func TestReconstructOrdersAndFilters(t *testing.T) {
	voided := order("o-void", "1009", day(40), "BOX-05")
	voided.FinancialStatus = "refunded"

	history := []orders.Order{
		order("o-3", "1003", day(60), "BOX-02", "TOTE"),
		order("o-1", "1001", day(0), "BOX-01", "QA"),
		order("o-2", "1002", day(30), "BOX-02", "BOX-02"),
		order("o-4", "1004", day(90), "KIDS-1", "UNKNOWN-SKU"),
		voided,
	}

	tl := Reconstruct(history, testSnapshot(), testSeries(nil))

	require.Len(t, tl.Events, 3)
	assert.Equal(t, []int{1, 2}, tl.Observed)
	assert.Equal(t, "o-1", tl.Events[0].OrderID)
	// Equal sequence numbers sort by delivery date.
	assert.Equal(t, "o-2", tl.Events[1].OrderID)
	assert.Equal(t, "o-3", tl.Events[2].OrderID)

	require.Len(t, tl.Missing, 1)
	assert.Equal(t, "UNKNOWN-SKU", tl.Missing[0].SKU)
	assert.Equal(t, 2, tl.MaxSequence())
}

func TestReconstructTieBreaksOnOrderNumber(t *testing.T) {
	same := day(10)
	history := []orders.Order{
		order("b", "10", same, "BOX-03"),
		order("a", "9", same, "BOX-03"),
	}
	tl := Reconstruct(history, testSnapshot(), testSeries(nil))
	require.Len(t, tl.Events, 2)
	assert.Equal(t, "9", tl.Events[0].OrderNumber, "numeric order numbers compare as numbers")
}

func TestReconstructIsDeterministic(t *testing.T) {
	history := []orders.Order{
		order("o-1", "1001", day(0), "BOX-01"),
		order("o-2", "1002", day(30), "BOX-02", "MYSTERY"),
		order("o-3", "1003", day(30), "BOX-02"),
		order("o-4", "1004", day(20), "BOX-04", "OTHER"),
		order("o-5", "1005", day(90), "BOX-03"),
	}
	snap := testSnapshot()
	want := Reconstruct(history, snap, testSeries(nil))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]orders.Order(nil), history...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Reconstruct(shuffled, snap, testSeries(nil)))
	}
}

func TestProposeNext(t *testing.T) {
	twelve := 12
	snap := testSnapshot()

	gap := Reconstruct([]orders.Order{
		order("o-1", "1", day(0), "BOX-01"),
		order("o-2", "2", day(30), "BOX-02"),
		order("o-4", "3", day(60), "BOX-04"),
	}, snap, testSeries(nil))
	assert.Equal(t, 5, ProposeNext(gap, testSeries(nil)))

	final := Reconstruct([]orders.Order{order("o-12", "12", day(330), "BOX-12")}, snap, testSeries(&twelve))
	assert.Equal(t, 12, ProposeNext(final, testSeries(&twelve)), "fixed-length series holds at the final installment")

	open := testSeries(&twelve)
	open.Sequential = false
	assert.Equal(t, 13, ProposeNext(final, open))

	empty := Reconstruct(nil, snap, testSeries(nil))
	assert.Equal(t, 1, ProposeNext(empty, testSeries(nil)))
	assert.Empty(t, empty.Events)
}
