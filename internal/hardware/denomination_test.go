package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDenominationTableValue(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	assert.Equal(t, int64(1), table.Value(0))
	assert.Equal(t, int64(10), table.Value(3))
	assert.Equal(t, int64(0), table.Value(9))
}

func TestPlanPayoutExact(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	inventory := []uint16{10, 10, 10, 10}

	plan, remaining := planPayout(table, inventory, 18)
	assert.Equal(t, int64(0), remaining)

	var total int64
	for _, item := range plan {
		total += item.value * int64(item.count)
	}
	assert.Equal(t, int64(18), total)
	// 贪心从大面额开始：10 + 5 + 2 + 1
	assert.Equal(t, byte(3), plan[0].code)
	assert.Equal(t, 1, plan[0].count)
}

func TestPlanPayoutLimitedInventory(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	// 没有10面额，5只有1枚
	inventory := []uint16{20, 20, 1, 0}

	plan, remaining := planPayout(table, inventory, 13)
	assert.Equal(t, int64(0), remaining)

	var total int64
	for _, item := range plan {
		total += item.value * int64(item.count)
	}
	assert.Equal(t, int64(13), total)
}

func TestPlanPayoutShortfall(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	inventory := []uint16{1, 0, 0, 0}

	_, remaining := planPayout(table, inventory, 5)
	assert.Equal(t, int64(4), remaining)
}

func TestCanPayout(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}

	assert.True(t, canPayout(table, []uint16{10, 10, 10, 10}, 37))
	assert.False(t, canPayout(table, []uint16{0, 0, 0, 1}, 5))
	assert.True(t, canPayout(table, nil, 0))
	assert.True(t, canPayout(table, nil, -1))
	assert.False(t, canPayout(table, nil, 1))
}

func TestMockChangerDispense(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	mock := NewMockChanger(table)

	var dispensed []int64
	mock.SetCoinOutCallback(func(amount int64) {
		dispensed = append(dispensed, amount)
	})

	assert.NoError(t, mock.StartDevice())
	assert.NoError(t, mock.DispenseAmount(17))

	var total int64
	for _, v := range dispensed {
		total += v
	}
	assert.Equal(t, int64(17), total)
}

func TestMockChangerCoinIn(t *testing.T) {
	table := DenominationTable{1, 2, 5, 10}
	mock := NewMockChanger(table)

	var coins []int64
	mock.SetCoinInCallback(func(amount int64) {
		coins = append(coins, amount)
	})

	assert.NoError(t, mock.StartDevice())
	assert.NoError(t, mock.StartAccept())
	mock.SimulateCoinIn(2) // 面额码2 → 5
	mock.SimulateCoinIn(9) // 未知面额码，忽略

	assert.Equal(t, []int64{5}, coins)
}

func TestMockValidatorEscrow(t *testing.T) {
	table := DenominationTable{50, 100}
	mock := NewMockValidator(table)

	var bills []int64
	mock.SetBillEscrowCallback(func(amount int64) {
		bills = append(bills, amount)
	})

	assert.NoError(t, mock.StartDevice())

	// 未开启收钞时塞钞被吐回
	mock.SimulateBillIn(1)
	assert.Empty(t, bills)

	assert.NoError(t, mock.StartAccept())
	mock.SimulateBillIn(1)
	assert.Equal(t, []int64{100}, bills)

	// 暂存区占用时不再收钞
	mock.SimulateBillIn(0)
	assert.Len(t, bills, 1)

	assert.NoError(t, mock.StackBill())
	assert.Error(t, mock.StackBill())
}

func TestMockPLC(t *testing.T) {
	mock := NewMockPLC()

	prepared, failed := 0, 0
	mock.SetPreparedCallback(func() { prepared++ })
	mock.SetNotPreparedCallback(func() { failed++ })

	assert.NoError(t, mock.Prepare("coffee"))
	assert.Equal(t, 1, prepared)

	mock.FailNext()
	assert.NoError(t, mock.Prepare("coffee"))
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, prepared)
}
