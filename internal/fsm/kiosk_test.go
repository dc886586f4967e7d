package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 全链路场景测试：四台状态机 + 模拟驱动，对应真实售货亭的完整销售周期。

const (
	product1       = "espresso"
	product2       = "americano"
	invalidProduct = "no_such_product"
)

var testProducts = map[string]int64{
	product1: 10,
	product2: 100,
}

type kioskFixture struct {
	changerDrv   *mockChanger
	validatorDrv *mockValidator
	plc          *mockPLC
	timer        *stubTimer
	changer      *ChangerFSM
	validator    *ValidatorFSM
	cash         *CashFSM
	kiosk        *KioskFSM
	rec          *kioskRecorder
}

func newKioskFixture() *kioskFixture {
	f := &kioskFixture{
		changerDrv:   newMockChanger(),
		validatorDrv: &mockValidator{},
		plc:          &mockPLC{},
		timer:        &stubTimer{},
	}
	log := testLogger()
	f.changer = NewChangerFSM(f.changerDrv, log)
	f.validator = NewValidatorFSM(f.validatorDrv, log)
	f.cash = NewCashFSM(f.changer, f.validator, f.timer, log)
	f.kiosk = NewKioskFSM(f.cash, f.plc, testProducts, log)
	f.rec = &kioskRecorder{}
	f.kiosk.SetListener(f.rec)
	return f
}

// setReady 启动并把设备带到就绪
func (f *kioskFixture) setReady() {
	f.kiosk.Start()
	f.changer.Online()
	f.changer.Initialized()
	f.validator.Online()
	f.validator.Initialized()
}

func (f *kioskFixture) reset() {
	f.changerDrv.reset()
	f.validatorDrv.reset()
	f.plc.prepared = nil
	f.rec.events = nil
}

// 启动后两台设备就绪，售货亭进入可售状态
func TestKioskReadyState(t *testing.T) {
	f := newKioskFixture()
	f.setReady()

	assert.Equal(t, KioskReady, f.kiosk.State())
	assert.Equal(t, []string{"ready"}, f.rec.names())
}

// 选择商品触发收款
func TestKioskSelectProduct(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	assert.Equal(t, KioskStartSell, f.kiosk.State())
	assert.Equal(t, CashAcceptAmount, f.cash.State())
	assert.Contains(t, f.changerDrv.calls, "start_accept")
	assert.Equal(t, 1, f.validatorDrv.count("start_accept"))
}

// 未知商品立即复位，不改变状态
func TestKioskSelectInvalidProduct(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(invalidProduct)
	assert.Equal(t, KioskReady, f.kiosk.State())
	assert.Equal(t, CashReady, f.cash.State())
	assert.Equal(t, []string{"reset_sell"}, f.rec.names())
}

// 完整销售：投够硬币 → 制备成功 → 找零 → 回到可售
func TestKioskFullSaleWithChange(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1) // 价格 10
	f.changer.CoinIn(4)
	f.changer.StartAccept()
	f.changer.CoinIn(8)

	// 收款完成，进入制备
	assert.Equal(t, KioskStartPrepare, f.kiosk.State())
	require.Equal(t, []string{product1}, f.plc.prepared)

	f.kiosk.Prepared()
	assert.Equal(t, KioskStartDispense, f.kiosk.State())
	// 找零 12 - 10 = 2
	require.Equal(t, []int64{2}, f.changerDrv.dispensed)

	f.changer.CoinOut(2)
	assert.Equal(t, KioskReady, f.kiosk.State())
	assert.Empty(t, f.rec.names())
}

// 恰好付清：找零 0，出币立即完成
func TestKioskFullSaleExactAmount(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	f.changer.CoinIn(10)
	assert.Equal(t, KioskStartPrepare, f.kiosk.State())

	f.kiosk.Prepared()
	// 找零 0 无需等 coin_out
	assert.Equal(t, KioskReady, f.kiosk.State())
	require.Equal(t, []int64{0}, f.changerDrv.dispensed)
}

// 纸币参与付款：找零器确认可出币后放行
func TestKioskSaleWithBill(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product2) // 价格 100
	f.changer.CoinIn(4)
	f.validator.CheckBill(100)

	assert.Equal(t, KioskStartPrepare, f.kiosk.State())
	assert.Equal(t, int64(104), f.cash.AcceptedAmount())
	assert.Equal(t, 1, f.validatorDrv.count("stack_bill"))

	f.kiosk.Prepared()
	require.Equal(t, []int64{4}, f.changerDrv.dispensed)
	f.changer.CoinOut(5) // 面额粒度超吐
	assert.Equal(t, KioskReady, f.kiosk.State())
}

// 收款超时：退回已收，销售复位
func TestKioskAcceptTimeout(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	f.changer.CoinIn(4)
	f.cash.AcceptTimeout()

	assert.Equal(t, KioskReady, f.kiosk.State())
	require.Equal(t, []int64{4}, f.changerDrv.dispensed)
	assert.Equal(t, []string{"reset_sell"}, f.rec.names())
}

// 制备失败：商品没做出来，全额退款
func TestKioskNotPreparedRefundsAll(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	f.changer.CoinIn(12)
	assert.Equal(t, KioskStartPrepare, f.kiosk.State())

	f.kiosk.NotPrepared()
	assert.Equal(t, KioskStartDispense, f.kiosk.State())
	require.Equal(t, []int64{12}, f.changerDrv.dispensed)

	f.changer.CoinOut(12)
	assert.Equal(t, KioskReady, f.kiosk.State())
}

// 收款中设备故障：停止收款，上报 error，售货亭停在故障态
func TestKioskDeviceFaultDuringSale(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	f.changer.CoinIn(4)
	f.changer.Error(12, "jam")

	assert.Equal(t, KioskError, f.kiosk.State())
	assert.Equal(t, CashError, f.cash.State())
	assert.Equal(t, 1, f.validatorDrv.count("stop_accept"))
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, recordedEvent{name: "error", code: 12, text: "jam"}, f.rec.events[0])

	// 故障态不再受理销售
	f.reset()
	f.kiosk.Sell(product1)
	assert.Equal(t, KioskError, f.kiosk.State())
	assert.Empty(t, f.rec.events)
}

// 操作端重启：故障恢复后回到可售状态
func TestKioskRestartAfterFault(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.kiosk.Sell(product1)
	f.changer.Error(12, "jam")
	require.Equal(t, KioskError, f.kiosk.State())
	f.reset()

	f.kiosk.Start()
	assert.Equal(t, KioskWaitReady, f.kiosk.State())

	f.changer.Offline()
	f.changer.Online()
	f.changer.Initialized()
	assert.Equal(t, KioskReady, f.kiosk.State())
	assert.Equal(t, []string{"ready"}, f.rec.names())

	// 恢复后可以正常销售
	f.reset()
	f.kiosk.Sell(product1)
	assert.Equal(t, KioskStartSell, f.kiosk.State())
}

// 出币中继续投币：accepted 重复上报不会重复触发制备
func TestKioskExtraCoinDoesNotPrepareTwice(t *testing.T) {
	f := newKioskFixture()
	f.setReady()
	f.reset()

	f.kiosk.Sell(product1)
	f.changer.CoinIn(10)
	require.Equal(t, []string{product1}, f.plc.prepared)

	// 付清后又塞进来一枚
	f.cash.CoinIn(5)
	assert.Equal(t, []string{product1}, f.plc.prepared)
	assert.Equal(t, KioskStartPrepare, f.kiosk.State())

	f.kiosk.Prepared()
	// 找零 15 - 10 = 5
	require.Equal(t, []int64{5}, f.changerDrv.dispensed)
}
