package kiosk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/errors"
	"github.com/wfunc/cash-kiosk/internal/hardware"
	"github.com/wfunc/cash-kiosk/internal/models"
)

func testConfig(timeout time.Duration) *config.Config {
	return &config.Config{
		Kiosk: config.KioskConfig{
			Products:      map[string]int64{"coffee": 10, "water": 5},
			CoinValues:    []int64{1, 2, 5, 10},
			BillValues:    []int64{50, 100},
			AcceptTimeout: timeout,
		},
		Serial: config.SerialConfig{MockMode: true},
	}
}

type runtimeFixture struct {
	rt        *Runtime
	changer   *hardware.MockChanger
	validator *hardware.MockValidator
	plc       *hardware.MockPLC
	events    <-chan Event
	cancel    func()
}

func newRuntimeFixture(t *testing.T, timeout time.Duration) *runtimeFixture {
	cfg := testConfig(timeout)
	devices := BuildDevices(cfg)

	f := &runtimeFixture{
		rt:        NewRuntime(cfg, devices, nil),
		changer:   devices.Changer.(*hardware.MockChanger),
		validator: devices.Validator.(*hardware.MockValidator),
		plc:       devices.PLC.(*hardware.MockPLC),
	}
	f.events, f.cancel = f.rt.Subscribe()

	require.NoError(t, f.rt.Start())
	t.Cleanup(func() {
		f.cancel()
		f.rt.Stop()
	})

	f.waitState(t, "ready")
	return f
}

// waitState 等待销售层到达指定状态
func (f *runtimeFixture) waitState(t *testing.T, state string) {
	require.Eventually(t, func() bool {
		return f.rt.Status().KioskState == state
	}, 2*time.Second, 5*time.Millisecond, "期望状态 %s，实际 %s", state, f.rt.Status().KioskState)
}

// drainEvents 收集到目前为止已发布的事件类型
func (f *runtimeFixture) drainEvents() []models.CashEventType {
	var types []models.CashEventType
	for {
		select {
		case e := <-f.events:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

// waitType 等待某一事件类型被发布，返回到目前为止收到的全部事件类型
func (f *runtimeFixture) waitType(t *testing.T, want models.CashEventType) []models.CashEventType {
	var types []models.CashEventType
	require.Eventually(t, func() bool {
		types = append(types, f.drainEvents()...)
		return containsType(types, want)
	}, 2*time.Second, 5*time.Millisecond, "期望事件 %s", want)
	return types
}

func containsType(types []models.CashEventType, want models.CashEventType) bool {
	for _, tp := range types {
		if tp == want {
			return true
		}
	}
	return false
}

func TestRuntimeStartsReady(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	snap := f.rt.Status()
	assert.Equal(t, "ready", snap.KioskState)
	assert.Equal(t, "ready", snap.CashState)
	assert.Equal(t, "ready", snap.ChangerState)
	assert.Equal(t, "ready", snap.ValidatorState)
	assert.Empty(t, snap.SaleID)
}

func TestRuntimeSellUnknownProduct(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	_, err := f.rt.Sell("tea")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownProduct))
}

func TestRuntimeSellExactCoin(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	saleID, err := f.rt.Sell("coffee")
	require.NoError(t, err)
	assert.NotEmpty(t, saleID)

	// 投入一枚面额10的硬币（面额码3），正好付清
	f.changer.SimulateCoinIn(3)
	f.waitState(t, "ready")

	types := f.drainEvents()
	assert.True(t, containsType(types, models.CashEventSaleStart))
	assert.True(t, containsType(types, models.CashEventCoinIn))
	assert.True(t, containsType(types, models.CashEventAmountAccepted))
	assert.True(t, containsType(types, models.CashEventAmountDispensed))

	assert.Empty(t, f.rt.Status().SaleID)
}

func TestRuntimeSellBillWithChange(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	_, err := f.rt.Sell("coffee")
	require.NoError(t, err)

	// 塞入一张面额50的纸币（面额码0），需找零40
	f.validator.SimulateBillIn(0)
	f.waitState(t, "ready")

	types := f.drainEvents()
	assert.True(t, containsType(types, models.CashEventBillIn))
	assert.True(t, containsType(types, models.CashEventAmountAccepted))
	assert.True(t, containsType(types, models.CashEventAmountDispensed))
}

func TestRuntimeSellInProgress(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	_, err := f.rt.Sell("coffee")
	require.NoError(t, err)

	_, err = f.rt.Sell("water")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSaleInProgress))
}

func TestRuntimeAcceptTimeoutRefunds(t *testing.T) {
	f := newRuntimeFixture(t, 100*time.Millisecond)

	_, err := f.rt.Sell("coffee")
	require.NoError(t, err)

	// 只投5，不足10，等待收款窗口超时
	f.changer.SimulateCoinIn(2)
	f.waitState(t, "ready")

	types := f.drainEvents()
	assert.True(t, containsType(types, models.CashEventAmountUnpaid))
	assert.True(t, containsType(types, models.CashEventSaleReset))
}

func TestRuntimePrepareFailureRefundsAll(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	f.plc.FailNext()
	_, err := f.rt.Sell("coffee")
	require.NoError(t, err)

	f.changer.SimulateCoinIn(3)
	f.waitState(t, "ready")

	types := f.drainEvents()
	// 制备失败走全额退款，最终仍有一次出币完成事件
	assert.True(t, containsType(types, models.CashEventNotPrepared))
	assert.True(t, containsType(types, models.CashEventDispenseStart))
	assert.True(t, containsType(types, models.CashEventAmountDispensed))
}

func TestRuntimeBillRejectedWithoutSale(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	// 没有进行中的销售时塞入纸币（面额码0，50），被自动退回
	f.validator.SimulateBillIn(0)

	types := f.waitType(t, models.CashEventBillRejected)
	assert.False(t, containsType(types, models.CashEventBillIn))
	assert.Equal(t, "ready", f.rt.Status().KioskState)
}

func TestRuntimeCoinReturnedWithoutSale(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	// 没有进行中的销售时投币（面额码2，5），原路退回
	f.changer.SimulateCoinIn(2)

	types := f.waitType(t, models.CashEventCoinReturned)
	assert.True(t, containsType(types, models.CashEventCoinIn))
	assert.True(t, containsType(types, models.CashEventDispenseStart))
	assert.Equal(t, "ready", f.rt.Status().KioskState)
}

func TestRuntimeSaleJournalsPreparation(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	_, err := f.rt.Sell("water")
	require.NoError(t, err)

	// 投入一枚面额5的硬币（面额码2），正好付清
	f.changer.SimulateCoinIn(2)
	f.waitState(t, "ready")

	types := f.drainEvents()
	assert.True(t, containsType(types, models.CashEventPrepared))
	assert.True(t, containsType(types, models.CashEventDispenseStart))
	assert.True(t, containsType(types, models.CashEventAmountDispensed))
	assert.False(t, containsType(types, models.CashEventCoinReturned))
}

func TestRuntimeDeviceFaultAndRestart(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	f.changer.SimulateFault(hardware.FaultCoinJam)
	f.waitState(t, "error")

	types := f.drainEvents()
	assert.True(t, containsType(types, models.CashEventDeviceError))

	// 故障中禁止销售
	_, err := f.rt.Sell("coffee")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrKioskNotReady))

	// 操作端重启后恢复可售
	require.NoError(t, f.rt.Restart())
	f.waitState(t, "ready")

	_, err = f.rt.Sell("water")
	require.NoError(t, err)
	f.changer.SimulateCoinIn(2)
	f.waitState(t, "ready")
}

func TestRuntimeRestartWhenReady(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	err := f.rt.Restart()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrKioskNotReady))
}

func TestRuntimeSubscribeCancel(t *testing.T) {
	f := newRuntimeFixture(t, 10*time.Second)

	ch, cancel := f.rt.Subscribe()
	cancel()
	// 重复取消不应panic
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestProductSlots(t *testing.T) {
	slots := productSlots(map[string]int64{"water": 5, "coffee": 10, "juice": 8})
	assert.Equal(t, byte(1), slots["coffee"])
	assert.Equal(t, byte(2), slots["juice"])
	assert.Equal(t, byte(3), slots["water"])
}
