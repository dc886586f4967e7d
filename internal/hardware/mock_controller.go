package hardware

import (
	"fmt"
	"sync"

	"github.com/wfunc/cash-kiosk/internal/logger"
	"go.uber.org/zap"
)

// MockChanger 模拟硬币找零器（调试模式/测试用）。
// 投币通过 SimulateCoinIn 注入；出币立即按面额拆分并回调。
type MockChanger struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	table     DenominationTable
	inventory []uint16
	connected bool
	accepting bool

	onOnline      func()
	onOffline     func()
	onInitialized func()
	onCoinIn      func(amount int64)
	onCoinOut     func(amount int64)
	onError       func(code int, text string)
}

// NewMockChanger 创建模拟找零器，初始每个面额各50枚
func NewMockChanger(table DenominationTable) *MockChanger {
	inventory := make([]uint16, len(table))
	for i := range inventory {
		inventory[i] = 50
	}
	return &MockChanger{
		logger:    logger.GetModuleLogger("serial"),
		table:     table,
		inventory: inventory,
	}
}

// SetOnlineCallback 设置设备上线回调
func (m *MockChanger) SetOnlineCallback(fn func()) { m.onOnline = fn }

// SetOfflineCallback 设置设备离线回调
func (m *MockChanger) SetOfflineCallback(fn func()) { m.onOffline = fn }

// SetInitializedCallback 设置复位完成回调
func (m *MockChanger) SetInitializedCallback(fn func()) { m.onInitialized = fn }

// SetCoinInCallback 设置投币回调
func (m *MockChanger) SetCoinInCallback(fn func(amount int64)) { m.onCoinIn = fn }

// SetCoinOutCallback 设置出币回调
func (m *MockChanger) SetCoinOutCallback(fn func(amount int64)) { m.onCoinOut = fn }

// SetErrorCallback 设置故障回调
func (m *MockChanger) SetErrorCallback(fn func(code int, text string)) { m.onError = fn }

// StartDevice 模拟连接：立即上线并完成复位
func (m *MockChanger) StartDevice() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.logger.Info("模拟找零器已连接")
	if m.onOnline != nil {
		m.onOnline()
	}
	if m.onInitialized != nil {
		m.onInitialized()
	}
	return nil
}

// StopDevice 模拟断开
func (m *MockChanger) StopDevice() error {
	m.mu.Lock()
	m.connected = false
	m.accepting = false
	m.mu.Unlock()

	m.logger.Info("模拟找零器已断开")
	return nil
}

// StartAccept 开启投币
func (m *MockChanger) StartAccept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	m.accepting = true
	return nil
}

// StopAccept 关闭投币
func (m *MockChanger) StopAccept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepting = false
	return nil
}

// DispenseAmount 模拟出币：按库存贪心拆分并立即回调
func (m *MockChanger) DispenseAmount(amount int64) error {
	if amount <= 0 {
		return nil
	}

	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	plan, remaining := planPayout(m.table, m.inventory, amount)
	for _, item := range plan {
		m.inventory[item.code] -= uint16(item.count)
	}
	m.mu.Unlock()

	if remaining != 0 {
		m.logger.Warn("模拟找零器库存不足",
			zap.Int64("amount", amount),
			zap.Int64("remaining", remaining))
	}

	for _, item := range plan {
		for i := 0; i < item.count; i++ {
			if m.onCoinOut != nil {
				m.onCoinOut(item.value)
			}
		}
	}
	return nil
}

// StopDispense 模拟停止出币
func (m *MockChanger) StopDispense() error {
	return nil
}

// CanDispenseAmount 查询库存能否精确凑出金额
func (m *MockChanger) CanDispenseAmount(amount int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canPayout(m.table, m.inventory, amount)
}

// SimulateCoinIn 模拟投入一枚指定面额码的硬币
func (m *MockChanger) SimulateCoinIn(code byte) {
	value := m.table.Value(code)
	if value == 0 {
		m.logger.Warn("模拟投币：未知面额码", zap.Uint8("code", code))
		return
	}

	m.mu.Lock()
	if int(code) < len(m.inventory) {
		m.inventory[code]++
	}
	m.mu.Unlock()

	if m.onCoinIn != nil {
		m.onCoinIn(value)
	}
}

// SimulateFault 模拟设备故障
func (m *MockChanger) SimulateFault(code byte) {
	if m.onError != nil {
		m.onError(int(code), FaultText(code))
	}
}

// MockValidator 模拟纸币验钞器（调试模式/测试用）
type MockValidator struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	table     DenominationTable
	connected bool
	accepting bool
	escrowed  int64 // 暂存区纸币金额，0表示空

	onOnline      func()
	onOffline     func()
	onInitialized func()
	onBillEscrow  func(amount int64)
	onError       func(code int, text string)
}

// NewMockValidator 创建模拟验钞器
func NewMockValidator(table DenominationTable) *MockValidator {
	return &MockValidator{
		logger: logger.GetModuleLogger("serial"),
		table:  table,
	}
}

// SetOnlineCallback 设置设备上线回调
func (m *MockValidator) SetOnlineCallback(fn func()) { m.onOnline = fn }

// SetOfflineCallback 设置设备离线回调
func (m *MockValidator) SetOfflineCallback(fn func()) { m.onOffline = fn }

// SetInitializedCallback 设置复位完成回调
func (m *MockValidator) SetInitializedCallback(fn func()) { m.onInitialized = fn }

// SetBillEscrowCallback 设置纸币进入暂存区回调
func (m *MockValidator) SetBillEscrowCallback(fn func(amount int64)) { m.onBillEscrow = fn }

// SetErrorCallback 设置故障回调
func (m *MockValidator) SetErrorCallback(fn func(code int, text string)) { m.onError = fn }

// StartDevice 模拟连接：立即上线并完成复位
func (m *MockValidator) StartDevice() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.logger.Info("模拟验钞器已连接")
	if m.onOnline != nil {
		m.onOnline()
	}
	if m.onInitialized != nil {
		m.onInitialized()
	}
	return nil
}

// StopDevice 模拟断开
func (m *MockValidator) StopDevice() error {
	m.mu.Lock()
	m.connected = false
	m.accepting = false
	m.escrowed = 0
	m.mu.Unlock()

	m.logger.Info("模拟验钞器已断开")
	return nil
}

// StartAccept 开启收钞
func (m *MockValidator) StartAccept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	m.accepting = true
	return nil
}

// StopAccept 关闭收钞
func (m *MockValidator) StopAccept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepting = false
	return nil
}

// StackBill 收纳暂存纸币
func (m *MockValidator) StackBill() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.escrowed == 0 {
		return fmt.Errorf("escrow empty")
	}
	m.logger.Info("模拟收纳纸币", zap.Int64("amount", m.escrowed))
	m.escrowed = 0
	return nil
}

// ReturnBill 退回暂存纸币
func (m *MockValidator) ReturnBill() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.escrowed != 0 {
		m.logger.Info("模拟退回纸币", zap.Int64("amount", m.escrowed))
		m.escrowed = 0
	}
	return nil
}

// SimulateBillIn 模拟塞入一张指定面额码的纸币
func (m *MockValidator) SimulateBillIn(code byte) {
	value := m.table.Value(code)
	if value == 0 {
		m.logger.Warn("模拟塞钞：未知面额码", zap.Uint8("code", code))
		return
	}

	m.mu.Lock()
	if !m.accepting || m.escrowed != 0 {
		m.mu.Unlock()
		m.logger.Info("模拟验钞器未收钞，纸币被吐回")
		return
	}
	m.escrowed = value
	m.mu.Unlock()

	if m.onBillEscrow != nil {
		m.onBillEscrow(value)
	}
}

// SimulateFault 模拟设备故障
func (m *MockValidator) SimulateFault(code byte) {
	if m.onError != nil {
		m.onError(int(code), FaultText(code))
	}
}

// MockPLC 模拟商品制备单元（调试模式/测试用）
type MockPLC struct {
	mu       sync.Mutex
	logger   *zap.Logger
	failNext bool

	onPrepared    func()
	onNotPrepared func()
}

// NewMockPLC 创建模拟PLC
func NewMockPLC() *MockPLC {
	return &MockPLC{
		logger: logger.GetModuleLogger("serial"),
	}
}

// SetPreparedCallback 设置出货成功回调
func (m *MockPLC) SetPreparedCallback(fn func()) { m.onPrepared = fn }

// SetNotPreparedCallback 设置出货失败回调
func (m *MockPLC) SetNotPreparedCallback(fn func()) { m.onNotPrepared = fn }

// StartDevice 模拟连接
func (m *MockPLC) StartDevice() error {
	m.logger.Info("模拟PLC已连接")
	return nil
}

// StopDevice 模拟断开
func (m *MockPLC) StopDevice() error {
	m.logger.Info("模拟PLC已断开")
	return nil
}

// FailNext 让下一次出货失败
func (m *MockPLC) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// Prepare 模拟出货：立即回报结果
func (m *MockPLC) Prepare(product string) error {
	m.mu.Lock()
	fail := m.failNext
	m.failNext = false
	m.mu.Unlock()

	if fail {
		m.logger.Warn("模拟出货失败", zap.String("product", product))
		if m.onNotPrepared != nil {
			m.onNotPrepared()
		}
		return nil
	}

	m.logger.Info("模拟出货", zap.String("product", product))
	if m.onPrepared != nil {
		m.onPrepared()
	}
	return nil
}
