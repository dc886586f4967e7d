package fsm

import (
	"go.uber.org/zap"
)

// ChangerState 找零器状态枚举
type ChangerState string

const (
	ChangerOffline    ChangerState = "offline"         // 离线
	ChangerOnline     ChangerState = "online"          // 在线（未初始化）
	ChangerError      ChangerState = "error"           // 故障
	ChangerReady      ChangerState = "ready"           // 就绪
	ChangerAccepting  ChangerState = "wait_coin"       // 收币中
	ChangerDispensing ChangerState = "dispense_amount" // 出币中
)

// ChangerListener 找零器事件观察者，订阅方固定为 CashFSM（或其代理）
type ChangerListener interface {
	ChangerOnline()
	ChangerOffline()
	ChangerInitialized()
	ChangerError(code int, text string)
	// CoinIn 收到一枚硬币
	CoinIn(amount int64)
	// AmountDispensed 一次出币结束，amount 为实际吐出的累计金额，
	// 受面额粒度影响可能大于请求值，提前停止时可能小于请求值
	AmountDispensed(amount int64)
}

// ChangerFSM 硬币找零器状态机。
// 独占管理设备的 在线/收币/出币 生命周期，出币期间维护剩余出币金额。
// 非线程安全，必须由单一事件循环驱动。
type ChangerFSM struct {
	state    ChangerState
	driver   ChangerDriver
	listener ChangerListener
	logger   *zap.Logger

	requested int64 // 本次出币请求的金额
	remaining int64 // 剩余待出金额，收到 coin_out 递减，可为负（超吐）

	dispenseHook func(amount int64) // 出币开始旁路通知，可为空
}

// NewChangerFSM 创建找零器状态机，初始状态为离线
func NewChangerFSM(driver ChangerDriver, logger *zap.Logger) *ChangerFSM {
	return &ChangerFSM{
		state:  ChangerOffline,
		driver: driver,
		logger: logger.With(zap.String("fsm", "changer")),
	}
}

// SetListener 绑定事件观察者，必须在驱动产生事件前完成
func (c *ChangerFSM) SetListener(l ChangerListener) {
	c.listener = l
}

// SetDispenseHook 绑定出币开始通知。
// 找零、退款、退还计划外硬币都经由这里，不属于上行事件契约。
func (c *ChangerFSM) SetDispenseHook(fn func(amount int64)) {
	c.dispenseHook = fn
}

// State 当前状态
func (c *ChangerFSM) State() ChangerState {
	return c.state
}

// Start 启动设备，设备上线后回报 online 事件
func (c *ChangerFSM) Start() {
	if err := c.driver.StartDevice(); err != nil {
		c.logger.Error("启动找零器失败", zap.Error(err))
	}
}

// Stop 停止设备
func (c *ChangerFSM) Stop() {
	if err := c.driver.StopDevice(); err != nil {
		c.logger.Error("停止找零器失败", zap.Error(err))
	}
}

// CanDispenseAmount 当前硬币库存能否凑出指定金额，委托给驱动的纯查询
func (c *ChangerFSM) CanDispenseAmount(amount int64) bool {
	return c.driver.CanDispenseAmount(amount)
}

// Online 设备上线事件
func (c *ChangerFSM) Online() {
	switch c.state {
	case ChangerOffline:
		c.transition(ChangerOnline, "online")
		c.listener.ChangerOnline()
	default:
		c.ignore("online")
	}
}

// Initialized 设备初始化完成事件
func (c *ChangerFSM) Initialized() {
	switch c.state {
	case ChangerOnline:
		c.transition(ChangerReady, "initialized")
		c.listener.ChangerInitialized()
	default:
		c.ignore("initialized")
	}
}

// StartAccept 开始收币命令
func (c *ChangerFSM) StartAccept() {
	switch c.state {
	case ChangerReady:
		c.transition(ChangerAccepting, "start_accept")
		if err := c.driver.StartAccept(); err != nil {
			c.logger.Error("下发开始收币命令失败", zap.Error(err))
		}
	default:
		c.ignore("start_accept")
	}
}

// StopAccept 停止收币命令
func (c *ChangerFSM) StopAccept() {
	switch c.state {
	case ChangerAccepting:
		c.transition(ChangerReady, "stop_accept")
		c.stopAcceptDevice()
	default:
		c.ignore("stop_accept")
	}
}

// CoinIn 设备报告收到一枚硬币。
// 收币中收到硬币会先停止收币再上报；就绪态收到计划外硬币同样上报，
// 是否退回由汇总层决定。
func (c *ChangerFSM) CoinIn(amount int64) {
	switch c.state {
	case ChangerAccepting:
		c.stopAcceptDevice()
		c.transition(ChangerReady, "coin_in")
		c.listener.CoinIn(amount)
	case ChangerReady:
		c.stopAcceptDevice()
		c.logger.Info("就绪态收到计划外硬币", zap.Int64("amount", amount))
		c.listener.CoinIn(amount)
	default:
		c.ignore("coin_in")
	}
}

// DispenseAmount 按金额出币命令。amount <= 0 时退化为立即完成，
// 直接回报 amount_dispensed(0)。
func (c *ChangerFSM) DispenseAmount(amount int64) {
	switch c.state {
	case ChangerReady:
		c.requested = amount
		c.remaining = amount
		c.transition(ChangerDispensing, "dispense_amount")
		if c.dispenseHook != nil {
			c.dispenseHook(amount)
		}
		if amount <= 0 {
			c.finishDispense()
			return
		}
		if err := c.driver.DispenseAmount(amount); err != nil {
			c.logger.Error("下发出币命令失败", zap.Int64("amount", amount), zap.Error(err))
		}
	default:
		c.ignore("dispense_amount")
	}
}

// CoinOut 设备报告物理吐出一枚硬币
func (c *ChangerFSM) CoinOut(amount int64) {
	switch c.state {
	case ChangerDispensing:
		c.remaining -= amount
		c.logger.Debug("吐出硬币",
			zap.Int64("amount", amount),
			zap.Int64("remaining", c.remaining))
		if c.remaining <= 0 {
			c.finishDispense()
		}
	default:
		c.ignore("coin_out")
	}
}

// StopDispense 提前结束出币：先命令设备停止，再按已吐出金额回报
func (c *ChangerFSM) StopDispense() {
	switch c.state {
	case ChangerDispensing:
		if err := c.driver.StopDispense(); err != nil {
			c.logger.Error("下发停止出币命令失败", zap.Error(err))
		}
		c.finishDispense()
	default:
		c.ignore("stop_dispense")
	}
}

// Error 设备故障事件，上报前先强制停止收币
func (c *ChangerFSM) Error(code int, text string) {
	switch c.state {
	case ChangerOnline, ChangerReady, ChangerAccepting, ChangerDispensing:
		c.stopAcceptDevice()
		c.transition(ChangerError, "error")
		c.logger.Error("找零器故障",
			zap.Int("code", code),
			zap.String("text", text))
		c.listener.ChangerError(code, text)
	default:
		c.ignore("error")
	}
}

// Offline 设备离线事件，任何状态都可进入
func (c *ChangerFSM) Offline() {
	switch c.state {
	case ChangerOffline:
		c.ignore("offline")
	default:
		c.transition(ChangerOffline, "offline")
		c.listener.ChangerOffline()
	}
}

// finishDispense 结束本次出币并回报实际吐出的累计金额。
// remaining 为负表示超吐，超吐金额照实上报，不做吞没。
func (c *ChangerFSM) finishDispense() {
	dispensed := c.requested - c.remaining
	c.transition(ChangerReady, "amount_dispensed")
	c.logger.Info("出币结束",
		zap.Int64("requested", c.requested),
		zap.Int64("dispensed", dispensed))
	c.listener.AmountDispensed(dispensed)
}

func (c *ChangerFSM) stopAcceptDevice() {
	if err := c.driver.StopAccept(); err != nil {
		c.logger.Error("下发停止收币命令失败", zap.Error(err))
	}
}

func (c *ChangerFSM) transition(to ChangerState, event string) {
	c.logger.Info("状态转换",
		zap.String("from", string(c.state)),
		zap.String("to", string(to)),
		zap.String("event", event))
	c.state = to
}

func (c *ChangerFSM) ignore(event string) {
	c.logger.Debug("忽略事件",
		zap.String("state", string(c.state)),
		zap.String("event", event))
}
