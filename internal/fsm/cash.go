package fsm

import (
	"go.uber.org/zap"
)

// CashState 现金汇总状态机状态枚举
type CashState string

const (
	CashInit          CashState = "init"           // 未启动
	CashWaitReady     CashState = "wait_ready"     // 等待两台设备就绪
	CashError         CashState = "error"          // 故障
	CashReady         CashState = "ready"          // 就绪
	CashAcceptAmount  CashState = "accept_amount"  // 收款中
	CashWaitDispense  CashState = "wait_dispense"  // 收款完成，等待出币指令
	CashStartDispense CashState = "start_dispense" // 出币中
)

// 设备就绪跟踪，独立于汇总状态机本身的状态
type deviceState int

const (
	deviceOffline deviceState = iota
	deviceError
	deviceReady
)

// CashListener 现金汇总事件观察者，订阅方固定为 KioskFSM（或其代理）
type CashListener interface {
	// CashReady 两台设备都已就绪
	CashReady()
	CashError(code int, text string)
	// AmountAccepted 收款额已达到目标，amount 为累计已收金额
	AmountAccepted(amount int64)
	// AmountNotAccepted 收款窗口超时，已收金额已原路退回
	AmountNotAccepted()
	// AmountDispensed 一次出币结束（转发自找零器）
	AmountDispensed(amount int64)
}

// CashFSM 现金汇总状态机。
// 组合找零器与验钞器，实现“收满 N 个货币单位”协议：
// 跟踪目标金额与已收金额，按找零器的可出币能力决定纸币收拒，
// 驱动最终的找零或全额退款。
// 非线程安全，必须由单一事件循环驱动。
type CashFSM struct {
	state     CashState
	changer   *ChangerFSM
	validator *ValidatorFSM
	timer     AcceptTimer
	listener  CashListener
	logger    *zap.Logger

	changerState   deviceState
	validatorState deviceState

	required int64 // 本次销售的目标金额
	accepted int64 // 已收金额，只在收款期间增长，每次销售开始时清零
}

// NewCashFSM 创建现金汇总状态机并订阅两台设备状态机的事件
func NewCashFSM(changer *ChangerFSM, validator *ValidatorFSM, timer AcceptTimer, logger *zap.Logger) *CashFSM {
	c := &CashFSM{
		state:     CashInit,
		changer:   changer,
		validator: validator,
		timer:     timer,
		logger:    logger.With(zap.String("fsm", "cash")),
	}
	changer.SetListener(c)
	validator.SetListener(c)
	return c
}

// SetListener 绑定事件观察者
func (c *CashFSM) SetListener(l CashListener) {
	c.listener = l
}

// State 当前状态
func (c *CashFSM) State() CashState {
	return c.state
}

// AcceptedAmount 当前已收金额
func (c *CashFSM) AcceptedAmount() int64 {
	return c.accepted
}

// Start 启动两台设备。故障后由上层重新下发 Start 恢复。
func (c *CashFSM) Start() {
	switch c.state {
	case CashInit, CashError:
		c.transition(CashWaitReady, "start")
		c.changer.Start()
		c.validator.Start()
	default:
		c.ignore("start")
	}
}

// Stop 停止两台设备
func (c *CashFSM) Stop() {
	c.changer.Stop()
	c.validator.Stop()
}

// Accept 开始收款：目标金额 amount，清零已收金额，
// 两台设备同时开始收币/收钞，并启动收款窗口计时。
func (c *CashFSM) Accept(amount int64) {
	switch c.state {
	case CashReady:
		c.required = amount
		c.accepted = 0
		c.transition(CashAcceptAmount, "accept")
		c.changer.StartAccept()
		c.validator.StartAccept()
		c.timer.Start()
		c.logger.Info("开始收款", zap.Int64("required", amount))
	default:
		c.ignore("accept")
	}
}

// AcceptTimeout 收款窗口超时：停止收款，退回已收金额，上报 not_accepted
func (c *CashFSM) AcceptTimeout() {
	switch c.state {
	case CashAcceptAmount:
		c.transition(CashReady, "accept_timeout")
		c.stopAccept()
		refund := c.accepted
		c.logger.Info("收款超时，退回已收金额", zap.Int64("refund", refund))
		c.changer.DispenseAmount(refund)
		c.listener.AmountNotAccepted()
	default:
		c.ignore("accept_timeout")
	}
}

// DispenseAll 全额退款（制备失败或故障善后路径）
func (c *CashFSM) DispenseAll() {
	switch c.state {
	case CashWaitDispense:
		c.transition(CashStartDispense, "dispense_all")
		c.logger.Info("全额退款", zap.Int64("amount", c.accepted))
		c.changer.DispenseAmount(c.accepted)
	default:
		c.ignore("dispense_all")
	}
}

// DispenseChange 找零（正常销售路径），恰好付清时出币金额为 0
func (c *CashFSM) DispenseChange() {
	switch c.state {
	case CashWaitDispense:
		c.transition(CashStartDispense, "dispense_change")
		change := c.accepted - c.required
		c.logger.Info("找零", zap.Int64("change", change))
		c.changer.DispenseAmount(change)
	default:
		c.ignore("dispense_change")
	}
}

// ---- ChangerListener ----

// ChangerOnline 找零器上线
func (c *CashFSM) ChangerOnline() {}

// ChangerOffline 找零器离线
func (c *CashFSM) ChangerOffline() {
	c.changerState = deviceOffline
}

// ChangerInitialized 找零器就绪。两台设备都就绪时进入 ready，
// 就绪事件先后顺序无关紧要。
func (c *CashFSM) ChangerInitialized() {
	c.changerState = deviceReady
	c.checkReady()
}

// ChangerError 找零器故障
func (c *CashFSM) ChangerError(code int, text string) {
	c.changerState = deviceError
	c.deviceError(code, text)
}

// CoinIn 收到硬币。
// 就绪态（没有进行中的销售）收到硬币直接原路退回——
// 控制器绝不私吞计划外的钱。
func (c *CashFSM) CoinIn(amount int64) {
	switch c.state {
	case CashReady:
		c.logger.Info("无销售时收到硬币，退回", zap.Int64("amount", amount))
		c.changer.DispenseAmount(amount)
	case CashAcceptAmount:
		c.accepted += amount
		c.logger.Info("收到硬币",
			zap.Int64("amount", amount),
			zap.Int64("accepted", c.accepted),
			zap.Int64("required", c.required))
		if c.accepted >= c.required {
			c.amountReached()
		}
	case CashWaitDispense:
		// 付清之后继续塞入的硬币照常累计，重新上报 accepted
		c.accepted += amount
		c.logger.Info("付清后继续收到硬币",
			zap.Int64("amount", amount),
			zap.Int64("accepted", c.accepted))
		c.listener.AmountAccepted(c.accepted)
	default:
		c.ignore("coin_in")
	}
}

// AmountDispensed 找零器出币结束，向上转发
func (c *CashFSM) AmountDispensed(amount int64) {
	switch c.state {
	case CashStartDispense:
		c.transition(CashReady, "amount_dispensed")
		c.listener.AmountDispensed(amount)
	default:
		// 就绪态退回计划外硬币结束等场景，无需上报
		c.ignore("amount_dispensed")
	}
}

// ---- ValidatorListener ----

// ValidatorOnline 验钞器上线
func (c *CashFSM) ValidatorOnline() {}

// ValidatorOffline 验钞器离线
func (c *CashFSM) ValidatorOffline() {
	c.validatorState = deviceOffline
}

// ValidatorInitialized 验钞器就绪
func (c *CashFSM) ValidatorInitialized() {
	c.validatorState = deviceReady
	c.checkReady()
}

// ValidatorError 验钞器故障
func (c *CashFSM) ValidatorError(code int, text string) {
	c.validatorState = deviceError
	c.deviceError(code, text)
}

// CheckBill 验钞器请求收拒决定。
// 纸币收下与否不只看金额够不够，还要看找零器能不能兜底：
// 收下后若连累计总额都退不出来，或者产生退不出来的找零，一律拒收。
func (c *CashFSM) CheckBill(amount int64) {
	switch c.state {
	case CashAcceptAmount:
		if !c.isValidBill(amount) {
			c.logger.Info("纸币不可找零，拒收",
				zap.Int64("amount", amount),
				zap.Int64("accepted", c.accepted))
			c.validator.BanBill()
			return
		}
		c.accepted += amount
		c.logger.Info("收下纸币",
			zap.Int64("amount", amount),
			zap.Int64("accepted", c.accepted),
			zap.Int64("required", c.required))
		c.validator.PermitBill()
		if c.accepted >= c.required {
			c.amountReached()
		}
	case CashWaitDispense:
		// 付清之后不再收任何纸币
		c.validator.BanBill()
	default:
		c.ignore("check_bill")
	}
}

// BillIn 纸币已收纳。金额在 CheckBill 决定时已计入，这里只记录。
func (c *CashFSM) BillIn(amount int64) {
	c.logger.Debug("纸币已收纳", zap.Int64("amount", amount))
}

// ---- 内部辅助 ----

// isValidBill 纸币可收性检查：
// 收下后的累计总额必须可以整额退回，若产生找零，找零额本身也必须可出。
func (c *CashFSM) isValidBill(amount int64) bool {
	total := c.accepted + amount
	if !c.changer.CanDispenseAmount(total) {
		return false
	}
	change := total - c.required
	if change > 0 && !c.changer.CanDispenseAmount(change) {
		return false
	}
	return true
}

// amountReached 收款额已达标：停止收款，进入等待出币
func (c *CashFSM) amountReached() {
	c.transition(CashWaitDispense, "amount_reached")
	c.stopAccept()
	c.timer.Stop()
	c.logger.Info("收款完成", zap.Int64("accepted", c.accepted))
	c.listener.AmountAccepted(c.accepted)
}

func (c *CashFSM) checkReady() {
	if c.state != CashWaitReady {
		return
	}
	if c.changerState == deviceReady && c.validatorState == deviceReady {
		c.transition(CashReady, "devices_ready")
		c.listener.CashReady()
	}
}

// deviceError 任一设备故障：停止收款并上报。
// 故障是终态，只有上层重新下发 start 才能恢复。
func (c *CashFSM) deviceError(code int, text string) {
	switch c.state {
	case CashReady, CashAcceptAmount, CashWaitDispense, CashStartDispense:
		wasAccepting := c.state == CashAcceptAmount
		c.transition(CashError, "device_error")
		c.stopAccept()
		if wasAccepting {
			c.timer.Stop()
		}
		c.listener.CashError(code, text)
	default:
		c.ignore("device_error")
	}
}

func (c *CashFSM) stopAccept() {
	c.changer.StopAccept()
	c.validator.StopAccept()
}

func (c *CashFSM) transition(to CashState, event string) {
	c.logger.Info("状态转换",
		zap.String("from", string(c.state)),
		zap.String("to", string(to)),
		zap.String("event", event))
	c.state = to
}

func (c *CashFSM) ignore(event string) {
	c.logger.Debug("忽略事件",
		zap.String("state", string(c.state)),
		zap.String("event", event))
}
