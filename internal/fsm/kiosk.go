package fsm

import (
	"go.uber.org/zap"
)

// KioskState 销售流程状态机状态枚举
type KioskState string

const (
	KioskInit          KioskState = "init"           // 未启动
	KioskWaitReady     KioskState = "wait_ready"     // 等待现金层就绪
	KioskError         KioskState = "error"          // 故障
	KioskReady         KioskState = "ready"          // 可售
	KioskStartSell     KioskState = "start_sell"     // 收款中
	KioskStartPrepare  KioskState = "start_prepare"  // 制备中
	KioskStartDispense KioskState = "start_dispense" // 找零/退款中
)

// KioskListener 销售流程事件观察者（面向运行时/操作端）
type KioskListener interface {
	// KioskReady 售货亭就绪，可以开始销售
	KioskReady()
	// ResetSell 本次销售被复位（商品无效或收款超时）
	ResetSell()
	// KioskError 售货亭故障，已尽力全额退款
	KioskError(code int, text string)
}

// KioskFSM 销售流程状态机。
// 组合 CashFSM 与制备单元：把商品选择映射为目标收款额，
// 驱动 收款 → 制备 → 找零 的顺序，任何下游故障都转成全额退款。
// 非线程安全，必须由单一事件循环驱动。
type KioskFSM struct {
	state    KioskState
	cash     *CashFSM
	plc      PreparationUnit
	products map[string]int64 // 商品 → 价格表，构造时注入，运行期只读
	listener KioskListener
	logger   *zap.Logger

	product string // 当前销售的商品，销售之外无意义
}

// NewKioskFSM 创建销售流程状态机并订阅现金层事件
func NewKioskFSM(cash *CashFSM, plc PreparationUnit, products map[string]int64, logger *zap.Logger) *KioskFSM {
	k := &KioskFSM{
		state:    KioskInit,
		cash:     cash,
		plc:      plc,
		products: products,
		logger:   logger.With(zap.String("fsm", "kiosk")),
	}
	cash.SetListener(k)
	return k
}

// SetListener 绑定事件观察者
func (k *KioskFSM) SetListener(l KioskListener) {
	k.listener = l
}

// State 当前状态
func (k *KioskFSM) State() KioskState {
	return k.state
}

// Product 当前销售的商品
func (k *KioskFSM) Product() string {
	return k.product
}

// Start 启动售货亭。故障后由操作端重新下发 Start 恢复。
func (k *KioskFSM) Start() {
	switch k.state {
	case KioskInit, KioskError:
		k.transition(KioskWaitReady, "start")
		k.cash.Start()
	default:
		k.ignore("start")
	}
}

// Stop 停止售货亭
func (k *KioskFSM) Stop() {
	k.cash.Stop()
}

// Sell 商品选择。未知商品不改变状态，立即以 reset_sell 拒绝。
func (k *KioskFSM) Sell(product string) {
	switch k.state {
	case KioskReady:
		price, ok := k.products[product]
		if !ok {
			k.logger.Warn("未知商品", zap.String("product", product))
			k.listener.ResetSell()
			return
		}
		k.product = product
		k.transition(KioskStartSell, "sell")
		k.logger.Info("开始销售",
			zap.String("product", product),
			zap.Int64("price", price))
		k.cash.Accept(price)
	default:
		k.ignore("sell")
	}
}

// ---- CashListener ----

// CashReady 现金层就绪
func (k *KioskFSM) CashReady() {
	switch k.state {
	case KioskWaitReady:
		k.transition(KioskReady, "cash_ready")
		k.listener.KioskReady()
	default:
		k.ignore("cash_ready")
	}
}

// AmountAccepted 收款完成，触发商品制备。
// 付清后继续塞币会重复上报，制备只在第一次触发。
func (k *KioskFSM) AmountAccepted(amount int64) {
	switch k.state {
	case KioskStartSell:
		k.transition(KioskStartPrepare, "amount_accepted")
		k.logger.Info("收款完成，开始制备",
			zap.String("product", k.product),
			zap.Int64("amount", amount))
		if err := k.plc.Prepare(k.product); err != nil {
			k.logger.Error("下发制备命令失败", zap.Error(err))
		}
	default:
		k.ignore("amount_accepted")
	}
}

// AmountNotAccepted 收款超时，销售复位
func (k *KioskFSM) AmountNotAccepted() {
	switch k.state {
	case KioskStartSell:
		k.transition(KioskReady, "amount_not_accepted")
		k.listener.ResetSell()
	default:
		k.ignore("amount_not_accepted")
	}
}

// Prepared 制备成功：保留货款，只找零
func (k *KioskFSM) Prepared() {
	switch k.state {
	case KioskStartPrepare:
		k.transition(KioskStartDispense, "prepared")
		k.cash.DispenseChange()
	default:
		k.ignore("prepared")
	}
}

// NotPrepared 制备失败：商品没做出来，全额退款
func (k *KioskFSM) NotPrepared() {
	switch k.state {
	case KioskStartPrepare:
		k.transition(KioskStartDispense, "not_prepared")
		k.logger.Warn("制备失败，全额退款", zap.String("product", k.product))
		k.cash.DispenseAll()
	default:
		k.ignore("not_prepared")
	}
}

// AmountDispensed 找零/退款结束，回到可售状态
func (k *KioskFSM) AmountDispensed(amount int64) {
	switch k.state {
	case KioskStartDispense:
		k.transition(KioskReady, "amount_dispensed")
		k.logger.Info("销售结束", zap.Int64("dispensed", amount))
	default:
		k.ignore("amount_dispensed")
	}
}

// CashError 现金层故障：尽力全额退款后上报，停在故障态等操作端重启
func (k *KioskFSM) CashError(code int, text string) {
	switch k.state {
	case KioskReady, KioskStartSell, KioskStartPrepare, KioskStartDispense:
		k.transition(KioskError, "cash_error")
		k.cash.DispenseAll()
		k.logger.Error("售货亭故障",
			zap.Int("code", code),
			zap.String("text", text))
		k.listener.KioskError(code, text)
	default:
		k.ignore("cash_error")
	}
}

func (k *KioskFSM) transition(to KioskState, event string) {
	k.logger.Info("状态转换",
		zap.String("from", string(k.state)),
		zap.String("to", string(to)),
		zap.String("event", event))
	k.state = to
}

func (k *KioskFSM) ignore(event string) {
	k.logger.Debug("忽略事件",
		zap.String("state", string(k.state)),
		zap.String("event", event))
}
