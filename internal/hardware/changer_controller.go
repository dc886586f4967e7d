package hardware

import (
	"sync"

	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/logger"
	"go.uber.org/zap"
)

// ChangerController 硬币找零器控制器。
// 实现 fsm.ChangerDriver 的命令面；设备事件通过回调上抛。
type ChangerController struct {
	device *serialDevice
	table  DenominationTable
	logger *zap.Logger

	// 币管库存，由设备上报维护
	invMu     sync.RWMutex
	inventory []uint16

	// 事件回调
	onOnline      func()
	onOffline     func()
	onInitialized func()
	onCoinIn      func(amount int64)
	onCoinOut     func(amount int64)
	onError       func(code int, text string)
}

// NewChangerController 创建找零器控制器
func NewChangerController(cfg config.DeviceSerialConfig, table DenominationTable) *ChangerController {
	c := &ChangerController{
		table:     table,
		logger:    logger.GetModuleLogger("serial"),
		inventory: make([]uint16, len(table)),
	}
	c.device = newSerialDevice("changer", cfg, c.logger)
	c.device.onEvent = c.handleEvent
	c.device.onLost = func() {
		if c.onOffline != nil {
			c.onOffline()
		}
	}
	return c
}

// SetOnlineCallback 设置设备上线回调
func (c *ChangerController) SetOnlineCallback(fn func()) { c.onOnline = fn }

// SetOfflineCallback 设置设备离线回调
func (c *ChangerController) SetOfflineCallback(fn func()) { c.onOffline = fn }

// SetInitializedCallback 设置复位完成回调
func (c *ChangerController) SetInitializedCallback(fn func()) { c.onInitialized = fn }

// SetCoinInCallback 设置投币回调（参数为金额）
func (c *ChangerController) SetCoinInCallback(fn func(amount int64)) { c.onCoinIn = fn }

// SetCoinOutCallback 设置出币回调（参数为金额）
func (c *ChangerController) SetCoinOutCallback(fn func(amount int64)) { c.onCoinOut = fn }

// SetErrorCallback 设置故障回调
func (c *ChangerController) SetErrorCallback(fn func(code int, text string)) { c.onError = fn }

// StartDevice 连接串口并复位设备
func (c *ChangerController) StartDevice() error {
	if err := c.device.connect(); err != nil {
		return err
	}
	if err := c.device.sendCommand(CmdReset, nil); err != nil {
		return err
	}
	// 复位后主动查询币管余量
	return c.device.sendCommand(CmdTubeStatusQuery, nil)
}

// StopDevice 停机并断开串口
func (c *ChangerController) StopDevice() error {
	if c.device.isConnected() {
		if err := c.device.sendCommand(CmdShutdown, nil); err != nil {
			c.logger.Warn("找零器停机命令失败", zap.Error(err))
		}
	}
	return c.device.disconnect()
}

// StartAccept 开启投币
func (c *ChangerController) StartAccept() error {
	return c.device.sendCommand(CmdEnableAccept, nil)
}

// StopAccept 关闭投币
func (c *ChangerController) StopAccept() error {
	return c.device.sendCommand(CmdDisableAccept, nil)
}

// DispenseAmount 按金额出币：贪心拆分面额后逐项下发
func (c *ChangerController) DispenseAmount(amount int64) error {
	if amount <= 0 {
		return nil
	}

	c.invMu.RLock()
	inventory := make([]uint16, len(c.inventory))
	copy(inventory, c.inventory)
	c.invMu.RUnlock()

	plan, remaining := planPayout(c.table, inventory, amount)
	if remaining != 0 {
		c.logger.Warn("库存无法精确凑出金额，按可出部分执行",
			zap.Int64("amount", amount),
			zap.Int64("remaining", remaining))
	}

	for _, item := range plan {
		// 数据：面额码(1) + 数量(1)
		if err := c.device.sendCommand(CmdDispenseCoin, []byte{item.code, byte(item.count)}); err != nil {
			return err
		}
	}
	return nil
}

// StopDispense 停止出币
func (c *ChangerController) StopDispense() error {
	return c.device.sendCommand(CmdStopDispense, nil)
}

// CanDispenseAmount 查询当前库存能否精确凑出金额
func (c *ChangerController) CanDispenseAmount(amount int64) bool {
	c.invMu.RLock()
	defer c.invMu.RUnlock()
	return canPayout(c.table, c.inventory, amount)
}

// handleEvent 处理设备事件帧
func (c *ChangerController) handleEvent(frame *Frame) {
	switch frame.Command {
	case EventDeviceOnline:
		if c.onOnline != nil {
			c.onOnline()
		}
	case EventDeviceReady:
		if c.onInitialized != nil {
			c.onInitialized()
		}
	case EventCoinIn:
		c.handleCoin(frame, c.onCoinIn, true)
	case EventCoinOut:
		c.handleCoin(frame, c.onCoinOut, false)
	case EventTubeStatus:
		c.handleTubeStatus(frame)
	case EventFaultReport:
		c.handleFault(frame)
	default:
		c.logger.Warn("找零器未知事件", zap.Uint8("cmd", frame.Command))
	}
}

// handleCoin 处理投币/出币事件（数据：面额码）
func (c *ChangerController) handleCoin(frame *Frame, fn func(amount int64), in bool) {
	if len(frame.Data) < 1 {
		c.logger.Error("硬币事件数据长度无效")
		return
	}
	code := frame.Data[0]
	value := c.table.Value(code)
	if value == 0 {
		c.logger.Warn("未知硬币面额码", zap.Uint8("code", code))
		return
	}

	// 维护库存：投币入管、出币出管
	c.invMu.Lock()
	if int(code) < len(c.inventory) {
		if in {
			c.inventory[code]++
		} else if c.inventory[code] > 0 {
			c.inventory[code]--
		}
	}
	c.invMu.Unlock()

	if fn != nil {
		fn(value)
	}
}

// handleTubeStatus 处理币管余量上报
func (c *ChangerController) handleTubeStatus(frame *Frame) {
	status, err := ParseTubeStatus(frame.Data)
	if err != nil {
		c.logger.Error("解析币管余量失败", zap.Error(err))
		return
	}

	c.invMu.Lock()
	c.inventory = status.Counts
	c.invMu.Unlock()

	c.logger.Debug("币管余量已更新", zap.Uint16s("counts", status.Counts))
}

// handleFault 处理故障上报
func (c *ChangerController) handleFault(frame *Frame) {
	fault, err := ParseFaultEvent(frame.Data)
	if err != nil {
		c.logger.Error("解析故障事件失败", zap.Error(err))
		return
	}

	c.logger.Error("找零器故障",
		zap.Uint8("fault_code", fault.FaultCode),
		zap.Uint8("level", fault.Level),
		zap.String("text", FaultText(fault.FaultCode)))

	if c.onError != nil {
		c.onError(int(fault.FaultCode), FaultText(fault.FaultCode))
	}
}
