package hardware

import (
	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/logger"
	"go.uber.org/zap"
)

// ValidatorController 纸币验钞器控制器。
// 实现 fsm.ValidatorDriver 的命令面；设备事件通过回调上抛。
type ValidatorController struct {
	device *serialDevice
	table  DenominationTable
	logger *zap.Logger

	// 事件回调
	onOnline      func()
	onOffline     func()
	onInitialized func()
	onBillEscrow  func(amount int64)
	onError       func(code int, text string)
}

// NewValidatorController 创建验钞器控制器
func NewValidatorController(cfg config.DeviceSerialConfig, table DenominationTable) *ValidatorController {
	v := &ValidatorController{
		table:  table,
		logger: logger.GetModuleLogger("serial"),
	}
	v.device = newSerialDevice("validator", cfg, v.logger)
	v.device.onEvent = v.handleEvent
	v.device.onLost = func() {
		if v.onOffline != nil {
			v.onOffline()
		}
	}
	return v
}

// SetOnlineCallback 设置设备上线回调
func (v *ValidatorController) SetOnlineCallback(fn func()) { v.onOnline = fn }

// SetOfflineCallback 设置设备离线回调
func (v *ValidatorController) SetOfflineCallback(fn func()) { v.onOffline = fn }

// SetInitializedCallback 设置复位完成回调
func (v *ValidatorController) SetInitializedCallback(fn func()) { v.onInitialized = fn }

// SetBillEscrowCallback 设置纸币进入暂存区回调（参数为金额）
func (v *ValidatorController) SetBillEscrowCallback(fn func(amount int64)) { v.onBillEscrow = fn }

// SetErrorCallback 设置故障回调
func (v *ValidatorController) SetErrorCallback(fn func(code int, text string)) { v.onError = fn }

// StartDevice 连接串口并复位设备
func (v *ValidatorController) StartDevice() error {
	if err := v.device.connect(); err != nil {
		return err
	}
	return v.device.sendCommand(CmdReset, nil)
}

// StopDevice 停机并断开串口
func (v *ValidatorController) StopDevice() error {
	if v.device.isConnected() {
		if err := v.device.sendCommand(CmdShutdown, nil); err != nil {
			v.logger.Warn("验钞器停机命令失败", zap.Error(err))
		}
	}
	return v.device.disconnect()
}

// StartAccept 开启收钞
func (v *ValidatorController) StartAccept() error {
	return v.device.sendCommand(CmdEnableAccept, nil)
}

// StopAccept 关闭收钞
func (v *ValidatorController) StopAccept() error {
	return v.device.sendCommand(CmdDisableAccept, nil)
}

// StackBill 收纳当前暂存的纸币
func (v *ValidatorController) StackBill() error {
	return v.device.sendCommand(CmdStackBill, nil)
}

// ReturnBill 退回当前暂存的纸币
func (v *ValidatorController) ReturnBill() error {
	return v.device.sendCommand(CmdReturnBill, nil)
}

// handleEvent 处理设备事件帧
func (v *ValidatorController) handleEvent(frame *Frame) {
	switch frame.Command {
	case EventDeviceOnline:
		if v.onOnline != nil {
			v.onOnline()
		}
	case EventDeviceReady:
		if v.onInitialized != nil {
			v.onInitialized()
		}
	case EventBillEscrow:
		v.handleBillEscrow(frame)
	case EventFaultReport:
		v.handleFault(frame)
	default:
		v.logger.Warn("验钞器未知事件", zap.Uint8("cmd", frame.Command))
	}
}

// handleBillEscrow 处理纸币进入暂存区事件（数据：面额码）
func (v *ValidatorController) handleBillEscrow(frame *Frame) {
	if len(frame.Data) < 1 {
		v.logger.Error("纸币事件数据长度无效")
		return
	}
	code := frame.Data[0]
	value := v.table.Value(code)
	if value == 0 {
		// 识别不了的面额直接退回
		v.logger.Warn("未知纸币面额码，退回", zap.Uint8("code", code))
		if err := v.ReturnBill(); err != nil {
			v.logger.Error("退回纸币失败", zap.Error(err))
		}
		return
	}

	if v.onBillEscrow != nil {
		v.onBillEscrow(value)
	}
}

// handleFault 处理故障上报
func (v *ValidatorController) handleFault(frame *Frame) {
	fault, err := ParseFaultEvent(frame.Data)
	if err != nil {
		v.logger.Error("解析故障事件失败", zap.Error(err))
		return
	}

	v.logger.Error("验钞器故障",
		zap.Uint8("fault_code", fault.FaultCode),
		zap.Uint8("level", fault.Level),
		zap.String("text", FaultText(fault.FaultCode)))

	if v.onError != nil {
		v.onError(int(fault.FaultCode), FaultText(fault.FaultCode))
	}
}
