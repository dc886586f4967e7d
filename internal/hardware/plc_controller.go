package hardware

import (
	"fmt"

	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/logger"
	"go.uber.org/zap"
)

// PLCController 商品制备单元（PLC）控制器。
// 实现 fsm.PreparationUnit；出货结果通过回调上抛。
type PLCController struct {
	device *serialDevice
	slots  map[string]byte // 商品 → 货道号
	logger *zap.Logger

	// 事件回调
	onPrepared    func()
	onNotPrepared func()
}

// NewPLCController 创建PLC控制器。
// slots 为商品到货道号的映射。
func NewPLCController(cfg config.DeviceSerialConfig, slots map[string]byte) *PLCController {
	p := &PLCController{
		slots:  slots,
		logger: logger.GetModuleLogger("serial"),
	}
	p.device = newSerialDevice("plc", cfg, p.logger)
	p.device.onEvent = p.handleEvent
	return p
}

// SetPreparedCallback 设置出货成功回调
func (p *PLCController) SetPreparedCallback(fn func()) { p.onPrepared = fn }

// SetNotPreparedCallback 设置出货失败回调
func (p *PLCController) SetNotPreparedCallback(fn func()) { p.onNotPrepared = fn }

// StartDevice 连接串口并复位设备
func (p *PLCController) StartDevice() error {
	if err := p.device.connect(); err != nil {
		return err
	}
	return p.device.sendCommand(CmdReset, nil)
}

// StopDevice 断开串口
func (p *PLCController) StopDevice() error {
	return p.device.disconnect()
}

// Prepare 下发出货命令（数据：货道号）。
// 命令被接受仅表示开始执行，结果由 EventProductOut / EventProductFail 上报。
func (p *PLCController) Prepare(product string) error {
	slot, ok := p.slots[product]
	if !ok {
		return fmt.Errorf("no slot for product %q", product)
	}
	return p.device.sendCommand(CmdDispenseProduct, []byte{slot})
}

// handleEvent 处理设备事件帧
func (p *PLCController) handleEvent(frame *Frame) {
	switch frame.Command {
	case EventProductOut:
		p.logger.Info("出货完成")
		if p.onPrepared != nil {
			p.onPrepared()
		}
	case EventProductFail:
		p.logger.Error("出货失败")
		if p.onNotPrepared != nil {
			p.onNotPrepared()
		}
	case EventDeviceReady, EventDeviceOnline:
		// PLC就绪无需上抛
	default:
		p.logger.Warn("PLC未知事件", zap.Uint8("cmd", frame.Command))
	}
}
