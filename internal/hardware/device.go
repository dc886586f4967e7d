package hardware

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/cash-kiosk/internal/config"
	"go.uber.org/zap"
)

// serialDevice 串口设备通用底座：负责连接管理、帧收发、ACK等待。
// 具体设备（找零器/验钞器/PLC）在其之上处理各自的命令与事件。
type serialDevice struct {
	name   string
	cfg    config.DeviceSerialConfig
	logger *zap.Logger

	mu        sync.RWMutex
	port      SerialPort
	connected bool
	sequence  uint32 // 序列号（原子操作）

	stopCh chan struct{}

	// 待确认命令
	pendingCmds map[uint16]*pendingCommand
	cmdMu       sync.RWMutex

	// 最近一次收到帧的时间（UnixNano，原子操作）
	lastFrame int64

	// 事件帧处理器，由具体设备设置
	onEvent func(frame *Frame)
	// 心跳丢失处理器（设备失联时回调一次）
	onLost func()
}

// 心跳看门狗参数
const (
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
)

// pendingCommand 待确认的命令
type pendingCommand struct {
	cmd      byte
	seq      uint16
	time     time.Time
	response chan error
}

func newSerialDevice(name string, cfg config.DeviceSerialConfig, logger *zap.Logger) *serialDevice {
	return &serialDevice{
		name:        name,
		cfg:         cfg,
		logger:      logger,
		pendingCmds: make(map[uint16]*pendingCommand),
	}
}

// connect 打开串口并启动读取循环
func (d *serialDevice) connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	cfg := &serial.Config{
		Name:        d.cfg.Port,
		Baud:        d.cfg.BaudRate,
		ReadTimeout: d.cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		d.logger.Error("打开串口失败",
			zap.String("device", d.name),
			zap.String("port", d.cfg.Port),
			zap.Error(err))
		return fmt.Errorf("open serial port failed: %w", err)
	}

	d.port = port
	d.connected = true
	d.stopCh = make(chan struct{})
	atomic.StoreInt64(&d.lastFrame, time.Now().UnixNano())

	go d.readLoop()
	go d.heartbeatLoop()

	d.logger.Info("串口设备已连接",
		zap.String("device", d.name),
		zap.String("port", d.cfg.Port),
		zap.Int("baudrate", d.cfg.BaudRate))

	return nil
}

// disconnect 关闭串口并停止读取循环
func (d *serialDevice) disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	close(d.stopCh)

	if d.port != nil {
		if err := d.port.Close(); err != nil {
			d.logger.Error("关闭串口失败",
				zap.String("device", d.name),
				zap.Error(err))
			return err
		}
		d.port = nil
	}

	d.connected = false
	d.logger.Info("串口设备已断开", zap.String("device", d.name))

	return nil
}

// isConnected 检查连接状态
func (d *serialDevice) isConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// getNextSeq 获取下一个序列号（主机侧使用奇数）
func (d *serialDevice) getNextSeq() uint16 {
	seq := atomic.AddUint32(&d.sequence, 2)
	if seq%2 == 0 {
		seq++
	}
	return uint16(seq)
}

// sendCommand 发送命令并等待ACK
func (d *serialDevice) sendCommand(cmd byte, data []byte) error {
	return d.sendCommandWithTimeout(cmd, data, 3*time.Second)
}

// sendCommandWithTimeout 发送命令并等待ACK（带超时）
func (d *serialDevice) sendCommandWithTimeout(cmd byte, data []byte, timeout time.Duration) error {
	if !d.isConnected() {
		return fmt.Errorf("%s: not connected", d.name)
	}

	seq := d.getNextSeq()
	frame := NewFrame(cmd, seq, data)

	respCh := make(chan error, 1)
	pending := &pendingCommand{
		cmd:      cmd,
		seq:      seq,
		time:     time.Now(),
		response: respCh,
	}

	d.cmdMu.Lock()
	d.pendingCmds[seq] = pending
	d.cmdMu.Unlock()

	defer func() {
		d.cmdMu.Lock()
		delete(d.pendingCmds, seq)
		d.cmdMu.Unlock()
	}()

	if err := d.writeFrame(frame); err != nil {
		return fmt.Errorf("write frame failed: %w", err)
	}

	select {
	case err := <-respCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("%s: wait ACK timeout for cmd 0x%02X seq %d", d.name, cmd, seq)
	}
}

// writeFrame 写入数据帧
func (d *serialDevice) writeFrame(frame *Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return fmt.Errorf("%s: port not open", d.name)
	}

	data := frame.ToBytes()
	n, err := d.port.Write(data)
	if err != nil {
		return err
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: %d/%d", n, len(data))
	}

	d.logger.Debug("帧已发送",
		zap.String("device", d.name),
		zap.Uint8("cmd", frame.Command),
		zap.Uint16("seq", frame.Sequence),
		zap.Int("len", len(data)))

	return nil
}

// readLoop 读取循环：拼帧并分发
func (d *serialDevice) readLoop() {
	buf := make([]byte, 4096)
	frameBuf := make([]byte, 0, 4096)

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.mu.RLock()
		port := d.port
		d.mu.RUnlock()
		if port == nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			if err.Error() != "EOF" {
				d.logger.Error("串口读取失败",
					zap.String("device", d.name),
					zap.Error(err))
			}
			continue
		}

		if n > 0 {
			frameBuf = append(frameBuf, buf[:n]...)

			for len(frameBuf) >= int(MinFrameLen) {
				// 查找帧头
				idx := -1
				for i := 0; i < len(frameBuf); i++ {
					if frameBuf[i] == FrameHeader {
						idx = i
						break
					}
				}

				if idx < 0 {
					frameBuf = frameBuf[:0]
					break
				}

				if idx > 0 {
					frameBuf = frameBuf[idx:]
				}

				if len(frameBuf) < 3 {
					break
				}

				frameLen := binary.BigEndian.Uint16(frameBuf[1:3])
				if len(frameBuf) < int(frameLen) {
					// 数据不完整，等待更多数据
					break
				}

				frame := &Frame{}
				if err := frame.FromBytes(frameBuf[:frameLen]); err != nil {
					d.logger.Error("解析帧失败",
						zap.String("device", d.name),
						zap.Error(err))
					frameBuf = frameBuf[1:]
					continue
				}

				d.handleFrame(frame)

				frameBuf = frameBuf[frameLen:]
			}
		}
	}
}

// heartbeatLoop 心跳看门狗：定期发送心跳，失联时回调
func (d *serialDevice) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	stopCh := d.stopCh
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame := NewFrame(CmdHeartbeat, d.getNextSeq(), nil)
			if err := d.writeFrame(frame); err != nil {
				d.logger.Debug("心跳发送失败",
					zap.String("device", d.name),
					zap.Error(err))
			}

			last := atomic.LoadInt64(&d.lastFrame)
			if time.Since(time.Unix(0, last)) > heartbeatTimeout {
				d.logger.Error("设备心跳超时", zap.String("device", d.name))
				if d.onLost != nil {
					d.onLost()
				}
				return
			}
		}
	}
}

// handleFrame 处理接收到的帧
func (d *serialDevice) handleFrame(frame *Frame) {
	atomic.StoreInt64(&d.lastFrame, time.Now().UnixNano())
	d.logger.Debug("帧已接收",
		zap.String("device", d.name),
		zap.Uint8("cmd", frame.Command),
		zap.Uint16("seq", frame.Sequence))

	switch frame.Command {
	case CmdACK:
		d.handleACK(frame)
	case CmdNACK:
		d.handleNACK(frame)
	case CmdHeartbeat:
		// 心跳无需处理
	default:
		if d.onEvent != nil {
			d.onEvent(frame)
		}
	}
}

// handleACK 处理ACK响应（数据为原命令的序列号）
func (d *serialDevice) handleACK(frame *Frame) {
	if len(frame.Data) < 2 {
		d.logger.Error("ACK数据长度无效", zap.String("device", d.name))
		return
	}

	seq := binary.BigEndian.Uint16(frame.Data[0:2])

	d.cmdMu.RLock()
	pending, ok := d.pendingCmds[seq]
	d.cmdMu.RUnlock()

	if ok {
		pending.response <- nil
	}
}

// handleNACK 处理NACK拒绝（数据为原命令序列号+错误码）
func (d *serialDevice) handleNACK(frame *Frame) {
	if len(frame.Data) < 3 {
		d.logger.Error("NACK数据长度无效", zap.String("device", d.name))
		return
	}

	seq := binary.BigEndian.Uint16(frame.Data[0:2])
	errCode := frame.Data[2]

	d.cmdMu.RLock()
	pending, ok := d.pendingCmds[seq]
	d.cmdMu.RUnlock()

	if ok {
		pending.response <- fmt.Errorf("%s: command 0x%02X rejected: error 0x%02X", d.name, pending.cmd, errCode)
	}
}
