package hardware

import (
	"encoding/binary"
	"fmt"
)

// 帧定义
const (
	FrameHeader byte   = 0xAA
	FrameTail   byte   = 0x55
	MinFrameLen uint16 = 9 // 最小帧长度：帧头(1) + 长度(2) + 命令(1) + 序列号(2) + CRC(2) + 帧尾(1)
)

// 命令码定义
const (
	// 设备控制指令（控制器→设备）
	CmdReset           byte = 0x01 // 设备复位
	CmdShutdown        byte = 0x02 // 设备停机
	CmdEnableAccept    byte = 0x03 // 开启收款
	CmdDisableAccept   byte = 0x04 // 关闭收款
	CmdDispenseCoin    byte = 0x05 // 出币（按面额+数量）
	CmdStopDispense    byte = 0x06 // 停止出币
	CmdStackBill       byte = 0x07 // 收纳暂存纸币
	CmdReturnBill      byte = 0x08 // 退回暂存纸币
	CmdDispenseProduct byte = 0x09 // 出货（PLC）

	// 设备事件上报（设备→控制器）
	EventDeviceOnline byte = 0x11 // 设备上线
	EventDeviceReady  byte = 0x12 // 复位完成
	EventCoinIn       byte = 0x13 // 投币检测
	EventCoinOut      byte = 0x14 // 出币检测
	EventBillEscrow   byte = 0x15 // 纸币进入暂存区
	EventProductOut   byte = 0x16 // 出货完成
	EventProductFail  byte = 0x17 // 出货失败

	// 状态管理
	CmdTubeStatusQuery byte = 0x21 // 币管余量查询
	EventTubeStatus    byte = 0x22 // 币管余量上报
	EventFaultReport   byte = 0x23 // 故障上报

	// 系统指令
	CmdHeartbeat byte = 0x31 // 心跳包
	CmdACK       byte = 0x80 // ACK确认
	CmdNACK      byte = 0x81 // NACK拒绝
)

// 故障码定义
const (
	FaultCoinJam      byte = 0x01 // 卡币
	FaultTubeEmpty    byte = 0x02 // 币管空
	FaultStackerFull  byte = 0x03 // 钱箱满
	FaultBillJam      byte = 0x04 // 卡钞
	FaultEscrowStuck  byte = 0x05 // 暂存区卡滞
	FaultMotorStuck   byte = 0x06 // 电机卡死
	FaultSensorError  byte = 0x07 // 传感器异常
	FaultProductStuck byte = 0x08 // 出货通道卡滞
)

// 故障严重级别
const (
	FaultLevelInfo     byte = 0x01 // 提示
	FaultLevelWarning  byte = 0x02 // 警告
	FaultLevelError    byte = 0x03 // 错误
	FaultLevelCritical byte = 0x04 // 严重
)

// NACK错误码定义
const (
	ErrorUnsupported  byte = 0x01 // 命令不支持
	ErrorInvalidParam byte = 0x02 // 参数错误
	ErrorBusy         byte = 0x03 // 设备忙
	ErrorHardware     byte = 0x04 // 硬件故障
	ErrorChecksum     byte = 0x05 // 校验失败
)

// Frame 数据帧结构
type Frame struct {
	Header   byte   // 帧头
	Length   uint16 // 长度
	Command  byte   // 命令码
	Sequence uint16 // 序列号
	Data     []byte // 数据
	CRC16    uint16 // CRC校验
	Tail     byte   // 帧尾
}

// FaultEvent 故障事件
type FaultEvent struct {
	FaultCode byte // 故障码
	Level     byte // 严重级别
}

// TubeStatus 币管余量（每个面额码一个计数）
type TubeStatus struct {
	Counts []uint16
}

// NewFrame 创建新的数据帧
func NewFrame(cmd byte, seq uint16, data []byte) *Frame {
	f := &Frame{
		Header:   FrameHeader,
		Command:  cmd,
		Sequence: seq,
		Data:     data,
		Tail:     FrameTail,
	}

	// 计算长度（整个帧的长度）
	f.Length = uint16(9 + len(data))

	// 计算CRC
	f.CRC16 = f.CalculateCRC()

	return f
}

// ToBytes 将帧转换为字节数组
func (f *Frame) ToBytes() []byte {
	buf := make([]byte, f.Length)
	idx := 0

	// 帧头
	buf[idx] = f.Header
	idx++

	// 长度（大端序）
	binary.BigEndian.PutUint16(buf[idx:], f.Length)
	idx += 2

	// 命令
	buf[idx] = f.Command
	idx++

	// 序列号（大端序）
	binary.BigEndian.PutUint16(buf[idx:], f.Sequence)
	idx += 2

	// 数据
	if len(f.Data) > 0 {
		copy(buf[idx:], f.Data)
		idx += len(f.Data)
	}

	// CRC16（大端序）
	binary.BigEndian.PutUint16(buf[idx:], f.CRC16)
	idx += 2

	// 帧尾
	buf[idx] = f.Tail

	return buf
}

// FromBytes 从字节数组解析帧
func (f *Frame) FromBytes(data []byte) error {
	if len(data) < int(MinFrameLen) {
		return fmt.Errorf("frame too short: %d < %d", len(data), MinFrameLen)
	}

	// 检查帧头
	if data[0] != FrameHeader {
		return fmt.Errorf("invalid frame header: 0x%02X", data[0])
	}

	// 解析长度
	f.Header = data[0]
	f.Length = binary.BigEndian.Uint16(data[1:3])

	// 检查数据长度
	if len(data) < int(f.Length) {
		return fmt.Errorf("incomplete frame: %d < %d", len(data), f.Length)
	}

	// 检查帧尾
	if data[f.Length-1] != FrameTail {
		return fmt.Errorf("invalid frame tail: 0x%02X", data[f.Length-1])
	}

	// 解析字段
	f.Command = data[3]
	f.Sequence = binary.BigEndian.Uint16(data[4:6])

	// 解析数据
	dataLen := f.Length - 9
	if dataLen > 0 {
		f.Data = make([]byte, dataLen)
		copy(f.Data, data[6:6+dataLen])
	}

	// 解析CRC
	crcIdx := f.Length - 3
	f.CRC16 = binary.BigEndian.Uint16(data[crcIdx : crcIdx+2])
	f.Tail = data[f.Length-1]

	// 验证CRC
	calcCRC := f.CalculateCRC()
	if calcCRC != f.CRC16 {
		return fmt.Errorf("CRC mismatch: calc=0x%04X, recv=0x%04X", calcCRC, f.CRC16)
	}

	return nil
}

// CalculateCRC 计算CRC16校验值
func (f *Frame) CalculateCRC() uint16 {
	// 计算从命令码到数据的CRC
	data := make([]byte, 0, 3+len(f.Data))
	data = append(data, f.Command)
	data = append(data, byte(f.Sequence>>8), byte(f.Sequence&0xFF))
	if len(f.Data) > 0 {
		data = append(data, f.Data...)
	}
	return CRC16XMODEM(data)
}

// CRC16XMODEM CRC16-XMODEM算法
func CRC16XMODEM(data []byte) uint16 {
	crc := uint16(0x0000)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ParseFaultEvent 解析故障事件数据
func ParseFaultEvent(data []byte) (*FaultEvent, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("fault event too short: %d", len(data))
	}
	return &FaultEvent{
		FaultCode: data[0],
		Level:     data[1],
	}, nil
}

// ParseTubeStatus 解析币管余量数据（每面额2字节大端序计数）
func ParseTubeStatus(data []byte) (*TubeStatus, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("tube status length must be even: %d", len(data))
	}
	status := &TubeStatus{
		Counts: make([]uint16, len(data)/2),
	}
	for i := range status.Counts {
		status.Counts[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return status, nil
}

// FaultText 故障码的可读描述
func FaultText(code byte) string {
	switch code {
	case FaultCoinJam:
		return "coin jam"
	case FaultTubeEmpty:
		return "coin tube empty"
	case FaultStackerFull:
		return "bill stacker full"
	case FaultBillJam:
		return "bill jam"
	case FaultEscrowStuck:
		return "escrow stuck"
	case FaultMotorStuck:
		return "motor stuck"
	case FaultSensorError:
		return "sensor error"
	case FaultProductStuck:
		return "product channel stuck"
	default:
		return fmt.Sprintf("unknown fault 0x%02X", code)
	}
}
