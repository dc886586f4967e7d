package fsm

import (
	"go.uber.org/zap"
)

// ValidatorState 验钞器状态枚举
type ValidatorState string

const (
	ValidatorOffline    ValidatorState = "offline"      // 离线
	ValidatorOnline     ValidatorState = "online"       // 在线（未初始化）
	ValidatorError      ValidatorState = "error"        // 故障
	ValidatorReady      ValidatorState = "ready"        // 就绪
	ValidatorWaitBill   ValidatorState = "wait_bill"    // 等待纸币
	ValidatorConfirming ValidatorState = "bill_confirm" // 等待放行/拒收决定
)

// ValidatorListener 验钞器事件观察者，订阅方固定为 CashFSM（或其代理）
type ValidatorListener interface {
	ValidatorOnline()
	ValidatorOffline()
	ValidatorInitialized()
	ValidatorError(code int, text string)
	// CheckBill 一张纸币进入暂存，等待 PermitBill/BanBill 决定
	CheckBill(amount int64)
	// BillIn 纸币已放行收纳
	BillIn(amount int64)
}

// ValidatorFSM 纸币验钞器状态机。
// 独占管理设备的 在线/收钞/确认 生命周期，维护当前暂存纸币的金额。
// 纸币被拒收时只物理退钞，不向上层发事件。
// 非线程安全，必须由单一事件循环驱动。
type ValidatorFSM struct {
	state    ValidatorState
	driver   ValidatorDriver
	listener ValidatorListener
	logger   *zap.Logger

	escrowed int64 // 当前暂存纸币的金额，仅在 bill_confirm 状态有效

	rejectHook func(amount int64) // 纸币退回旁路通知，可为空
}

// NewValidatorFSM 创建验钞器状态机，初始状态为离线
func NewValidatorFSM(driver ValidatorDriver, logger *zap.Logger) *ValidatorFSM {
	return &ValidatorFSM{
		state:  ValidatorOffline,
		driver: driver,
		logger: logger.With(zap.String("fsm", "validator")),
	}
}

// SetListener 绑定事件观察者，必须在驱动产生事件前完成
func (v *ValidatorFSM) SetListener(l ValidatorListener) {
	v.listener = l
}

// SetRejectHook 绑定纸币退回通知。
// 拒收、就绪态自动退钞、故障退钞都经由这里，不属于上行事件契约——
// 被拒的纸币对上层观察者保持不可见。
func (v *ValidatorFSM) SetRejectHook(fn func(amount int64)) {
	v.rejectHook = fn
}

// State 当前状态
func (v *ValidatorFSM) State() ValidatorState {
	return v.state
}

// Start 启动设备
func (v *ValidatorFSM) Start() {
	if err := v.driver.StartDevice(); err != nil {
		v.logger.Error("启动验钞器失败", zap.Error(err))
	}
}

// Stop 停止设备
func (v *ValidatorFSM) Stop() {
	if err := v.driver.StopDevice(); err != nil {
		v.logger.Error("停止验钞器失败", zap.Error(err))
	}
}

// Online 设备上线事件
func (v *ValidatorFSM) Online() {
	switch v.state {
	case ValidatorOffline:
		v.transition(ValidatorOnline, "online")
		v.listener.ValidatorOnline()
	default:
		v.ignore("online")
	}
}

// Initialized 设备初始化完成事件。
// 初始化完成即打开纸币入口，计划外塞入的纸币会走就绪态自动拒收。
func (v *ValidatorFSM) Initialized() {
	switch v.state {
	case ValidatorOnline:
		v.transition(ValidatorReady, "initialized")
		v.startAcceptDevice()
		v.listener.ValidatorInitialized()
	default:
		v.ignore("initialized")
	}
}

// StartAccept 开始收钞命令
func (v *ValidatorFSM) StartAccept() {
	switch v.state {
	case ValidatorReady:
		v.transition(ValidatorWaitBill, "start_accept")
		v.startAcceptDevice()
	default:
		v.ignore("start_accept")
	}
}

// StopAccept 停止收钞命令
func (v *ValidatorFSM) StopAccept() {
	switch v.state {
	case ValidatorWaitBill:
		v.transition(ValidatorReady, "stop_accept")
		v.stopAcceptDevice()
	default:
		v.ignore("stop_accept")
	}
}

// CheckBill 设备报告一张纸币进入暂存。
// 等待纸币时暂存金额并上报，由汇总层决定放行或拒收；
// 就绪态（没人等待决定）直接退钞。
func (v *ValidatorFSM) CheckBill(amount int64) {
	switch v.state {
	case ValidatorWaitBill:
		v.escrowed = amount
		v.transition(ValidatorConfirming, "check_bill")
		v.listener.CheckBill(amount)
	case ValidatorReady:
		v.logger.Info("就绪态收到纸币，自动退回", zap.Int64("amount", amount))
		v.returnBillDevice()
		v.notifyReject(amount)
	default:
		v.ignore("check_bill")
	}
}

// BanBill 拒收命令：物理退回暂存纸币，不发上行事件
func (v *ValidatorFSM) BanBill() {
	switch v.state {
	case ValidatorConfirming:
		v.logger.Info("拒收纸币", zap.Int64("amount", v.escrowed))
		v.returnBillDevice()
		v.notifyReject(v.escrowed)
		v.transition(ValidatorReady, "ban_bill")
	default:
		v.ignore("ban_bill")
	}
}

// PermitBill 放行命令：物理收纳暂存纸币并上报 bill_in
func (v *ValidatorFSM) PermitBill() {
	switch v.state {
	case ValidatorConfirming:
		amount := v.escrowed
		if err := v.driver.StackBill(); err != nil {
			v.logger.Error("下发收纳纸币命令失败", zap.Error(err))
		}
		v.transition(ValidatorReady, "permit_bill")
		v.listener.BillIn(amount)
	default:
		v.ignore("permit_bill")
	}
}

// Error 设备故障事件。停止收钞并退回暂存纸币——
// 故障时绝不能把暂存的纸币悄悄留下。
func (v *ValidatorFSM) Error(code int, text string) {
	switch v.state {
	case ValidatorOnline, ValidatorReady, ValidatorWaitBill, ValidatorConfirming:
		v.stopAcceptDevice()
		v.returnBillDevice()
		if v.state == ValidatorConfirming {
			v.notifyReject(v.escrowed)
		}
		v.transition(ValidatorError, "error")
		v.logger.Error("验钞器故障",
			zap.Int("code", code),
			zap.String("text", text))
		v.listener.ValidatorError(code, text)
	default:
		v.ignore("error")
	}
}

// Offline 设备离线事件，任何状态都可进入
func (v *ValidatorFSM) Offline() {
	switch v.state {
	case ValidatorOffline:
		v.ignore("offline")
	default:
		v.transition(ValidatorOffline, "offline")
		v.listener.ValidatorOffline()
	}
}

func (v *ValidatorFSM) startAcceptDevice() {
	if err := v.driver.StartAccept(); err != nil {
		v.logger.Error("下发开始收钞命令失败", zap.Error(err))
	}
}

func (v *ValidatorFSM) stopAcceptDevice() {
	if err := v.driver.StopAccept(); err != nil {
		v.logger.Error("下发停止收钞命令失败", zap.Error(err))
	}
}

func (v *ValidatorFSM) notifyReject(amount int64) {
	if v.rejectHook != nil {
		v.rejectHook(amount)
	}
}

func (v *ValidatorFSM) returnBillDevice() {
	if err := v.driver.ReturnBill(); err != nil {
		v.logger.Error("下发退钞命令失败", zap.Error(err))
	}
}

func (v *ValidatorFSM) transition(to ValidatorState, event string) {
	v.logger.Info("状态转换",
		zap.String("from", string(v.state)),
		zap.String("to", string(to)),
		zap.String("event", event))
	v.state = to
}

func (v *ValidatorFSM) ignore(event string) {
	v.logger.Debug("忽略事件",
		zap.String("state", string(v.state)),
		zap.String("event", event))
}
