package fsm

// 金额一律用最小货币单位的非负整数表示，只做整数加减，不用浮点。

// ChangerDriver 硬币找零器驱动命令契约。
// 命令全部是“发出即忘”：执行结果只能通过后续的设备事件观察到。
type ChangerDriver interface {
	StartDevice() error
	StopDevice() error
	StartAccept() error
	StopAccept() error
	// DispenseAmount 按金额出币，驱动自行拆分面额
	DispenseAmount(amount int64) error
	// StopDispense 中断进行中的出币
	StopDispense() error
	// CanDispenseAmount 查询当前硬币库存能否凑出指定金额（纯查询，不改状态）
	CanDispenseAmount(amount int64) bool
}

// ValidatorDriver 纸币验钞器驱动命令契约
type ValidatorDriver interface {
	StartDevice() error
	StopDevice() error
	StartAccept() error
	StopAccept() error
	// StackBill 收纳当前暂存的纸币
	StackBill() error
	// ReturnBill 退回当前暂存的纸币
	ReturnBill() error
}

// PreparationUnit 商品制备单元（PLC）契约，
// 结果通过 prepared / not_prepared 事件回报。
type PreparationUnit interface {
	Prepare(product string) error
}

// AcceptTimer 收款窗口定时器契约。
// 由外部调度器实现：Start 重新计时，到期后向事件循环投递
// CashFSM.AcceptTimeout；Stop 取消未触发的计时。
type AcceptTimer interface {
	Start()
	Stop()
}
