// Package fsm 实现售货亭现金控制的状态机网络：
//
//   - ChangerFSM   硬币找零器设备状态机
//   - ValidatorFSM 纸币验钞器设备状态机
//   - CashFSM      现金汇总状态机（组合上面两个设备状态机）
//   - KioskFSM     销售流程状态机（组合 CashFSM 与制备单元）
//
// 设备事件自下而上传递（设备状态机 → CashFSM → KioskFSM），
// 命令自上而下下发（KioskFSM → CashFSM → 设备状态机 → 驱动）。
// 事件订阅关系固定为 1:1，通过窄观察者接口连接，不使用全局事件总线。
//
// 所有状态机都不加锁：同一个状态机的转换必须在单一事件循环中串行执行
// （见 internal/kiosk 包），任何设备 I/O 回调都要先投递到该循环再分发。
// 未在转换表中列出的 (状态, 事件) 组合一律原地忽略，不产生副作用。
package fsm
