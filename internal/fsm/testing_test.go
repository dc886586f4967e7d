package fsm

import (
	"go.uber.org/zap"
)

// 测试替身：记录命令调用序列的模拟驱动与记录事件的观察者。

// mockChanger 模拟找零器驱动，记录收到的命令
type mockChanger struct {
	calls       []string
	dispensed   []int64
	canDispense func(amount int64) bool
}

func newMockChanger() *mockChanger {
	return &mockChanger{
		canDispense: func(int64) bool { return true },
	}
}

func (m *mockChanger) StartDevice() error { m.calls = append(m.calls, "start_device"); return nil }
func (m *mockChanger) StopDevice() error  { m.calls = append(m.calls, "stop_device"); return nil }
func (m *mockChanger) StartAccept() error { m.calls = append(m.calls, "start_accept"); return nil }
func (m *mockChanger) StopAccept() error  { m.calls = append(m.calls, "stop_accept"); return nil }

func (m *mockChanger) DispenseAmount(amount int64) error {
	m.calls = append(m.calls, "dispense_amount")
	m.dispensed = append(m.dispensed, amount)
	return nil
}

func (m *mockChanger) StopDispense() error {
	m.calls = append(m.calls, "stop_dispense")
	return nil
}

func (m *mockChanger) CanDispenseAmount(amount int64) bool {
	return m.canDispense(amount)
}

func (m *mockChanger) reset() {
	m.calls = nil
	m.dispensed = nil
}

// mockValidator 模拟验钞器驱动，记录收到的命令
type mockValidator struct {
	calls []string
}

func (m *mockValidator) StartDevice() error { m.calls = append(m.calls, "start_device"); return nil }
func (m *mockValidator) StopDevice() error  { m.calls = append(m.calls, "stop_device"); return nil }
func (m *mockValidator) StartAccept() error { m.calls = append(m.calls, "start_accept"); return nil }
func (m *mockValidator) StopAccept() error  { m.calls = append(m.calls, "stop_accept"); return nil }
func (m *mockValidator) StackBill() error   { m.calls = append(m.calls, "stack_bill"); return nil }
func (m *mockValidator) ReturnBill() error  { m.calls = append(m.calls, "return_bill"); return nil }

func (m *mockValidator) reset() { m.calls = nil }

func (m *mockValidator) count(call string) int {
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// mockPLC 模拟制备单元，记录制备请求
type mockPLC struct {
	prepared []string
}

func (m *mockPLC) Prepare(product string) error {
	m.prepared = append(m.prepared, product)
	return nil
}

// stubTimer 模拟收款窗口定时器，只计数不计时
type stubTimer struct {
	started int
	stopped int
}

func (t *stubTimer) Start() { t.started++ }
func (t *stubTimer) Stop()  { t.stopped++ }

// changerEvent/validatorEvent 观察者记录到的事件
type recordedEvent struct {
	name   string
	amount int64
	code   int
	text   string
}

// changerRecorder 记录找零器状态机发出的事件
type changerRecorder struct {
	events []recordedEvent
}

func (r *changerRecorder) ChangerOnline()      { r.record("online", 0) }
func (r *changerRecorder) ChangerOffline()     { r.record("offline", 0) }
func (r *changerRecorder) ChangerInitialized() { r.record("initialized", 0) }
func (r *changerRecorder) CoinIn(amount int64) { r.record("coin_in", amount) }
func (r *changerRecorder) AmountDispensed(amount int64) {
	r.record("amount_dispensed", amount)
}
func (r *changerRecorder) ChangerError(code int, text string) {
	r.events = append(r.events, recordedEvent{name: "error", code: code, text: text})
}

func (r *changerRecorder) record(name string, amount int64) {
	r.events = append(r.events, recordedEvent{name: name, amount: amount})
}

// validatorRecorder 记录验钞器状态机发出的事件
type validatorRecorder struct {
	events []recordedEvent
}

func (r *validatorRecorder) ValidatorOnline()       { r.record("online", 0) }
func (r *validatorRecorder) ValidatorOffline()      { r.record("offline", 0) }
func (r *validatorRecorder) ValidatorInitialized()  { r.record("initialized", 0) }
func (r *validatorRecorder) CheckBill(amount int64) { r.record("check_bill", amount) }
func (r *validatorRecorder) BillIn(amount int64)    { r.record("bill_in", amount) }
func (r *validatorRecorder) ValidatorError(code int, text string) {
	r.events = append(r.events, recordedEvent{name: "error", code: code, text: text})
}

func (r *validatorRecorder) record(name string, amount int64) {
	r.events = append(r.events, recordedEvent{name: name, amount: amount})
}

// cashRecorder 记录现金汇总状态机发出的事件
type cashRecorder struct {
	events []recordedEvent
}

func (r *cashRecorder) CashReady()                  { r.record("ready", 0) }
func (r *cashRecorder) AmountAccepted(amount int64) { r.record("accepted", amount) }
func (r *cashRecorder) AmountNotAccepted()          { r.record("not_accepted", 0) }
func (r *cashRecorder) AmountDispensed(amount int64) {
	r.record("dispensed", amount)
}
func (r *cashRecorder) CashError(code int, text string) {
	r.events = append(r.events, recordedEvent{name: "error", code: code, text: text})
}

func (r *cashRecorder) record(name string, amount int64) {
	r.events = append(r.events, recordedEvent{name: name, amount: amount})
}

// kioskRecorder 记录销售流程状态机发出的事件
type kioskRecorder struct {
	events []recordedEvent
}

func (r *kioskRecorder) KioskReady() { r.record("ready", 0) }
func (r *kioskRecorder) ResetSell()  { r.record("reset_sell", 0) }
func (r *kioskRecorder) KioskError(code int, text string) {
	r.events = append(r.events, recordedEvent{name: "error", code: code, text: text})
}

func (r *kioskRecorder) record(name string, amount int64) {
	r.events = append(r.events, recordedEvent{name: name, amount: amount})
}

func (r *kioskRecorder) names() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.name)
	}
	return out
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
