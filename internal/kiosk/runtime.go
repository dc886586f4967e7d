package kiosk

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/errors"
	"github.com/wfunc/cash-kiosk/internal/fsm"
	"github.com/wfunc/cash-kiosk/internal/hardware"
	"github.com/wfunc/cash-kiosk/internal/logger"
	"github.com/wfunc/cash-kiosk/internal/models"
	"github.com/wfunc/cash-kiosk/internal/repository"
	"go.uber.org/zap"
)

// ChangerDevice 找零器设备面：命令契约 + 事件回调注册
type ChangerDevice interface {
	fsm.ChangerDriver
	SetOnlineCallback(fn func())
	SetOfflineCallback(fn func())
	SetInitializedCallback(fn func())
	SetCoinInCallback(fn func(amount int64))
	SetCoinOutCallback(fn func(amount int64))
	SetErrorCallback(fn func(code int, text string))
}

// ValidatorDevice 验钞器设备面：命令契约 + 事件回调注册
type ValidatorDevice interface {
	fsm.ValidatorDriver
	SetOnlineCallback(fn func())
	SetOfflineCallback(fn func())
	SetInitializedCallback(fn func())
	SetBillEscrowCallback(fn func(amount int64))
	SetErrorCallback(fn func(code int, text string))
}

// PLCDevice 制备单元设备面
type PLCDevice interface {
	fsm.PreparationUnit
	StartDevice() error
	StopDevice() error
	SetPreparedCallback(fn func())
	SetNotPreparedCallback(fn func())
}

// Devices 运行时依赖的三台外设
type Devices struct {
	Changer   ChangerDevice
	Validator ValidatorDevice
	PLC       PLCDevice
}

// BuildDevices 根据配置构建外设：调试模式用模拟设备，否则走串口
func BuildDevices(cfg *config.Config) *Devices {
	coinTable := hardware.DenominationTable(cfg.Kiosk.CoinValues)
	billTable := hardware.DenominationTable(cfg.Kiosk.BillValues)

	if cfg.Serial.MockMode {
		return &Devices{
			Changer:   hardware.NewMockChanger(coinTable),
			Validator: hardware.NewMockValidator(billTable),
			PLC:       hardware.NewMockPLC(),
		}
	}

	return &Devices{
		Changer:   hardware.NewChangerController(cfg.Serial.Changer, coinTable),
		Validator: hardware.NewValidatorController(cfg.Serial.Validator, billTable),
		PLC:       hardware.NewPLCController(cfg.Serial.PLC, productSlots(cfg.Kiosk.Products)),
	}
}

// productSlots 把商品表映射为PLC货道号（按配置顺序无关的稳定分配）
func productSlots(products map[string]int64) map[string]byte {
	names := make([]string, 0, len(products))
	for name := range products {
		names = append(names, name)
	}
	// 排序保证每次启动分配一致
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	slots := make(map[string]byte, len(names))
	for i, name := range names {
		slots[name] = byte(i + 1)
	}
	return slots
}

// StatusSnapshot 售货亭状态快照（事件循环内取得，内部一致）
type StatusSnapshot struct {
	KioskState     string `json:"kiosk_state"`
	CashState      string `json:"cash_state"`
	ChangerState   string `json:"changer_state"`
	ValidatorState string `json:"validator_state"`
	SaleID         string `json:"sale_id,omitempty"`
	Product        string `json:"product,omitempty"`
	AcceptedAmount int64  `json:"accepted_amount"`
}

// Runtime 售货亭运行时：装配外设、状态机与事件循环，
// 对操作端暴露 Sell/Restart/Status/Subscribe。
type Runtime struct {
	cfg     *config.Config
	loop    *Loop
	devices *Devices
	logger  *zap.Logger

	changer   *fsm.ChangerFSM
	validator *fsm.ValidatorFSM
	cash      *fsm.CashFSM
	kiosk     *fsm.KioskFSM

	events *repository.CashEventRepository // 可为空（无数据库时不落流水）

	saleID string // 当前销售的UUID，仅在事件循环内读写

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewRuntime 创建运行时并完成全部装配
func NewRuntime(cfg *config.Config, devices *Devices, events *repository.CashEventRepository) *Runtime {
	log := logger.GetModuleLogger("kiosk")

	r := &Runtime{
		cfg:         cfg,
		loop:        NewLoop(log),
		devices:     devices,
		logger:      log,
		events:      events,
		subscribers: make(map[chan Event]struct{}),
	}

	// 状态机网络
	r.changer = fsm.NewChangerFSM(devices.Changer, log)
	r.validator = fsm.NewValidatorFSM(devices.Validator, log)
	timer := newAcceptTimer(r.loop, cfg.Kiosk.AcceptTimeout, func() {
		r.cash.AcceptTimeout()
	})
	r.cash = fsm.NewCashFSM(r.changer, r.validator, timer, log)
	r.kiosk = fsm.NewKioskFSM(r.cash, devices.PLC, cfg.Kiosk.Products, log)

	// 事件旁路：在原有订阅关系中插入发布探针
	r.changer.SetListener(&changerTap{next: r.cash, r: r})
	r.validator.SetListener(&validatorTap{next: r.cash, r: r})
	r.cash.SetListener(&cashTap{next: r.kiosk, r: r})
	r.kiosk.SetListener(r)

	// 拒钞与出币开始对上行事件链不可见，只进流水
	r.validator.SetRejectHook(func(amount int64) {
		r.publish(Event{
			Type:   models.CashEventBillRejected,
			Device: models.DeviceValidator,
			Amount: amount,
		})
	})
	r.changer.SetDispenseHook(func(amount int64) {
		r.publish(Event{
			Type:   models.CashEventDispenseStart,
			Device: models.DeviceChanger,
			Amount: amount,
		})
	})

	// 设备事件全部经事件循环串行进入状态机
	r.wireDevices()

	return r
}

// wireDevices 注册设备回调，把硬件事件转投到事件循环
func (r *Runtime) wireDevices() {
	d := r.devices

	d.Changer.SetOnlineCallback(func() { r.loop.Post(r.changer.Online) })
	d.Changer.SetOfflineCallback(func() { r.loop.Post(r.changer.Offline) })
	d.Changer.SetInitializedCallback(func() { r.loop.Post(r.changer.Initialized) })
	d.Changer.SetCoinInCallback(func(amount int64) {
		r.loop.Post(func() { r.changer.CoinIn(amount) })
	})
	d.Changer.SetCoinOutCallback(func(amount int64) {
		r.loop.Post(func() { r.changer.CoinOut(amount) })
	})
	d.Changer.SetErrorCallback(func(code int, text string) {
		r.loop.Post(func() { r.changer.Error(code, text) })
	})

	d.Validator.SetOnlineCallback(func() { r.loop.Post(r.validator.Online) })
	d.Validator.SetOfflineCallback(func() { r.loop.Post(r.validator.Offline) })
	d.Validator.SetInitializedCallback(func() { r.loop.Post(r.validator.Initialized) })
	d.Validator.SetBillEscrowCallback(func(amount int64) {
		r.loop.Post(func() { r.validator.CheckBill(amount) })
	})
	d.Validator.SetErrorCallback(func(code int, text string) {
		r.loop.Post(func() { r.validator.Error(code, text) })
	})

	d.PLC.SetPreparedCallback(func() {
		r.loop.Post(func() {
			r.publish(Event{Type: models.CashEventPrepared, Device: models.DeviceKiosk})
			r.kiosk.Prepared()
		})
	})
	d.PLC.SetNotPreparedCallback(func() {
		r.loop.Post(func() {
			r.publish(Event{Type: models.CashEventNotPrepared, Device: models.DeviceKiosk})
			r.kiosk.NotPrepared()
		})
	})
}

// Start 启动事件循环与售货亭
func (r *Runtime) Start() error {
	if err := r.devices.PLC.StartDevice(); err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, "PLC启动失败")
	}

	r.loop.Start()
	r.loop.Post(r.kiosk.Start)
	r.logger.Info("售货亭运行时已启动")
	return nil
}

// Stop 停止售货亭与事件循环
func (r *Runtime) Stop() {
	r.loop.Call(r.kiosk.Stop)
	r.loop.Stop()
	if err := r.devices.PLC.StopDevice(); err != nil {
		r.logger.Warn("PLC停机失败", zap.Error(err))
	}
	r.logger.Info("售货亭运行时已停止")
}

// Sell 开始销售指定商品，返回本次销售的UUID
func (r *Runtime) Sell(product string) (string, error) {
	var (
		saleID string
		err    error
	)
	r.loop.Call(func() {
		if _, ok := r.cfg.Kiosk.Products[product]; !ok {
			err = errors.Newf(errors.ErrUnknownProduct, "商品: %s", product)
			return
		}
		switch r.kiosk.State() {
		case fsm.KioskReady:
		case fsm.KioskStartSell, fsm.KioskStartPrepare, fsm.KioskStartDispense:
			err = errors.New(errors.ErrSaleInProgress)
			return
		default:
			err = errors.Newf(errors.ErrKioskNotReady, "状态: %s", r.kiosk.State())
			return
		}

		saleID = uuid.NewString()
		r.saleID = saleID
		r.publish(Event{
			Type:    models.CashEventSaleStart,
			Device:  models.DeviceKiosk,
			Product: product,
		})
		r.kiosk.Sell(product)
	})
	return saleID, err
}

// Restart 故障后由操作端重启售货亭
func (r *Runtime) Restart() error {
	var err error
	r.loop.Call(func() {
		switch r.kiosk.State() {
		case fsm.KioskInit, fsm.KioskError:
			r.publish(Event{
				Type:   models.CashEventRestart,
				Device: models.DeviceKiosk,
			})
			r.kiosk.Start()
		default:
			err = errors.Newf(errors.ErrKioskNotReady, "当前状态无需重启: %s", r.kiosk.State())
		}
	})
	return err
}

// Status 取得内部一致的状态快照
func (r *Runtime) Status() StatusSnapshot {
	var snap StatusSnapshot
	r.loop.Call(func() {
		snap = StatusSnapshot{
			KioskState:     string(r.kiosk.State()),
			CashState:      string(r.cash.State()),
			ChangerState:   string(r.changer.State()),
			ValidatorState: string(r.validator.State()),
			SaleID:         r.saleID,
			Product:        r.kiosk.Product(),
			AcceptedAmount: r.cash.AcceptedAmount(),
		}
	})
	return snap
}

// QueryEvents 查询历史事件流水
func (r *Runtime) QueryEvents(query *models.CashEventQuery) ([]*models.CashEvent, int64, error) {
	if r.events == nil {
		return nil, 0, errors.New(errors.ErrDatabaseConnect, "事件流水未启用")
	}
	return r.events.Query(query)
}

// Subscribe 订阅实时事件流，返回取消函数
func (r *Runtime) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	r.subMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

// publish 发布事件：补全销售上下文，广播给订阅者并落流水。
// 只在事件循环内调用。
func (r *Runtime) publish(e Event) {
	if e.SaleID == "" {
		e.SaleID = r.saleID
	}
	if e.Product == "" {
		e.Product = r.kiosk.Product()
	}
	e.Timestamp = time.Now()

	r.subMu.RLock()
	for ch := range r.subscribers {
		select {
		case ch <- e:
		default:
			// 慢订阅者直接丢弃，不阻塞事件循环
		}
	}
	r.subMu.RUnlock()

	if r.events != nil {
		record := &models.CashEvent{
			SaleID:    e.SaleID,
			EventType: e.Type,
			Device:    e.Device,
			Amount:    e.Amount,
			Product:   e.Product,
			ErrorCode: e.ErrorCode,
			ErrorText: e.ErrorText,
		}
		go func() {
			if err := r.events.Create(record); err != nil {
				r.logger.Error("写入事件流水失败", zap.Error(err))
			}
		}()
	}
}

// ---- fsm.KioskListener ----

// KioskReady 售货亭就绪
func (r *Runtime) KioskReady() {
	r.publish(Event{
		Type:   models.CashEventDeviceReady,
		Device: models.DeviceKiosk,
	})
	r.saleID = ""
}

// ResetSell 本次销售被复位
func (r *Runtime) ResetSell() {
	r.publish(Event{
		Type:   models.CashEventSaleReset,
		Device: models.DeviceKiosk,
	})
	r.saleID = ""
}

// KioskError 售货亭故障
func (r *Runtime) KioskError(code int, text string) {
	r.publish(Event{
		Type:      models.CashEventDeviceError,
		Device:    models.DeviceKiosk,
		ErrorCode: strconv.Itoa(code),
		ErrorText: text,
	})
	r.saleID = ""
}

// ---- 事件旁路探针 ----

// changerTap 找零器事件旁路：转发给现金层并发布
type changerTap struct {
	next fsm.ChangerListener
	r    *Runtime
}

func (t *changerTap) ChangerOnline() { t.next.ChangerOnline() }

func (t *changerTap) ChangerOffline() {
	t.r.publish(Event{
		Type:      models.CashEventDeviceError,
		Device:    models.DeviceChanger,
		ErrorText: "device offline",
	})
	t.next.ChangerOffline()
}

func (t *changerTap) ChangerInitialized() { t.next.ChangerInitialized() }

func (t *changerTap) ChangerError(code int, text string) {
	t.r.publish(Event{
		Type:      models.CashEventDeviceError,
		Device:    models.DeviceChanger,
		ErrorCode: strconv.Itoa(code),
		ErrorText: text,
	})
	t.next.ChangerError(code, text)
}

func (t *changerTap) CoinIn(amount int64) {
	t.r.publish(Event{
		Type:   models.CashEventCoinIn,
		Device: models.DeviceChanger,
		Amount: amount,
	})
	// 就绪态（无进行中的销售）收到的硬币会被原路退回
	if t.r.cash.State() == fsm.CashReady {
		t.r.publish(Event{
			Type:   models.CashEventCoinReturned,
			Device: models.DeviceChanger,
			Amount: amount,
		})
	}
	t.next.CoinIn(amount)
}

func (t *changerTap) AmountDispensed(amount int64) {
	t.next.AmountDispensed(amount)
}

// validatorTap 验钞器事件旁路：转发给现金层并发布
type validatorTap struct {
	next fsm.ValidatorListener
	r    *Runtime
}

func (t *validatorTap) ValidatorOnline() { t.next.ValidatorOnline() }

func (t *validatorTap) ValidatorOffline() {
	t.r.publish(Event{
		Type:      models.CashEventDeviceError,
		Device:    models.DeviceValidator,
		ErrorText: "device offline",
	})
	t.next.ValidatorOffline()
}

func (t *validatorTap) ValidatorInitialized() { t.next.ValidatorInitialized() }

func (t *validatorTap) ValidatorError(code int, text string) {
	t.r.publish(Event{
		Type:      models.CashEventDeviceError,
		Device:    models.DeviceValidator,
		ErrorCode: strconv.Itoa(code),
		ErrorText: text,
	})
	t.next.ValidatorError(code, text)
}

func (t *validatorTap) CheckBill(amount int64) { t.next.CheckBill(amount) }

func (t *validatorTap) BillIn(amount int64) {
	t.r.publish(Event{
		Type:   models.CashEventBillIn,
		Device: models.DeviceValidator,
		Amount: amount,
	})
	t.next.BillIn(amount)
}

// cashTap 现金层事件旁路：转发给销售层并发布
type cashTap struct {
	next fsm.CashListener
	r    *Runtime
}

func (t *cashTap) CashReady() { t.next.CashReady() }

func (t *cashTap) CashError(code int, text string) {
	t.next.CashError(code, text)
}

func (t *cashTap) AmountAccepted(amount int64) {
	t.r.publish(Event{
		Type:   models.CashEventAmountAccepted,
		Device: models.DeviceCash,
		Amount: amount,
	})
	t.next.AmountAccepted(amount)
}

func (t *cashTap) AmountNotAccepted() {
	t.r.publish(Event{
		Type:   models.CashEventAmountUnpaid,
		Device: models.DeviceCash,
	})
	t.next.AmountNotAccepted()
}

func (t *cashTap) AmountDispensed(amount int64) {
	t.r.publish(Event{
		Type:   models.CashEventAmountDispensed,
		Device: models.DeviceCash,
		Amount: amount,
	})
	t.next.AmountDispensed(amount)
}
