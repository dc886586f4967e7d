package kiosk

import (
	"sync"

	"go.uber.org/zap"
)

// Loop 单消费者事件循环。
// 所有状态机事件都投递到这里串行执行，状态机因此无需加锁。
type Loop struct {
	ch     chan func()
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewLoop 创建事件循环
func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		ch:     make(chan func(), 256),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Start 启动消费协程
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.ch:
			l.invoke(fn)
		case <-l.quit:
			// 退出前排空已入队的事件
			for {
				select {
				case fn := <-l.ch:
					l.invoke(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("事件处理panic", zap.Any("panic", r))
		}
	}()
	fn()
}

// Post 投递事件。循环已停止时静默丢弃。
func (l *Loop) Post(fn func()) {
	select {
	case <-l.quit:
	case l.ch <- fn:
	}
}

// Call 投递事件并等待其执行完毕。
// 禁止在循环内部调用，会死锁。
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-l.quit:
	}
}

// Stop 停止循环，等待消费协程退出
func (l *Loop) Stop() {
	l.once.Do(func() {
		close(l.quit)
	})
	l.wg.Wait()
}
