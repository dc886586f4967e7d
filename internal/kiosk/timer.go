package kiosk

import (
	"sync"
	"time"
)

// acceptTimer 收款窗口定时器，实现 fsm.AcceptTimer。
// 到期事件通过事件循环投递；代数计数保证已取消或已过期的
// 计时不会误触发下一次收款。
type acceptTimer struct {
	loop    *Loop
	timeout time.Duration
	fire    func() // 到期时在循环内执行

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newAcceptTimer(loop *Loop, timeout time.Duration, fire func()) *acceptTimer {
	return &acceptTimer{
		loop:    loop,
		timeout: timeout,
		fire:    fire,
	}
}

// Start 重新开始计时
func (t *acceptTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen

	t.timer = time.AfterFunc(t.timeout, func() {
		t.loop.Post(func() {
			t.mu.Lock()
			live := t.gen == gen
			t.mu.Unlock()
			if live {
				t.fire()
			}
		})
	})
}

// Stop 取消未触发的计时
func (t *acceptTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
