// Package notify はタスク変更イベントのユーザー別メールボックスと
// 投入フック（Publisher）を提供する。
//
// メールボックスはIdentity（ユーザー名）ごとに1つだけ存在し、
// 投入側（タスク変更）と購読側（イベントストリーム）のどちらからでも
// 最初の参照時に生成される。
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrMailboxClosed はクローズ済みメールボックスへの操作で返される。
var ErrMailboxClosed = errors.New("mailbox is closed")

// ErrWaitTimeout はPopが待機時間内にイベントを受け取れなかった場合に返される。
var ErrWaitTimeout = errors.New("no event within wait timeout")

// Mailbox は1ユーザー分のFIFOイベントキュー。
// Pushは決してブロックしない。maxDepthが正の場合、満杯時は最古のイベントを破棄する。
type Mailbox struct {
	mu       sync.Mutex
	events   []model.Event
	ready    chan struct{} // Pushのたびにcloseして差し替える
	closed   bool
	maxDepth int
}

func newMailbox(maxDepth int) *Mailbox {
	return &Mailbox{
		ready:    make(chan struct{}),
		maxDepth: maxDepth,
	}
}

// Push はイベントを末尾に追加する。
// 上限により最古のイベントを破棄した場合はdropped=trueを返す。
func (m *Mailbox) Push(ev model.Event) (dropped bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrMailboxClosed
	}

	if m.maxDepth > 0 && len(m.events) >= m.maxDepth {
		m.events[0] = model.Event{}
		m.events = m.events[1:]
		dropped = true
	}
	m.events = append(m.events, ev)

	// 待機中の全リーダーを起こす
	close(m.ready)
	m.ready = make(chan struct{})

	return dropped, nil
}

// Pop は先頭のイベントを取り出す。キューが空の場合はwaitの間だけ待機する。
// ctxがキャンセル済みの場合はctx.Err()を返し、キューには触れない。
// 複数のリーダーが同じメールボックスを待つ場合、先に取り出した方が受け取る。
func (m *Mailbox) Pop(ctx context.Context, wait time.Duration) (model.Event, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		// 起床とキャンセルが同時に起きた場合もイベントを取り出さない
		if err := ctx.Err(); err != nil {
			return model.Event{}, err
		}

		m.mu.Lock()
		if len(m.events) > 0 {
			ev := m.events[0]
			m.events[0] = model.Event{}
			m.events = m.events[1:]
			m.mu.Unlock()
			return ev, nil
		}
		if m.closed {
			m.mu.Unlock()
			return model.Event{}, ErrMailboxClosed
		}
		ready := m.ready
		m.mu.Unlock()

		select {
		case <-ready:
			// 他のリーダーに先を越された場合は再度待つ
		case <-timer.C:
			return model.Event{}, ErrWaitTimeout
		case <-ctx.Done():
			return model.Event{}, ctx.Err()
		}
	}
}

// Len は未配信のイベント数を返す。
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// close はメールボックスをクローズし、待機中のリーダーを起こす。
// 未配信イベントはPopで引き続き取り出せる。
func (m *Mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ready)
	m.ready = make(chan struct{})
}

// Registry はIdentityからMailboxへの対応を管理する。
// プロセス起動時に1つ生成し、タスクサービスとストリームハンドラーに注入する。
type Registry struct {
	mu        sync.Mutex
	mailboxes map[string]*Mailbox
	maxDepth  int
	closed    bool
}

// NewRegistry はRegistryを生成する。
// maxDepthが0以下の場合、メールボックスは無制限になる。
func NewRegistry(maxDepth int) *Registry {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Registry{
		mailboxes: make(map[string]*Mailbox),
		maxDepth:  maxDepth,
	}
}

// GetOrCreate はidentityのメールボックスを返す。存在しなければ生成する。
// 同じidentityに対しては常に同一のインスタンスを返す。
func (r *Registry) GetOrCreate(identity string) *Mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mb, ok := r.mailboxes[identity]; ok {
		return mb
	}

	mb := newMailbox(r.maxDepth)
	if r.closed {
		mb.close()
	}
	r.mailboxes[identity] = mb
	return mb
}

// Len は生成済みのメールボックス数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mailboxes)
}

// Close は全メールボックスをクローズする。シャットダウン時に呼び出す。
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, mb := range r.mailboxes {
		mb.close()
	}
}
