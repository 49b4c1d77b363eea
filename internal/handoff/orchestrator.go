// Package handoff реализует машину состояний передачи строки подписки в
// VPN-клиент: попытка перехода по deep-link, окно ожидания подтверждения и
// ручное восстановление. ОС не сообщает, перехватило ли другое приложение
// переход, поэтому «неудача» здесь — эвристика по таймауту, а не ошибка.
package handoff

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oblepiha-vpn/miniapp/internal/deeplink"
	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
	"github.com/oblepiha-vpn/miniapp/internal/metrics"
)

// State — состояние цикла передачи.
type State string

const (
	// StateIdle — начальное состояние, попытка не запускалась.
	StateIdle State = "idle"
	// StateAttempting — выполняется переход по кандидату.
	StateAttempting State = "attempting"
	// StateAwaitingConfirmation — идёт окно ожидания после перехода.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateManual — передача не подтвердилась, доступны ручные действия:
	// повтор, копирование, QR.
	StateManual State = "manual"
)

const (
	// ConfirmWindow — фиксированное окно ожидания после перехода.
	// Если по его истечении страница всё ещё активна, считаем, что
	// клиент не открылся.
	ConfirmWindow = 2 * time.Second
	// Countdown — необязательный отсчёт перед автоматической попыткой.
	// Чисто темп UX, на корректность не влияет; пропускается явным Start.
	Countdown = 3 * time.Second
)

// ErrNoCandidates возвращается, когда строки подписки нет и пытаться нечем.
var ErrNoCandidates = errors.New("no deep link candidates")

// ErrClosed возвращается после Close.
var ErrClosed = errors.New("handoff orchestrator closed")

// Bridge — возможности хоста, нужные оркестратору.
type Bridge interface {
	OpenLink(url string) error
	WriteClipboard(text string) error
}

// StopFunc отменяет запланированный таймер.
type StopFunc func()

// TimerFunc планирует вызов fn через d и возвращает отмену.
// Подменяется в тестах.
type TimerFunc func(d time.Duration, fn func()) StopFunc

func realTimer(d time.Duration, fn func()) StopFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Orchestrator ведёт один цикл передачи по списку кандидатов.
type Orchestrator struct {
	log    *slog.Logger
	bridge Bridge

	mu         sync.Mutex
	newTimer   TimerFunc
	candidates []deeplink.Candidate
	idx        int
	state      State
	gen        uint64
	stopTimer  StopFunc
	onState    func(State)
	closed     bool
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithTimer подменяет планировщик таймеров (для тестов).
func WithTimer(fn TimerFunc) Option {
	return func(o *Orchestrator) { o.newTimer = fn }
}

// WithStateFunc регистрирует обработчик смены состояния.
// Вызывается без удержания внутреннего мьютекса.
func WithStateFunc(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// New создаёт оркестратор для готового списка кандидатов.
func New(log *slog.Logger, bridge Bridge, candidates []deeplink.Candidate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:        log,
		bridge:     bridge,
		newTimer:   realTimer,
		candidates: candidates,
		idx:        firstNavigable(candidates),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State возвращает текущее состояние.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Candidates возвращает список кандидатов цикла.
func (o *Orchestrator) Candidates() []deeplink.Candidate {
	return o.candidates
}

// ArmCountdown планирует автоматическую попытку через Countdown.
// Явный Start отменяет отсчёт и запускает попытку сразу.
func (o *Orchestrator) ArmCountdown() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil
	}
	if o.idx < 0 {
		o.mu.Unlock()
		return ErrNoCandidates
	}

	o.cancelTimerLocked()
	gen := o.gen
	o.stopTimer = o.newTimer(Countdown, func() {
		o.attempt(gen, true)
	})
	o.mu.Unlock()
	return nil
}

// Start запускает попытку передачи: Idle → Attempting. Пустой список
// кандидатов — отказ без смены состояния.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.idx < 0 {
		o.mu.Unlock()
		return ErrNoCandidates
	}
	o.cancelTimerLocked()
	gen := o.gen
	o.mu.Unlock()

	o.attempt(gen, false)
	return nil
}

// Retry повторяет попытку из Manual тем же кандидатом.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateManual {
		o.mu.Unlock()
		return nil
	}
	o.cancelTimerLocked()
	gen := o.gen
	o.mu.Unlock()

	o.attempt(gen, false)
	return nil
}

// Advance переключается на следующий ходовой кандидат (по кругу)
// и повторяет попытку из Manual.
func (o *Orchestrator) Advance() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateManual {
		o.mu.Unlock()
		return nil
	}
	if next := nextNavigable(o.candidates, o.idx); next >= 0 {
		o.idx = next
	}
	o.cancelTimerLocked()
	gen := o.gen
	o.mu.Unlock()

	o.attempt(gen, false)
	return nil
}

// attempt выполняет переход по текущему кандидату и открывает окно
// подтверждения. gen защищает от срабатывания устаревшего таймера:
// если цикл уже перезапущен или закрыт, попытка молча пропускается.
func (o *Orchestrator) attempt(gen uint64, fromCountdown bool) {
	o.mu.Lock()
	if o.closed || gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.gen++
	gen = o.gen
	candidate := o.candidates[o.idx]
	o.setStateLocked(StateAttempting)
	o.mu.Unlock()

	metrics.HandoffAttemptsTotal.WithLabelValues(string(candidate.Kind)).Inc()
	o.log.Info("attempting handoff",
		slog.String("kind", string(candidate.Kind)),
		slog.Bool("from_countdown", fromCountdown))

	err := o.bridge.OpenLink(candidate.URI)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen {
		return
	}

	if err != nil {
		// переход даже не запустился — сразу ручной режим
		o.log.Warn("navigation failed", sl.Err(err))
		o.setStateLocked(StateManual)
		return
	}

	o.setStateLocked(StateAwaitingConfirmation)
	o.stopTimer = o.newTimer(ConfirmWindow, func() {
		o.confirmTimeout(gen)
	})
}

// confirmTimeout переводит цикл в ручной режим по истечении окна.
func (o *Orchestrator) confirmTimeout(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen || o.state != StateAwaitingConfirmation {
		return
	}
	metrics.HandoffTimeoutsTotal.Inc()
	o.log.Info("handoff not confirmed, falling back to manual recovery")
	o.setStateLocked(StateManual)
}

// Copy — гарантированный запасной вариант: строка подписки в буфер обмена.
// Ошибка означает, что буфер недоступен и вызывающему нужно показать
// строку для ручного копирования.
func (o *Orchestrator) Copy() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.idx < 0 {
		o.mu.Unlock()
		return ErrNoCandidates
	}
	credential := rawCredential(o.candidates)
	o.mu.Unlock()

	return o.bridge.WriteClipboard(credential)
}

// QR возвращает неходовой QR-кандидат, если он есть.
func (o *Orchestrator) QR() (deeplink.Candidate, bool) {
	for _, c := range o.candidates {
		if c.Kind == deeplink.KindQR {
			return c, true
		}
	}
	return deeplink.Candidate{}, false
}

// Close останавливает цикл. Сработавший после Close таймер ничего не меняет.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.gen++
	o.cancelTimerLocked()
}

func (o *Orchestrator) cancelTimerLocked() {
	if o.stopTimer != nil {
		o.stopTimer()
		o.stopTimer = nil
	}
}

func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.state = s
	if o.onState != nil {
		fn, state := o.onState, s
		go fn(state)
	}
}

func firstNavigable(candidates []deeplink.Candidate) int {
	for i, c := range candidates {
		if c.Navigable() {
			return i
		}
	}
	return -1
}

func nextNavigable(candidates []deeplink.Candidate, from int) int {
	n := len(candidates)
	for step := 1; step <= n; step++ {
		i := (from + step) % n
		if candidates[i].Navigable() {
			return i
		}
	}
	return -1
}

// rawCredential достаёт исходную строку подписки из списка кандидатов:
// QR-кандидат всегда несёт её в неизменном виде.
func rawCredential(candidates []deeplink.Candidate) string {
	for _, c := range candidates {
		if c.Kind == deeplink.KindQR || c.Kind == deeplink.KindRaw {
			return c.URI
		}
	}
	if len(candidates) > 0 {
		return candidates[0].URI
	}
	return ""
}
