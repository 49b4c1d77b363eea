// Package entitlement содержит клиентский кеш состояния пользователя:
// подписка, трафик, автопродление, способ оплаты, принятие условий.
// Кеш обновляется по возврату в приложение, мутации применяются
// оптимистично с откатом при ошибке. Сервер всегда источник истины.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oblepiha-vpn/miniapp/internal/host"
	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
	"github.com/oblepiha-vpn/miniapp/internal/metrics"
	"github.com/oblepiha-vpn/miniapp/internal/models"
)

// Типизированные исходы мутаций. Всё в этом пакете некритично:
// худший случай — деградация до режима только для чтения.
var (
	// ErrNoPaymentMethod — попытка включить автопродление без
	// сохранённого способа оплаты. Отклоняется на границе, без сети.
	ErrNoPaymentMethod = errors.New("no saved payment method")
	// ErrTrialUsed — повторная покупка пробного тарифа.
	ErrTrialUsed = errors.New("trial already used")
	// ErrUnavailable — начальная загрузка не получила ни пользователя,
	// ни статистику.
	ErrUnavailable = errors.New("profile and stats unavailable")
	// ErrNoReferralCode — привязка пригласившего без кода.
	ErrNoReferralCode = errors.New("empty referral code")
)

// Backend — вызовы бэкенда, которые нужны хранилищу.
type Backend interface {
	GetMe(ctx context.Context) (*models.User, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	GetTariffs(ctx context.Context) ([]models.Tariff, error)
	GetReferralStats(ctx context.Context) (*models.ReferralStats, error)
	CreatePayment(ctx context.Context, tariffID string, setupAutoRenew bool) (*models.Payment, error)
	AcceptTerms(ctx context.Context) error
	EnableAutoRenew(ctx context.Context) error
	DisableAutoRenew(ctx context.Context) error
	DeletePaymentMethod(ctx context.Context) error
	SetReferrer(ctx context.Context, code string) error
}

// Snapshot — согласованный срез кеша для UI.
type Snapshot struct {
	User     *models.User
	Stats    *models.Stats
	Referral *models.ReferralStats
	Tariffs  []models.Tariff
	// LoadErr выставляется только когда недоступны и профиль,
	// и статистика; частичные сбои деградируют молча.
	LoadErr error
}

// Store — клиентское хранилище entitlement-состояния.
// Реализации: apiStore (бэкенд) и demoStore (режим без идентичности).
type Store interface {
	Load(ctx context.Context) error
	Snapshot() Snapshot
	Refresh(ctx context.Context) error
	Purchase(ctx context.Context, tariffID string) (*models.Payment, error)
	AcceptTerms(ctx context.Context) error
	SetAutoRenew(ctx context.Context, enabled bool) error
	RemovePaymentMethod(ctx context.Context) error
	SetReferrer(ctx context.Context, code string) error
	Close()
}

// New выбирает реализацию хранилища по наличию токена идентичности:
// пустой InitData — демонстрационный режим без сетевых вызовов.
func New(log *slog.Logger, backend Backend, bridge host.Bridge) Store {
	if bridge == nil {
		bridge = host.Noop{}
	}
	if bridge.InitData() == "" {
		log.Info("no identity token, serving demo projection")
		return newDemoStore()
	}
	return newAPIStore(log, backend, bridge)
}

type apiStore struct {
	log     *slog.Logger
	backend Backend

	mu       sync.Mutex
	user     *models.User
	stats    *models.Stats
	referral *models.ReferralStats
	tariffs  []models.Tariff
	loadErr  error
	gen      uint64 // результаты устаревших запросов отбрасываются
	closed   bool

	sf          singleflight.Group
	unsubResume func()
}

func newAPIStore(log *slog.Logger, backend Backend, bridge host.Bridge) *apiStore {
	s := &apiStore{
		log:     log,
		backend: backend,
		tariffs: models.FallbackTariffs(),
	}
	// по возврату в приложение перечитываем состояние: внешняя оплата
	// завершается вне нашего контроля, это единственный механизм
	// согласования
	s.unsubResume = bridge.OnResume(func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.log.Warn("resume refresh failed", sl.Err(err))
		}
	})
	return s
}

// Load выполняет начальную загрузку: пользователь, статистика, тарифы и
// рефералы запрашиваются параллельно, сбои переживаются независимо.
// Недоступный каталог тарифов подменяется статическим.
func (s *apiStore) Load(ctx context.Context) error {
	const op = "entitlement.Load"

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	var (
		wg       sync.WaitGroup
		user     *models.User
		stats    *models.Stats
		referral *models.ReferralStats
		tariffs  []models.Tariff
		userErr  error
		statsErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		user, userErr = s.backend.GetMe(ctx)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = s.backend.GetStats(ctx)
	}()
	go func() {
		defer wg.Done()
		var err error
		if tariffs, err = s.backend.GetTariffs(ctx); err != nil {
			s.log.Warn("tariff catalog unavailable, using fallback", sl.Err(err))
			tariffs = models.FallbackTariffs()
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if referral, err = s.backend.GetReferralStats(ctx); err != nil {
			s.log.Warn("referral stats unavailable", sl.Err(err))
		}
	}()
	wg.Wait()

	if userErr != nil {
		s.log.Error("failed to load user", slog.String("op", op), sl.Err(userErr))
	}
	if statsErr != nil {
		s.log.Error("failed to load stats", slog.String("op", op), sl.Err(statsErr))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		// вызывающая сторона уже ушла, результат никому не нужен
		return nil
	}

	if user != nil {
		user.Normalize()
		s.user = user
	}
	if stats != nil {
		s.stats = stats
	}
	if referral != nil {
		s.referral = referral
	}
	s.tariffs = tariffs

	if userErr != nil && statsErr != nil {
		s.loadErr = ErrUnavailable
		return ErrUnavailable
	}
	s.loadErr = nil
	return nil
}

// Snapshot возвращает текущий срез кеша.
func (s *apiStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		User:     s.user,
		Stats:    s.stats,
		Referral: s.referral,
		Tariffs:  s.tariffs,
		LoadErr:  s.loadErr,
	}
}

// Refresh перечитывает пользователя и статистику. Запросы сериализованы:
// повторный вызов во время выполняющегося обновления присоединяется к нему,
// дублирующий запрос в сеть не уходит.
func (s *apiStore) Refresh(ctx context.Context) error {
	_, err, _ := s.sf.Do("refresh", func() (any, error) {
		return nil, s.doRefresh(ctx)
	})
	return err
}

func (s *apiStore) doRefresh(ctx context.Context) error {
	const op = "entitlement.Refresh"

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()

	var (
		wg       sync.WaitGroup
		user     *models.User
		stats    *models.Stats
		userErr  error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		user, userErr = s.backend.GetMe(ctx)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = s.backend.GetStats(ctx)
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return nil
	}

	if userErr == nil && user != nil {
		user.Normalize()
		s.user = user
	} else if userErr != nil {
		s.log.Warn("refresh: user fetch failed", slog.String("op", op), sl.Err(userErr))
	}
	if statsErr == nil && stats != nil {
		s.stats = stats
	} else if statsErr != nil {
		s.log.Warn("refresh: stats fetch failed", slog.String("op", op), sl.Err(statsErr))
	}

	if userErr != nil && statsErr != nil {
		return userErr
	}
	return nil
}

// Purchase создаёт платёж за тариф. Запрос всегда просит настроить
// автопродление: согласие на списания собирает платёжный виджет.
func (s *apiStore) Purchase(ctx context.Context, tariffID string) (*models.Payment, error) {
	s.mu.Lock()
	if tariffID == models.TrialTariffID && s.user != nil && s.user.TrialUsed {
		s.mu.Unlock()
		return nil, ErrTrialUsed
	}
	s.mu.Unlock()

	payment, err := s.backend.CreatePayment(ctx, tariffID, true)
	if err != nil {
		return nil, err
	}
	metrics.PaymentsCreatedTotal.Inc()
	return payment, nil
}

// AcceptTerms отмечает принятие условий. Идемпотентен: повторный вызов
// после принятия — успешный no-op без сетевого вызова.
func (s *apiStore) AcceptTerms(ctx context.Context) error {
	s.mu.Lock()
	if s.user != nil && s.user.TermsAccepted() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.backend.AcceptTerms(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if s.user != nil && s.user.TermsAcceptedAt == nil {
		s.patchUserLocked(func(u *models.User) { u.TermsAcceptedAt = &now })
	}
	s.mu.Unlock()

	s.reconcileUser(ctx)
	return nil
}

// patchUserLocked применяет оптимистичный патч к копии записи пользователя
// и подменяет указатель. Выданные наружу снапшоты делят старую запись,
// писать в неё нельзя. Вызывается под mu.
func (s *apiStore) patchUserLocked(patch func(*models.User)) {
	if s.user == nil {
		return
	}
	patched := *s.user
	patch(&patched)
	s.user = &patched
}

// SetAutoRenew переключает автопродление. Включение без сохранённого
// способа оплаты отклоняется до сети. Локальное состояние меняется
// оптимистично; при ошибке бэкенда патч откатывается — это осознанное
// ужесточение по сравнению с исходным поведением.
func (s *apiStore) SetAutoRenew(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrUnavailable
	}
	if enabled && !s.user.HasPaymentMethod() {
		s.mu.Unlock()
		return ErrNoPaymentMethod
	}
	prev := s.user.AutoRenewEnabled
	s.patchUserLocked(func(u *models.User) { u.AutoRenewEnabled = enabled })
	s.mu.Unlock()

	var err error
	if enabled {
		err = s.backend.EnableAutoRenew(ctx)
	} else {
		err = s.backend.DisableAutoRenew(ctx)
	}
	if err != nil {
		s.mu.Lock()
		s.patchUserLocked(func(u *models.User) { u.AutoRenewEnabled = prev })
		s.mu.Unlock()
		return err
	}

	s.reconcileUser(ctx)
	return nil
}

// RemovePaymentMethod удаляет сохранённый способ оплаты. Автопродление
// выключается тем же локальным коммитом: состояние «включено без способа
// оплаты» не должно быть наблюдаемо.
func (s *apiStore) RemovePaymentMethod(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrUnavailable
	}
	prevMethod := s.user.PaymentMethod
	prevRenew := s.user.AutoRenewEnabled
	s.patchUserLocked(func(u *models.User) {
		u.PaymentMethod = nil
		u.AutoRenewEnabled = false
	})
	s.mu.Unlock()

	if err := s.backend.DeletePaymentMethod(ctx); err != nil {
		s.mu.Lock()
		s.patchUserLocked(func(u *models.User) {
			u.PaymentMethod = prevMethod
			u.AutoRenewEnabled = prevRenew
		})
		s.mu.Unlock()
		return err
	}

	s.reconcileUser(ctx)
	return nil
}

// SetReferrer привязывает пригласившего по реферальному коду.
// Привязка односторонняя: локальная проекция не меняется, бэкенд начислит
// бонус пригласившему после первой покупки.
func (s *apiStore) SetReferrer(ctx context.Context, code string) error {
	if code == "" {
		return ErrNoReferralCode
	}
	return s.backend.SetReferrer(ctx, code)
}

// reconcileUser перечитывает каноническую запись пользователя после
// успешной мутации: истина на сервере, а не в оптимистичном патче.
// Сбой не страшен — следующий Refresh доберёт.
func (s *apiStore) reconcileUser(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	user, err := s.backend.GetMe(ctx)
	if err != nil {
		s.log.Warn("failed to reconcile user after mutation", sl.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	user.Normalize()
	s.user = user
}

// Close отписывается от событий хоста; результаты запросов в полёте
// будут отброшены.
func (s *apiStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	unsub := s.unsubResume
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
