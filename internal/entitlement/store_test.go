package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oblepiha-vpn/miniapp/internal/models"
)

type BackendMock struct{ mock.Mock }

func (m *BackendMock) GetMe(ctx context.Context) (*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *BackendMock) GetStats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stats), args.Error(1)
}

func (m *BackendMock) GetTariffs(ctx context.Context) ([]models.Tariff, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Tariff), args.Error(1)
}

func (m *BackendMock) GetReferralStats(ctx context.Context) (*models.ReferralStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReferralStats), args.Error(1)
}

func (m *BackendMock) CreatePayment(ctx context.Context, tariffID string, setupAutoRenew bool) (*models.Payment, error) {
	args := m.Called(ctx, tariffID, setupAutoRenew)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *BackendMock) AcceptTerms(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *BackendMock) EnableAutoRenew(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *BackendMock) DisableAutoRenew(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *BackendMock) DeletePaymentMethod(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *BackendMock) SetReferrer(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

// fakeBridge отдаёт токен идентичности и копит обработчики resume.
type fakeBridge struct {
	initData string
	mu       sync.Mutex
	onResume []func()
}

func (b *fakeBridge) Platform() string            { return "android" }
func (b *fakeBridge) UserAgent() string           { return "" }
func (b *fakeBridge) InitData() string            { return b.initData }
func (b *fakeBridge) OpenLink(string) error       { return nil }
func (b *fakeBridge) WriteClipboard(string) error { return nil }

func (b *fakeBridge) OnResume(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResume = append(b.onResume, fn)
	return func() {}
}

func (b *fakeBridge) fireResume() {
	b.mu.Lock()
	handlers := append([]func(){}, b.onResume...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testUser(mutate func(*models.User)) *models.User {
	accepted := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	u := &models.User{
		ID:               7,
		TelegramID:       1321009576,
		FirstName:        "Вадим",
		IsActive:         true,
		DaysLeft:         12,
		SubscriptionURL:  "vless://uuid@host:443",
		ReferralCode:     "ABCD1234",
		TermsAcceptedAt:  &accepted,
		TrialUsed:        true,
		AutoRenewEnabled: true,
		PaymentMethod: &models.PaymentMethod{
			Kind:  models.MethodCard,
			Last4: "4242",
			Brand: "Visa",
		},
	}
	if mutate != nil {
		mutate(u)
	}
	return u
}

func newStoreForTest(t *testing.T, backend *BackendMock) *apiStore {
	t.Helper()
	s := newAPIStore(newNoopLogger(), backend, &fakeBridge{initData: "init-data"})
	t.Cleanup(s.Close)
	return s
}

func TestLoad_TariffFailureFallsBack(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{IsActive: true, DaysLeft: 12}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(nil, errors.New("catalog down")).Once()
	backend.On("GetReferralStats", mock.Anything).Return(nil, errors.New("unavailable")).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.User)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, models.FallbackTariffs(), snap.Tariffs)
	assert.NoError(t, snap.LoadErr)
	backend.AssertExpectations(t)
}

func TestLoad_ProfileDownButTariffsLive(t *testing.T) {
	live := []models.Tariff{{ID: "month", Name: "1 Месяц", Price: 199, Days: 30, Icon: models.IconMonth}}

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(nil, errors.New("backend down")).Once()
	backend.On("GetStats", mock.Anything).Return(nil, errors.New("backend down")).Once()
	backend.On("GetTariffs", mock.Anything).Return(live, nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(nil, errors.New("backend down")).Once()

	s := newStoreForTest(t, backend)
	err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	snap := s.Snapshot()
	assert.Equal(t, live, snap.Tariffs)
	assert.ErrorIs(t, snap.LoadErr, ErrUnavailable)
}

func TestAcceptTerms_Idempotent(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil)
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil)
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil)
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil)

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	// условия уже приняты: сетевого вызова быть не должно
	require.NoError(t, s.AcceptTerms(context.Background()))
	require.NoError(t, s.AcceptTerms(context.Background()))
	backend.AssertNotCalled(t, "AcceptTerms", mock.Anything)
}

func TestAcceptTerms_FirstTime(t *testing.T) {
	user := testUser(func(u *models.User) { u.TermsAcceptedAt = nil })

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(user, nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()
	backend.On("AcceptTerms", mock.Anything).Return(nil).Once()
	// сверка канонической записи после мутации
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.AcceptTerms(context.Background()))
	require.NoError(t, s.AcceptTerms(context.Background()))

	backend.AssertNumberOfCalls(t, "AcceptTerms", 1)
	assert.True(t, s.Snapshot().User.TermsAccepted())
}

func TestRefresh_Coalesced(t *testing.T) {
	gate := make(chan struct{})

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Run(func(mock.Arguments) {
		<-gate
	}).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Run(func(mock.Arguments) {
		<-gate
	}).Return(&models.Stats{DaysLeft: 11}, nil).Once()

	s := newStoreForTest(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond) // все вызовы присоединились
	close(gate)
	wg.Wait()

	// ровно один запрос в полёте на пять одновременных Refresh
	backend.AssertNumberOfCalls(t, "GetMe", 1)
	backend.AssertNumberOfCalls(t, "GetStats", 1)
	assert.Equal(t, 11, s.Snapshot().Stats.DaysLeft)
}

func TestResumeEvents_TriggerCoalescedRefresh(t *testing.T) {
	gate := make(chan struct{})
	bridge := &fakeBridge{initData: "init-data"}

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Run(func(mock.Arguments) {
		<-gate
	}).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Run(func(mock.Arguments) {
		<-gate
	}).Return(&models.Stats{}, nil).Once()

	s := newAPIStore(newNoopLogger(), backend, bridge)
	t.Cleanup(s.Close)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridge.fireResume()
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	backend.AssertNumberOfCalls(t, "GetMe", 1)
}

func TestSetAutoRenew_RejectedWithoutPaymentMethod(t *testing.T) {
	user := testUser(func(u *models.User) {
		u.PaymentMethod = nil
		u.AutoRenewEnabled = false
	})

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(user, nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	err := s.SetAutoRenew(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoPaymentMethod)
	backend.AssertNotCalled(t, "EnableAutoRenew", mock.Anything)
	assert.False(t, s.Snapshot().User.AutoRenewEnabled)
}

func TestSetAutoRenew_RevertsOnFailure(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()
	backend.On("DisableAutoRenew", mock.Anything).Return(errors.New("backend rejected")).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	err := s.SetAutoRenew(context.Background(), false)
	assert.Error(t, err)
	// оптимистичный патч откатился к последнему подтверждённому состоянию
	assert.True(t, s.Snapshot().User.AutoRenewEnabled)
}

func TestRemovePaymentMethod_DisablesAutoRenewAtomically(t *testing.T) {
	canonical := testUser(func(u *models.User) {
		u.PaymentMethod = nil
		u.AutoRenewEnabled = false
	})

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()
	backend.On("DeletePaymentMethod", mock.Anything).Return(nil).Once()
	backend.On("GetMe", mock.Anything).Return(canonical, nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.RemovePaymentMethod(context.Background()))

	snap := s.Snapshot()
	assert.Nil(t, snap.User.PaymentMethod)
	assert.False(t, snap.User.AutoRenewEnabled)
}

func TestRemovePaymentMethod_RevertsOnFailure(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()
	backend.On("DeletePaymentMethod", mock.Anything).Return(errors.New("backend down")).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	require.Error(t, s.RemovePaymentMethod(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.User.PaymentMethod)
	assert.Equal(t, "4242", snap.User.PaymentMethod.Last4)
	assert.True(t, snap.User.AutoRenewEnabled)
}

func TestSnapshot_EarlierProjectionNotMutated(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil)
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil)
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil)
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil)
	backend.On("EnableAutoRenew", mock.Anything).Return(nil)
	backend.On("DisableAutoRenew", mock.Anything).Return(nil)
	backend.On("DeletePaymentMethod", mock.Anything).Return(nil)

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	before := s.Snapshot()
	require.NotNil(t, before.User)
	require.True(t, before.User.AutoRenewEnabled)
	require.NotNil(t, before.User.PaymentMethod)

	// ранее выданный снапшот читается параллельно с мутаторами:
	// записи не должны идти через общий указатель
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = before.User.AutoRenewEnabled
			_ = before.User.TermsAccepted()
			_ = before.User.HasPaymentMethod()
		}
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.SetAutoRenew(context.Background(), i%2 == 0))
	}
	require.NoError(t, s.RemovePaymentMethod(context.Background()))
	<-done

	assert.True(t, before.User.AutoRenewEnabled)
	require.NotNil(t, before.User.PaymentMethod)
	assert.Equal(t, "4242", before.User.PaymentMethod.Last4)
}

func TestPurchase_TrialOnlyOnce(t *testing.T) {
	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Purchase(context.Background(), models.TrialTariffID)
	assert.ErrorIs(t, err, ErrTrialUsed)
	backend.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchase_AlwaysRequestsAutoRenewSetup(t *testing.T) {
	payment := &models.Payment{
		PaymentID:       "pay-1",
		ConfirmationURL: "https://yookassa.example/confirm",
		Amount:          199,
		TariffID:        "month",
	}

	backend := new(BackendMock)
	backend.On("GetMe", mock.Anything).Return(testUser(nil), nil).Once()
	backend.On("GetStats", mock.Anything).Return(&models.Stats{}, nil).Once()
	backend.On("GetTariffs", mock.Anything).Return(models.FallbackTariffs(), nil).Once()
	backend.On("GetReferralStats", mock.Anything).Return(&models.ReferralStats{}, nil).Once()
	backend.On("CreatePayment", mock.Anything, "month", true).Return(payment, nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.Load(context.Background()))

	got, err := s.Purchase(context.Background(), "month")
	require.NoError(t, err)
	assert.Equal(t, payment, got)
	backend.AssertExpectations(t)
}

func TestNew_SelectsDemoModeWithoutIdentity(t *testing.T) {
	s := New(newNoopLogger(), nil, &fakeBridge{initData: ""})
	t.Cleanup(s.Close)

	_, ok := s.(*demoStore)
	assert.True(t, ok)
}

func TestDemoStore_MutatorsAreLocalOnly(t *testing.T) {
	s := newDemoStore()

	require.NoError(t, s.SetAutoRenew(context.Background(), false))
	assert.False(t, s.Snapshot().User.AutoRenewEnabled)

	require.NoError(t, s.RemovePaymentMethod(context.Background()))
	snap := s.Snapshot()
	assert.Nil(t, snap.User.PaymentMethod)

	// инвариант: включить автопродление без способа оплаты нельзя и в демо
	assert.ErrorIs(t, s.SetAutoRenew(context.Background(), true), ErrNoPaymentMethod)

	payment, err := s.Purchase(context.Background(), "month")
	require.NoError(t, err)
	assert.Empty(t, payment.ConfirmationURL)

	require.NoError(t, s.SetReferrer(context.Background(), "FRIEND42"))
	assert.ErrorIs(t, s.SetReferrer(context.Background(), ""), ErrNoReferralCode)
}

func TestSetReferrer_DelegatesToBackend(t *testing.T) {
	backend := new(BackendMock)
	backend.On("SetReferrer", mock.Anything, "FRIEND42").Return(nil).Once()

	s := newStoreForTest(t, backend)
	require.NoError(t, s.SetReferrer(context.Background(), "FRIEND42"))
	backend.AssertExpectations(t)
}

func TestSetReferrer_EmptyCodeRejected(t *testing.T) {
	backend := new(BackendMock)

	s := newStoreForTest(t, backend)
	assert.ErrorIs(t, s.SetReferrer(context.Background(), ""), ErrNoReferralCode)
	backend.AssertNotCalled(t, "SetReferrer", mock.Anything, mock.Anything)
}
