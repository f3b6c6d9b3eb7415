package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
	"growth_tracker/internal/service/mocks"
)

type CredentialServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	accounts  *mocks.MockAccountStore
	refresher *mocks.MockCredentialRefresher
	syncLogs  *mocks.MockSyncLogStore

	service *CredentialService
	now     time.Time
}

func (s *CredentialServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.accounts = mocks.NewMockAccountStore(s.ctrl)
	s.refresher = mocks.NewMockCredentialRefresher(s.ctrl)
	s.syncLogs = mocks.NewMockSyncLogStore(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewCredentialService(s.accounts, s.refresher, s.syncLogs, 24*time.Hour, logger)
	s.now = time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.now }
}

func (s *CredentialServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCredentialServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CredentialServiceTestSuite))
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_StoresNewCredential() {
	ctx := context.Background()
	expires := s.now.Add(12 * time.Hour)
	account := domain.Account{ID: 1, Username: "one", AccessToken: "old", RefreshToken: ptr("refresh-1"), TokenExpiresAt: &expires}
	newExpiry := s.now.Add(60 * 24 * time.Hour)

	s.accounts.EXPECT().ListExpiring(ctx, s.now.Add(24*time.Hour)).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(1), domain.SyncTypeTokenRefresh, s.now).Return(int64(10), nil)
	s.refresher.EXPECT().Refresh(ctx, "refresh-1").Return(&domain.Credential{AccessToken: "new", RefreshToken: "refresh-2", ExpiresAt: newExpiry}, nil)
	s.accounts.EXPECT().UpdateCredential(ctx, int64(1), domain.Credential{AccessToken: "new", RefreshToken: "refresh-2", ExpiresAt: newExpiry}).Return(nil)
	s.syncLogs.EXPECT().Complete(gomock.Any(), int64(10), 1, s.now).Return(nil)

	result, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Checked)
	s.Equal(1, result.Refreshed)
	s.Equal(0, result.Deactivated)
	s.Empty(result.Errors)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_FailureDeactivatesAccount() {
	ctx := context.Background()
	expires := s.now.Add(12 * time.Hour)
	account := domain.Account{ID: 2, Username: "two", AccessToken: "long-lived", TokenExpiresAt: &expires}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(2), domain.SyncTypeTokenRefresh, s.now).Return(int64(11), nil)
	s.refresher.EXPECT().Refresh(ctx, "long-lived").Return(nil, &domain.RefreshError{StatusCode: 400, Body: "expired"})
	s.syncLogs.EXPECT().Fail(gomock.Any(), int64(11), gomock.Any(), s.now).Return(nil)
	s.accounts.EXPECT().Deactivate(ctx, int64(2)).Return(nil)

	result, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Deactivated)
	s.Equal(0, result.Refreshed)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "two:")
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_TransportErrorDeactivates() {
	ctx := context.Background()
	account := domain.Account{ID: 3, Username: "three", AccessToken: "t"}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(3), domain.SyncTypeTokenRefresh, s.now).Return(int64(12), nil)
	s.refresher.EXPECT().Refresh(ctx, "t").Return(nil, errors.New("dial tcp: timeout"))
	s.syncLogs.EXPECT().Fail(gomock.Any(), int64(12), gomock.Any(), s.now).Return(nil)
	s.accounts.EXPECT().Deactivate(ctx, int64(3)).Return(nil)

	result, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Deactivated)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_StoreFailureKeepsAccountActive() {
	ctx := context.Background()
	account := domain.Account{ID: 4, Username: "four", AccessToken: "t"}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(4), domain.SyncTypeTokenRefresh, s.now).Return(int64(13), nil)
	s.refresher.EXPECT().Refresh(ctx, "t").Return(&domain.Credential{AccessToken: "n", ExpiresAt: s.now.Add(time.Hour)}, nil)
	s.accounts.EXPECT().UpdateCredential(ctx, int64(4), gomock.Any()).Return(&domain.StoreError{Op: "update credential", Err: errors.New("conn")})
	s.syncLogs.EXPECT().Fail(gomock.Any(), int64(13), gomock.Any(), s.now).Return(nil)

	result, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.Equal(0, result.Deactivated)
	s.Equal(0, result.Refreshed)
	s.Len(result.Errors, 1)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_DefaultsMissingExpiry() {
	ctx := context.Background()
	account := domain.Account{ID: 5, Username: "five", AccessToken: "t"}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(5), domain.SyncTypeTokenRefresh, s.now).Return(int64(14), nil)
	s.refresher.EXPECT().Refresh(ctx, "t").Return(&domain.Credential{AccessToken: "n"}, nil)
	s.accounts.EXPECT().UpdateCredential(ctx, int64(5), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, cred domain.Credential) error {
			s.Equal(s.now.Add(defaultCredentialLifetime), cred.ExpiresAt)
			return nil
		},
	)
	s.syncLogs.EXPECT().Complete(gomock.Any(), int64(14), 1, s.now).Return(nil)

	result, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Refreshed)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_CancelledRefreshStillClosesSyncLog() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	account := domain.Account{ID: 6, Username: "six", AccessToken: "t"}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{account}, nil)
	s.syncLogs.EXPECT().Start(ctx, int64(6), domain.SyncTypeTokenRefresh, s.now).Return(int64(15), nil)
	s.refresher.EXPECT().Refresh(ctx, "t").DoAndReturn(
		func(ctx context.Context, _ string) (*domain.Credential, error) {
			cancel()
			return nil, ctx.Err()
		},
	)
	s.syncLogs.EXPECT().Fail(gomock.Any(), int64(15), gomock.Any(), s.now).DoAndReturn(
		func(logCtx context.Context, _ int64, _ string, _ time.Time) error {
			s.NoError(logCtx.Err())
			return nil
		},
	)

	result, err := s.service.RefreshExpiring(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(0, result.Deactivated)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_CountsEachOutcomeOnce() {
	ctx := context.Background()
	refreshed := metrics.TokenRefreshTotal.WithLabelValues("refreshed")
	failed := metrics.TokenRefreshTotal.WithLabelValues("failed")
	deactivated := metrics.TokenRefreshTotal.WithLabelValues("deactivated")
	refreshedBefore := testutil.ToFloat64(refreshed)
	failedBefore := testutil.ToFloat64(failed)
	deactivatedBefore := testutil.ToFloat64(deactivated)

	good := domain.Account{ID: 7, Username: "seven", AccessToken: "a"}
	bad := domain.Account{ID: 8, Username: "eight", AccessToken: "b"}

	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return([]domain.Account{good, bad}, nil)
	s.syncLogs.EXPECT().Start(ctx, gomock.Any(), domain.SyncTypeTokenRefresh, s.now).Return(int64(16), nil).Times(2)
	s.refresher.EXPECT().Refresh(ctx, "a").Return(&domain.Credential{AccessToken: "n", ExpiresAt: s.now.Add(time.Hour)}, nil)
	s.accounts.EXPECT().UpdateCredential(ctx, int64(7), gomock.Any()).Return(nil)
	s.syncLogs.EXPECT().Complete(gomock.Any(), int64(16), 1, s.now).Return(nil)
	s.refresher.EXPECT().Refresh(ctx, "b").Return(nil, &domain.RefreshError{StatusCode: 400})
	s.syncLogs.EXPECT().Fail(gomock.Any(), int64(16), gomock.Any(), s.now).Return(nil)
	s.accounts.EXPECT().Deactivate(ctx, int64(8)).Return(nil)

	_, err := s.service.RefreshExpiring(ctx)

	s.Require().NoError(err)
	s.InDelta(1, testutil.ToFloat64(refreshed)-refreshedBefore, 1e-9)
	s.InDelta(1, testutil.ToFloat64(failed)-failedBefore, 1e-9)
	s.InDelta(1, testutil.ToFloat64(deactivated)-deactivatedBefore, 1e-9)
}

func (s *CredentialServiceTestSuite) TestRefreshExpiring_ListFailure() {
	ctx := context.Background()
	s.accounts.EXPECT().ListExpiring(ctx, gomock.Any()).Return(nil, &domain.StoreError{Op: "list", Err: errors.New("down")})

	result, err := s.service.RefreshExpiring(ctx)

	s.Nil(result)
	s.Error(err)
}
