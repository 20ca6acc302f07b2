package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/repository"
	"github.com/hitoshi/soundcircle/internal/security"
	"github.com/hitoshi/soundcircle/internal/spotify"
	"github.com/hitoshi/soundcircle/internal/store"
)

// mockExchanger はTokenExchangerのモック実装。
type mockExchanger struct {
	exchangeFunc func(ctx context.Context, code string) (*spotify.TokenPair, error)
}

func (m *mockExchanger) ExchangeAuthCode(ctx context.Context, code string) (*spotify.TokenPair, error) {
	return m.exchangeFunc(ctx, code)
}

// mockUserRepo はUserRepositoryのモック実装。
// 設定されていないメソッドの呼び出しはゼロ値を返す。
type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
	createFunc   func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByIDWithMeta(ctx context.Context, id string) (*model.User, *store.Meta, error) {
	user, err := m.FindByID(ctx, id)
	if err != nil || user == nil {
		return nil, nil, err
	}
	return user, &store.Meta{}, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (m *mockUserRepo) SetTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	return nil
}
func (m *mockUserRepo) UpdateAccessToken(ctx context.Context, id, accessToken string) error {
	return nil
}
func (m *mockUserRepo) ClearTokens(ctx context.Context, id string) error { return nil }
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error  { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestService はインメモリストア上のリポジトリを使ったServiceを生成する。
func newTestService(exchanger TokenExchanger) (*Service, repository.UserRepository) {
	userRepo := repository.NewStoreUserRepo(store.NewMemoryStore())
	svc := NewService(userRepo, exchanger, security.NewNameSanitizer(), testLogger())
	return svc, userRepo
}

func TestCreateAccount_New(t *testing.T) {
	svc, userRepo := newTestService(nil)
	ctx := context.Background()

	user, existed, err := svc.CreateAccount(ctx, "user-1", "山田太郎", "taro@example.com")
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if existed {
		t.Error("existed = true for new account, want false")
	}
	if user.ID != "user-1" || user.Email != "taro@example.com" {
		t.Errorf("user = %+v", user)
	}

	stored, err := userRepo.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored == nil {
		t.Fatal("account was not persisted")
	}
}

// TestCreateAccount_Idempotent は同一IDでの再作成が既存レコードを返し、
// 重複を作らないことを検証する。
func TestCreateAccount_Idempotent(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	first, _, err := svc.CreateAccount(ctx, "user-1", "山田太郎", "taro@example.com")
	if err != nil {
		t.Fatalf("first CreateAccount returned error: %v", err)
	}

	second, existed, err := svc.CreateAccount(ctx, "user-1", "別の名前", "other@example.com")
	if err != nil {
		t.Fatalf("second CreateAccount returned error: %v", err)
	}
	if !existed {
		t.Error("existed = false for duplicate account, want true")
	}
	// 既存レコードが返り、上書きされない
	if second.DisplayName != first.DisplayName || second.Email != first.Email {
		t.Errorf("second = %+v, want same as first %+v", second, first)
	}
}

func TestCreateAccount_SanitizesDisplayName(t *testing.T) {
	svc, _ := newTestService(nil)

	user, _, err := svc.CreateAccount(context.Background(), "user-1", `<script>alert(1)</script>太郎`, "t@example.com")
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if user.DisplayName != "太郎" {
		t.Errorf("DisplayName = %q, want %q", user.DisplayName, "太郎")
	}
}

func TestCreateAccount_RepoError(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("store unavailable")
		},
	}
	svc := NewService(repo, nil, security.NewNameSanitizer(), testLogger())

	_, _, err := svc.CreateAccount(context.Background(), "user-1", "n", "e@example.com")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestGetAccount_ReturnsStoreTimestamps(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	if _, _, err := svc.CreateAccount(ctx, "user-1", "太郎", "t@example.com"); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}

	user, meta, err := svc.GetAccount(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}
	if meta == nil || meta.Created.IsZero() {
		t.Errorf("meta = %+v, want non-zero created timestamp", meta)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	svc, _ := newTestService(nil)

	_, _, err := svc.GetAccount(context.Background(), "no-such-user")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("Code = %q, want USER_NOT_FOUND", apiErr.Code)
	}
}

func TestDeleteAccount_IsIdempotent(t *testing.T) {
	svc, userRepo := newTestService(nil)
	ctx := context.Background()

	if _, _, err := svc.CreateAccount(ctx, "user-1", "n", "e@example.com"); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if err := svc.DeleteAccount(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteAccount returned error: %v", err)
	}
	// 2回目の削除も成功
	if err := svc.DeleteAccount(ctx, "user-1"); err != nil {
		t.Fatalf("second DeleteAccount returned error: %v", err)
	}

	stored, err := userRepo.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored != nil {
		t.Errorf("account still exists after delete: %+v", stored)
	}
}

func TestStoreAuthTokens_Success(t *testing.T) {
	exchanger := &mockExchanger{
		exchangeFunc: func(ctx context.Context, code string) (*spotify.TokenPair, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want auth-code", code)
			}
			return &spotify.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil
		},
	}
	svc, userRepo := newTestService(exchanger)
	ctx := context.Background()

	if _, _, err := svc.CreateAccount(ctx, "user-1", "n", "e@example.com"); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if err := svc.StoreAuthTokens(ctx, "user-1", "auth-code"); err != nil {
		t.Fatalf("StoreAuthTokens returned error: %v", err)
	}

	stored, err := userRepo.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.AccessToken != "A1" || stored.RefreshToken != "R1" {
		t.Errorf("tokens = (%q, %q), want (A1, R1)", stored.AccessToken, stored.RefreshToken)
	}
	if stored.TokensLastUpdated == nil {
		t.Error("TokensLastUpdated was not stamped")
	}
}

func TestStoreAuthTokens_UserNotFound(t *testing.T) {
	svc, _ := newTestService(&mockExchanger{
		exchangeFunc: func(ctx context.Context, code string) (*spotify.TokenPair, error) {
			t.Fatal("exchange must not be called for missing user")
			return nil, nil
		},
	})

	err := svc.StoreAuthTokens(context.Background(), "no-such-user", "code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("Code = %q, want USER_NOT_FOUND", apiErr.Code)
	}
}

func TestStoreAuthTokens_ExchangeFailure(t *testing.T) {
	exchanger := &mockExchanger{
		exchangeFunc: func(ctx context.Context, code string) (*spotify.TokenPair, error) {
			return nil, errors.New("token endpoint returned 400")
		},
	}
	svc, userRepo := newTestService(exchanger)
	ctx := context.Background()

	if _, _, err := svc.CreateAccount(ctx, "user-1", "n", "e@example.com"); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}

	err := svc.StoreAuthTokens(ctx, "user-1", "bad-code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != "EXTERNAL_SERVICE_ERROR" {
		t.Errorf("Code = %q, want EXTERNAL_SERVICE_ERROR", apiErr.Code)
	}

	// 失敗時はトークンが保存されない
	stored, err := userRepo.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.AccessToken != "" || stored.RefreshToken != "" {
		t.Errorf("tokens = (%q, %q), want both empty", stored.AccessToken, stored.RefreshToken)
	}
}
