package controller_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-referral/app/middleware"
	"github.com/vibast-solutions/ms-go-referral/app/types"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func authenticated(ctx echo.Context, userID uint64) echo.Context {
	ctx.Set(middleware.ContextKeyUserID, userID)
	return ctx
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

type fakeAuthService struct {
	registerFn    func(req *types.RegisterRequest) (*types.TokenResponse, error)
	loginFn       func(req *types.LoginRequest) (*types.TokenResponse, error)
	refreshFn     func(req *types.RefreshTokenRequest) (*types.TokenResponse, error)
	currentUserFn func(userID uint64) (*types.UserResponse, error)
}

func (f *fakeAuthService) Register(_ context.Context, req *types.RegisterRequest) (*types.TokenResponse, error) {
	return f.registerFn(req)
}

func (f *fakeAuthService) Login(_ context.Context, req *types.LoginRequest) (*types.TokenResponse, error) {
	return f.loginFn(req)
}

func (f *fakeAuthService) RefreshToken(_ context.Context, req *types.RefreshTokenRequest) (*types.TokenResponse, error) {
	return f.refreshFn(req)
}

func (f *fakeAuthService) CurrentUser(_ context.Context, userID uint64) (*types.UserResponse, error) {
	return f.currentUserFn(userID)
}

func (f *fakeAuthService) ResolveAccessToken(string) (uint64, error) {
	return 0, nil
}

type fakeReferralService struct {
	createFn     func(userID uint64, req *types.CreateReferralCodeRequest) (*types.ReferralCodeResponse, error)
	getByUserFn  func(userID uint64) (*types.ReferralCodeResponse, error)
	getByEmailFn func(email string) (*types.ReferralCodeResponse, error)
	deleteFn     func(userID uint64) error
	extendFn     func(userID uint64, days int) (*types.ReferralCodeResponse, error)
	deactivateFn func(userID uint64) (*types.ReferralCodeResponse, error)
	listFn       func(referrerID uint64) ([]*types.UserResponse, error)
}

func (f *fakeReferralService) Create(_ context.Context, userID uint64, req *types.CreateReferralCodeRequest) (*types.ReferralCodeResponse, error) {
	return f.createFn(userID, req)
}

func (f *fakeReferralService) GetByUser(_ context.Context, userID uint64) (*types.ReferralCodeResponse, error) {
	return f.getByUserFn(userID)
}

func (f *fakeReferralService) GetByEmail(_ context.Context, email string) (*types.ReferralCodeResponse, error) {
	return f.getByEmailFn(email)
}

func (f *fakeReferralService) Delete(_ context.Context, userID uint64) error {
	return f.deleteFn(userID)
}

func (f *fakeReferralService) Extend(_ context.Context, userID uint64, days int) (*types.ReferralCodeResponse, error) {
	return f.extendFn(userID, days)
}

func (f *fakeReferralService) Deactivate(_ context.Context, userID uint64) (*types.ReferralCodeResponse, error) {
	return f.deactivateFn(userID)
}

func (f *fakeReferralService) ListReferrals(_ context.Context, referrerID uint64) ([]*types.UserResponse, error) {
	return f.listFn(referrerID)
}
