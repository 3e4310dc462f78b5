package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/01moynul/snaplist/internal/ai"
	"github.com/01moynul/snaplist/internal/auth"
	"github.com/01moynul/snaplist/internal/config"
	"github.com/01moynul/snaplist/internal/credits"
	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/generation"
	"github.com/01moynul/snaplist/internal/handlers"
	"github.com/01moynul/snaplist/internal/metrics"
	"github.com/01moynul/snaplist/internal/middleware"
	"github.com/01moynul/snaplist/internal/promo"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type stubInvoker struct {
	generate func(ctx context.Context, images []ai.Image) (ai.Result, error)
}

func (s *stubInvoker) Generate(ctx context.Context, images []ai.Image) (ai.Result, error) {
	return s.generate(ctx, images)
}

type testServer struct {
	t       *testing.T
	db      *database.DB
	router  *gin.Engine
	invoker *stubInvoker
}

func newTestServer(t *testing.T, redeemPerMinute int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewTest()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{}
	cfg.Credits.SignupBonus = 3
	cfg.Generation.MaxImages = 2
	cfg.Generation.Timeout = time.Second
	cfg.Upload.MaxImageBytes = 1 << 10
	cfg.CORS.AllowedOrigin = "http://localhost:5173"

	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ledger := credits.NewLedger(db, log)
	invoker := &stubInvoker{generate: func(context.Context, []ai.Image) (ai.Result, error) {
		tokens := 120
		return ai.Result{Text: "Title: Wool Coat\n\nBrand: COS\nSize: L\nCondition: Good\n\nWarm coat.", TotalTokens: &tokens}, nil
	}}

	h := &handlers.Handlers{
		DB:     db,
		Ledger: ledger,
		Generation: generation.NewService(db, ledger, invoker, m, log, generation.Config{
			MaxImages: cfg.Generation.MaxImages,
			Timeout:   cfg.Generation.Timeout,
		}),
		Promo:  promo.NewService(db, ledger, m, log),
		Tokens: auth.NewTokenIssuer("test-secret", time.Hour),
		Config: cfg,
		Log:    log,
	}

	return &testServer{
		t:       t,
		db:      db,
		router:  SetupRouter(h, middleware.NewAccountLimiter(redeemPerMinute), reg),
		invoker: invoker,
	}
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) sendJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

func (s *testServer) upload(token string, files ...[]byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, data := range files {
		fw, err := mw.CreateFormFile("images", fmt.Sprintf("photo%d.png", i))
		require.NoError(s.t, err)
		_, err = fw.Write(data)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/listings/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, token)
}

// signup registers and logs in, returning the account ID and token.
func (s *testServer) signup(email string) (int64, string) {
	creds := gin.H{"email": email, "password": "correct-horse"}
	w := s.sendJSON(http.MethodPost, "/v1/register", "", creds)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.sendJSON(http.MethodPost, "/v1/login", "", creds)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token   string `json:"token"`
		Account struct {
			ID int64 `json:"id"`
		} `json:"account"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Account.ID, resp.Token
}

func (s *testServer) credits(token string) int {
	w := s.sendJSON(http.MethodGet, "/v1/account/me", token, nil)
	require.Equal(s.t, http.StatusOK, w.Code)
	var resp struct {
		Account struct {
			Credits int `json:"credits"`
		} `json:"account"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Account.Credits
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("Seller@Example.com")

	assert.Equal(t, 3, s.credits(token))

	w := s.sendJSON(http.MethodPost, "/v1/register", "", gin.H{"email": "seller@example.com", "password": "another-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.sendJSON(http.MethodPost, "/v1/login", "", gin.H{"email": "seller@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.sendJSON(http.MethodPost, "/v1/register", "", gin.H{"email": "short@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.sendJSON(http.MethodGet, "/v1/account/credits/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "signup bonus")
}

func TestGenerateListing_Completed(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("a@example.com")

	w := s.upload(token, pngHeader, pngHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "completed", resp["status"])
	assert.Equal(t, false, resp["refunded"])
	assert.EqualValues(t, 120, resp["usageMetric"])
	assert.Contains(t, resp["listing"], "Title: Wool Coat")
	fields := resp["fields"].(map[string]any)
	assert.Equal(t, "Good", fields["condition"])

	assert.Equal(t, 2, s.credits(token))

	w = s.sendJSON(http.MethodGet, "/v1/listings/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	attempts := decode(t, w)["attempts"].([]any)
	require.Len(t, attempts, 1)
	assert.EqualValues(t, 2, attempts[0].(map[string]any)["imageCount"])
}

func TestGenerateListing_FailureIsRefunded(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("b@example.com")
	s.invoker.generate = func(context.Context, []ai.Image) (ai.Result, error) {
		return ai.Result{}, errors.New("upstream unavailable")
	}

	w := s.upload(token, pngHeader)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, true, decode(t, w)["refunded"])
	assert.Equal(t, 3, s.credits(token))
}

func TestGenerateListing_DegradedIsRefunded(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("c@example.com")
	s.invoker.generate = func(context.Context, []ai.Image) (ai.Result, error) {
		return ai.Result{Text: "Nice shirt, barely worn."}, nil
	}

	w := s.upload(token, pngHeader)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "degraded", resp["status"])
	assert.NotEmpty(t, resp["message"])
	assert.Equal(t, 3, s.credits(token))
}

func TestGenerateListing_Rejections(t *testing.T) {
	s := newTestServer(t, 5)
	id, token := s.signup("d@example.com")

	tests := []struct {
		name  string
		files [][]byte
		want  int
	}{
		{"no images", nil, http.StatusBadRequest},
		{"too many images", [][]byte{pngHeader, pngHeader, pngHeader}, http.StatusBadRequest},
		{"empty image", [][]byte{{}}, http.StatusBadRequest},
		{"not an image", [][]byte{[]byte("just some text, not a photo")}, http.StatusUnsupportedMediaType},
		{"image too large", [][]byte{append(append([]byte{}, pngHeader...), make([]byte, 2<<10)...)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(token, tt.files...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 3, s.credits(token))

	_, err := s.db.Exec("UPDATE accounts SET credits = 0 WHERE id = ?", id)
	require.NoError(t, err)
	w := s.upload(token, pngHeader)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient_credits", decode(t, w)["reason"])
}

func TestGenerateListing_AlreadyInProgress(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("e@example.com")

	entered := make(chan struct{})
	release := make(chan struct{})
	s.invoker.generate = func(context.Context, []ai.Image) (ai.Result, error) {
		close(entered)
		<-release
		return ai.Result{Text: "Title: Scarf\nCondition: New"}, nil
	}

	done := make(chan int, 1)
	go func() {
		done <- s.upload(token, pngHeader).Code
	}()
	<-entered

	w := s.upload(token, pngHeader)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_in_progress", decode(t, w)["reason"])

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 2, s.credits(token))
}

func TestPromoFlow(t *testing.T) {
	s := newTestServer(t, 10)
	adminID, adminToken := s.signup("admin@example.com")
	_, userToken := s.signup("user@example.com")
	_, err := s.db.Exec("UPDATE accounts SET role = 'admin' WHERE id = ?", adminID)
	require.NoError(t, err)

	w := s.sendJSON(http.MethodPost, "/v1/admin/promo-codes", userToken, gin.H{"code": "X", "creditsGranted": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.sendJSON(http.MethodPost, "/v1/admin/promo-codes", adminToken, gin.H{"code": "save5", "creditsGranted": 5, "maxUses": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	promoID := int64(decode(t, w)["promoCode"].(map[string]any)["id"].(float64))

	w = s.sendJSON(http.MethodPost, "/v1/admin/promo-codes", adminToken, gin.H{"code": "SAVE5", "creditsGranted": 5})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.sendJSON(http.MethodPost, "/v1/promo/redeem", userToken, gin.H{"code": " save5 "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 5, decode(t, w)["creditsGranted"])
	assert.Equal(t, 8, s.credits(userToken))

	w = s.sendJSON(http.MethodPost, "/v1/promo/redeem", userToken, gin.H{"code": "SAVE5"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_redeemed", decode(t, w)["reason"])

	w = s.sendJSON(http.MethodPost, "/v1/promo/redeem", userToken, gin.H{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.sendJSON(http.MethodPatch, fmt.Sprintf("/v1/admin/promo-codes/%d", promoID), adminToken, gin.H{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.sendJSON(http.MethodPost, "/v1/promo/redeem", adminToken, gin.H{"code": "SAVE5"})
	assert.Equal(t, http.StatusGone, w.Code)

	w = s.sendJSON(http.MethodGet, "/v1/admin/promo-codes", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["promoCodes"], 1)
}

func TestPromoRedeem_RateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	_, token := s.signup("f@example.com")

	for range 2 {
		w := s.sendJSON(http.MethodPost, "/v1/promo/redeem", token, gin.H{"code": "NOPE"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	w := s.sendJSON(http.MethodPost, "/v1/promo/redeem", token, gin.H{"code": "NOPE"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminAccounts(t *testing.T) {
	s := newTestServer(t, 5)
	adminID, adminToken := s.signup("root@example.com")
	userID, userToken := s.signup("g@example.com")
	_, err := s.db.Exec("UPDATE accounts SET role = 'admin' WHERE id = ?", adminID)
	require.NoError(t, err)

	w := s.sendJSON(http.MethodPost, fmt.Sprintf("/v1/admin/accounts/%d/grant", userID), adminToken, gin.H{"amount": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10, s.credits(userToken))

	w = s.sendJSON(http.MethodPost, fmt.Sprintf("/v1/admin/accounts/%d/grant", userID), adminToken, gin.H{"amount": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.sendJSON(http.MethodPost, "/v1/admin/accounts/999/grant", adminToken, gin.H{"amount": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.sendJSON(http.MethodPatch, fmt.Sprintf("/v1/admin/accounts/%d/exempt", userID), adminToken, gin.H{"exempt": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.upload(userToken, pngHeader)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, s.credits(userToken))

	w = s.sendJSON(http.MethodPatch, "/v1/admin/accounts/abc/exempt", adminToken, gin.H{"exempt": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAndPing(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.signup("h@example.com")
	s.upload(token, pngHeader)

	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/ping", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `snaplist_generation_attempts_total{status="completed"} 1`), w.Body.String())
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, 5)
	for _, path := range []string{"/v1/account/me", "/v1/listings/history", "/v1/admin/promo-codes"} {
		w := s.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
