package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"remitlend/core"
	"remitlend/crypto"
	"remitlend/gateway/auth"
	"remitlend/gateway/middleware"
	"remitlend/storage"
)

var (
	testAdmin    = crypto.BytesToAddress([]byte("admin"))
	testOperator = crypto.BytesToAddress([]byte("operator"))
	testLender   = crypto.BytesToAddress([]byte("lender"))
	testBorrower = crypto.BytesToAddress([]byte("borrower"))
)

type gateway struct {
	t        *testing.T
	protocol *core.Protocol
	handler  http.Handler
}

func newGateway(t *testing.T, authn *middleware.Authenticator) *gateway {
	t.Helper()
	clock := time.Unix(1_700_000_000, 0)
	p, err := core.New(storage.NewMemDB(), core.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	g := core.DefaultGenesis()
	g.Operators = []crypto.Address{testOperator}
	g.Allocations = []core.Allocation{
		{Address: testLender, Amount: uint256.NewInt(1_000_000)},
		{Address: testBorrower, Amount: uint256.NewInt(10_000)},
	}
	_, err = p.Initialize(context.Background(), testAdmin, g)
	require.NoError(t, err)

	if authn == nil {
		authn = middleware.NewAuthenticator(middleware.AuthConfig{Enabled: false}, nil, nil)
	}
	handler, err := New(Config{Protocol: p, Authenticator: authn, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	return &gateway{t: t, protocol: p, handler: handler}
}

// call performs a request as caller (zero address means anonymous) and
// decodes the JSON response into out when non-nil.
func (g *gateway) call(method, path string, caller crypto.Address, body interface{}, out interface{}) int {
	g.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(g.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if !caller.IsZero() {
		req.Header.Set(middleware.HeaderDevCaller, caller.String())
	}
	res := httptest.NewRecorder()
	g.handler.ServeHTTP(res, req)
	if out != nil {
		require.NoError(g.t, json.Unmarshal(res.Body.Bytes(), out), res.Body.String())
	}
	return res.Code
}

type receiptResponse struct {
	Receipt *core.Receipt          `json:"receipt"`
	Result  map[string]interface{} `json:"result"`
}

func (g *gateway) mustWrite(method, path string, caller crypto.Address, body interface{}) receiptResponse {
	g.t.Helper()
	var out receiptResponse
	code := g.call(method, path, caller, body, &out)
	require.Contains(g.t, []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}, code)
	require.NotNil(g.t, out.Receipt)
	require.True(g.t, out.Receipt.Verify(), "receipt must verify after a JSON round trip")
	return out
}

func TestGatewayLoanLifecycle(t *testing.T) {
	g := newGateway(t, nil)

	var info map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, "/v1/protocol", crypto.Address{}, nil, &info))
	pool := info["pool"].(string)
	loanManager := info["loanManager"].(string)

	g.mustWrite(http.MethodPost, "/v1/asset/approvals", testLender, map[string]string{"spender": pool, "amount": "100000"})
	g.mustWrite(http.MethodPost, "/v1/pool/deposits", testLender, map[string]string{"amount": "100000"})

	g.mustWrite(http.MethodPost, "/v1/verifications", testBorrower, map[string]string{"provider": "wise", "accountId": "acct-1"})
	submitted := g.mustWrite(http.MethodPost, "/v1/verifications/"+testBorrower.String()+"/attestations", testOperator, map[string]interface{}{
		"monthlyAmount": "500", "historyMonths": 10, "totalSent": "5000", "paidCount": 9, "totalCount": 10,
	})
	tokenID := uint64(submitted.Result["tokenId"].(float64))

	var verification map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, "/v1/verifications/"+testBorrower.String(), crypto.Address{}, nil, &verification))
	require.Equal(t, "verified", verification["status"])
	require.Equal(t, float64(90), verification["reliabilityScore"])

	requested := g.mustWrite(http.MethodPost, "/v1/loans", testBorrower, map[string]interface{}{
		"collateralId": tokenID, "amount": "1200", "durationMonths": 12,
	})
	loanID := uint64(requested.Result["loanId"].(float64))
	g.mustWrite(http.MethodPost, fmt.Sprintf("/v1/loans/%d/approve", loanID), testAdmin, nil)

	var loan map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, fmt.Sprintf("/v1/loans/%d", loanID), crypto.Address{}, nil, &loan))
	require.Equal(t, "active", loan["status"])
	require.Equal(t, "115", loan["monthlyPayment"])

	g.mustWrite(http.MethodPost, "/v1/asset/approvals", testBorrower, map[string]string{"spender": loanManager, "amount": "1000000"})
	paid := g.mustWrite(http.MethodPost, fmt.Sprintf("/v1/loans/%d/payments", loanID), testBorrower, map[string]string{"amount": "115"})
	require.Equal(t, "15", paid.Result["interest"])
	require.Equal(t, "100", paid.Result["principal"])
	require.Equal(t, "1100", paid.Result["outstanding"])

	reported := g.mustWrite(http.MethodPost, "/v1/oracle/remittances", testOperator, map[string]interface{}{
		"user": testBorrower.String(), "tokenId": tokenID, "amount": "500", "loanId": loanID,
	})
	require.Equal(t, "115", reported.Result["applied"])
	require.Equal(t, "385", reported.Result["leftover"])

	var mon map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, fmt.Sprintf("/v1/oracle/monitoring/%d", loanID), crypto.Address{}, nil, &mon))
	require.Equal(t, "385", mon["unappliedRemittance"])

	var poolView map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, "/v1/pool", crypto.Address{}, nil, &poolView))
	require.Equal(t, "100000", poolView["totalLiquidity"])
	require.Equal(t, "28", poolView["totalInterestEarned"])

	var borrowed map[string][]map[string]interface{}
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, "/v1/loans?borrower="+testBorrower.String(), crypto.Address{}, nil, &borrowed))
	require.Len(t, borrowed["loans"], 1)
}

func TestGatewayRejectionStatuses(t *testing.T) {
	g := newGateway(t, nil)

	var errBody errorResponse
	require.Equal(t, http.StatusUnauthorized, g.call(http.MethodPost, "/v1/pool/deposits", crypto.Address{}, map[string]string{"amount": "1"}, &errBody))

	require.Equal(t, http.StatusBadRequest, g.call(http.MethodPost, "/v1/pool/deposits", testLender, map[string]string{"amount": "-1"}, &errBody))
	require.Equal(t, "invalid_amount", errBody.Code)

	require.Equal(t, http.StatusUnprocessableEntity, g.call(http.MethodPost, "/v1/pool/deposits", testLender, map[string]string{"amount": "5"}, &errBody))
	require.Equal(t, "insufficient_allowance", errBody.Code)

	require.Equal(t, http.StatusNotFound, g.call(http.MethodGet, "/v1/loans/42", crypto.Address{}, nil, &errBody))
	require.Equal(t, "loan_not_found", errBody.Code)

	require.Equal(t, http.StatusForbidden, g.call(http.MethodPost, "/v1/oracle/operators", testLender, map[string]string{"address": testLender.String()}, &errBody))
	require.Equal(t, "unauthorized", errBody.Code)

	require.Equal(t, http.StatusBadRequest, g.call(http.MethodPost, "/v1/pool/deposits", testLender, map[string]string{"amount": "1", "extra": "x"}, &errBody))
	require.Equal(t, "invalid_request", errBody.Code)

	g.mustWrite(http.MethodPut, "/v1/admin/pauses/pool", testAdmin, map[string]bool{"paused": true})
	var pauses map[string]bool
	require.Equal(t, http.StatusOK, g.call(http.MethodGet, "/v1/admin/pauses", crypto.Address{}, nil, &pauses))
	require.True(t, pauses["pool"])
	require.False(t, pauses["loans"])
	g.mustWrite(http.MethodPost, "/v1/asset/approvals", testLender, map[string]string{"spender": core.PoolAddress.String(), "amount": "5"})
	require.Equal(t, http.StatusServiceUnavailable, g.call(http.MethodPost, "/v1/pool/deposits", testLender, map[string]string{"amount": "5"}, &errBody))
	require.Equal(t, "module_paused", errBody.Code)

	require.Equal(t, http.StatusServiceUnavailable, g.call(http.MethodGet, "/v1/events", crypto.Address{}, nil, &errBody))
}

func TestGatewayOperatorSignedReport(t *testing.T) {
	now := time.Now()
	operators := auth.NewAuthenticator([]auth.Credential{{APIKey: "oracle-1", Secret: "op-secret", Address: testOperator}}, auth.Options{})
	authn := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "jwt-secret"}, operators, nil)
	g := newGateway(t, authn)

	token, err := middleware.IssueToken("jwt-secret", "", "", testBorrower, time.Hour, now)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/verifications", strings.NewReader(`{"provider":"wise","accountId":"a"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	g.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusAccepted, res.Code, res.Body.String())

	body := []byte(`{"reason":"documents expired"}`)
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/verifications/"+testBorrower.String()+"/rejection", bytes.NewReader(body))
		auth.SignRequest(req, "oracle-1", "op-secret", "nonce-1", now, body)
		res := httptest.NewRecorder()
		g.handler.ServeHTTP(res, req)
		return res.Code
	}
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusUnauthorized, send(), "replayed signature must be refused")

	v, err := g.protocol.Verification(testBorrower)
	require.NoError(t, err)
	require.Equal(t, "failed", v.Status.String())
	require.Equal(t, "documents expired", v.Reason)
}

func TestEventStreamDeliversReceipts(t *testing.T) {
	g := newGateway(t, nil)
	srv := httptest.NewServer(g.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events?type=bank.approval", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return g.protocol.Bus().Subscribers() > 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = g.protocol.Transfer(ctx, testLender, testBorrower, uint256.NewInt(1))
	require.NoError(t, err)
	_, err = g.protocol.Approve(ctx, testLender, core.PoolAddress, uint256.NewInt(7))
	require.NoError(t, err)

	var msg streamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, "receipt", msg.Kind)
	require.NotNil(t, msg.Receipt)
	require.Equal(t, "asset_approve", msg.Receipt.Operation)
	require.True(t, msg.Receipt.Verify())
}
