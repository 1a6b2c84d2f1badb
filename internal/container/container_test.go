package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "db", "procurement.db")
	cfg.Database.MaxOpenConns = 4
	cfg.Storage.BaseDir = filepath.Join(dir, "files")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Server.Mode = "test"
	cfg.Worker.FulfillmentPollInterval = time.Hour
	return cfg
}

func startContainer(t *testing.T) *Container {
	t.Helper()
	return startContainerWith(t, testConfig(t))
}

func startContainerWith(t *testing.T, cfg *Config) *Container {
	t.Helper()
	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			_ = c.Close()
		}
	})
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (cl *client) call(method, path string, body interface{}, out interface{}) int {
	cl.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(cl.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(cl.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(cl.t, json.Unmarshal(env.Data, out))
	}
	return w.Code
}

func (cl *client) login(email, password string, role string) {
	cl.t.Helper()
	code := cl.call(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": email, "password": password, "full_name": email, "role": role,
	}, nil)
	require.Equal(cl.t, http.StatusCreated, code)
	require.Equal(cl.t, http.StatusOK, cl.signIn(email, password))
}

func (cl *client) signIn(email, password string) int {
	cl.t.Helper()
	var out struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	code := cl.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, &out)
	if code == http.StatusOK {
		require.NotEmpty(cl.t, out.Tokens.AccessToken)
		cl.token = out.Tokens.AccessToken
	}
	return code
}

func (cl *client) userID() string {
	cl.t.Helper()
	var me struct {
		ID string `json:"id"`
	}
	require.Equal(cl.t, http.StatusOK, cl.call(http.MethodGet, "/api/v1/me", nil, &me))
	return me.ID
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err := NewContainer(cfg, zap.NewNop())
	require.Error(t, err)

	_, err = NewContainer(nil, zap.NewNop())
	require.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t)
	assert.True(t, c.Ready())
	assert.Equal(t, 1, c.Workers().GetWorkerCount())

	health := c.HealthCheck(context.Background())
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "ok", health["workers"])
	assert.Equal(t, "ok", health["dispatcher"])

	require.Error(t, c.Start(context.Background()))
	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	require.Error(t, c.Close())
}

func TestContainer_PurchaseOrderLifecycleOverHTTP(t *testing.T) {
	c := startContainer(t)
	router := c.Server().Router()

	manager := &client{t: t, router: router}
	manager.login("manager@example.com", "manager-pass", "procurement_manager")

	requester := &client{t: t, router: router}
	requester.login("requester@example.com", "requester-pass", "")

	var supplier struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, manager.call(http.MethodPost, "/api/v1/suppliers", map[string]string{
		"name": "Acme Supplies", "code": "ACME",
	}, &supplier))

	type order struct {
		ID               string   `json:"id"`
		Status           string   `json:"status"`
		Total            string   `json:"total_amount"`
		PermittedActions []string `json:"permitted_actions"`
	}

	var po order
	require.Equal(t, http.StatusCreated, requester.call(http.MethodPost, "/api/v1/purchase-orders", map[string]interface{}{
		"supplier_id": supplier.ID,
		"currency":    "USD",
		"lines": []map[string]interface{}{
			{"product_id": "P-1", "quantity": 10, "unit_price": "25.00"},
			{"product_id": "P-2", "quantity": 1, "unit_price": "250"},
		},
	}, &po))
	assert.Equal(t, "DRAFT", po.Status)

	require.Equal(t, http.StatusOK, requester.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/submit", nil, &po))
	assert.Equal(t, "PENDING_APPROVAL", po.Status)

	// requesters have no approval authority
	assert.Equal(t, http.StatusForbidden, requester.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approvals",
		map[string]string{"decision": "APPROVE"}, nil))

	var approved struct {
		Order order `json:"order"`
	}
	require.Equal(t, http.StatusCreated, manager.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approvals",
		map[string]string{"decision": "APPROVE", "comment": "within budget"}, &approved))
	assert.Equal(t, "APPROVED", approved.Order.Status)

	assert.Equal(t, http.StatusConflict, manager.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approvals",
		map[string]string{"decision": "APPROVE"}, nil))

	var shipment struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, requester.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/shipments",
		map[string]string{"carrier": "DHL", "tracking_number": "TRK-1"}, &shipment))
	require.Equal(t, http.StatusOK, requester.call(http.MethodPost, "/api/v1/shipments/"+shipment.ID+"/deliver", nil, nil))

	require.Eventually(t, func() bool {
		var got order
		if requester.call(http.MethodGet, "/api/v1/purchase-orders/"+po.ID, nil, &got) != http.StatusOK {
			return false
		}
		return got.Status == "FULFILLED"
	}, 5*time.Second, 20*time.Millisecond)

	var history []struct {
		Action string `json:"action"`
	}
	require.Equal(t, http.StatusOK, requester.call(http.MethodGet, "/api/v1/purchase-orders/"+po.ID+"/history", nil, &history))
	assert.GreaterOrEqual(t, len(history), 4)
}

func TestContainer_AdminManagesAccountsOverHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.AdminEmail = "root@example.com"
	cfg.Auth.AdminPassword = "root-password"
	c := startContainerWith(t, cfg)
	router := c.Server().Router()

	admin := &client{t: t, router: router}
	require.Equal(t, http.StatusOK, admin.signIn("root@example.com", "root-password"))

	lead := &client{t: t, router: router}
	lead.login("lead@example.com", "lead-pass", "")
	leadID := lead.userID()

	requester := &client{t: t, router: router}
	requester.login("requester@example.com", "requester-pass", "")

	// only administrators see the account list
	assert.Equal(t, http.StatusForbidden, requester.call(http.MethodGet, "/api/v1/users", nil, nil))
	var users []struct {
		Email string `json:"email"`
	}
	require.Equal(t, http.StatusOK, admin.call(http.MethodGet, "/api/v1/users", nil, &users))
	assert.Len(t, users, 3)

	var supplier struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, admin.call(http.MethodPost, "/api/v1/suppliers", map[string]string{
		"name": "Globex", "code": "GLOBEX",
	}, &supplier))

	var po struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	require.Equal(t, http.StatusCreated, requester.call(http.MethodPost, "/api/v1/purchase-orders", map[string]interface{}{
		"supplier_id": supplier.ID,
		"currency":    "USD",
		"lines":       []map[string]interface{}{{"product_id": "P-1", "quantity": 2, "unit_price": "400"}},
	}, &po))

	require.Equal(t, http.StatusOK, requester.call(http.MethodPut, "/api/v1/purchase-orders/"+po.ID,
		map[string]string{"notes": "rush delivery"}, &po))
	assert.Equal(t, "rush delivery", po.Notes)

	require.Equal(t, http.StatusOK, requester.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/submit", nil, &po))
	assert.Equal(t, http.StatusConflict, requester.call(http.MethodPut, "/api/v1/purchase-orders/"+po.ID,
		map[string]string{"notes": "too late"}, nil))

	assert.Equal(t, http.StatusForbidden, lead.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approvals",
		map[string]string{"decision": "APPROVE"}, nil))

	// a requester cannot raise their own limit
	assert.Equal(t, http.StatusForbidden, lead.call(http.MethodPut, "/api/v1/users/"+leadID,
		map[string]string{"approval_limit": "1000"}, nil))
	require.Equal(t, http.StatusOK, admin.call(http.MethodPut, "/api/v1/users/"+leadID,
		map[string]string{"approval_limit": "1000"}, nil))

	var approved struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	require.Equal(t, http.StatusCreated, lead.call(http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/approvals",
		map[string]string{"decision": "APPROVE"}, &approved))
	assert.Equal(t, "APPROVED", approved.Order.Status)

	require.Equal(t, http.StatusOK, admin.call(http.MethodPut, "/api/v1/users/"+leadID+"/status",
		map[string]bool{"is_active": false}, nil))
	assert.Equal(t, http.StatusUnauthorized, lead.signIn("lead@example.com", "lead-pass"))
}
