package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/MorphGate/morphgate/internal/config"
	"github.com/MorphGate/morphgate/internal/middleware"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/service"
)

func TestTenantEndpointsRequireAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			AdminKey: "admin",
		},
	}

	manager := service.NewTenantManager(&config.Config{}, nil)
	manager.RegisterTenant(&model.Tenant{
		ID:     "tenant-1",
		Name:   "Desk A",
		ApiKey: "sk-tenant-1-very-secret",
		Account: model.AccountCreds{
			Address:    "0x1111111111111111111111111111111111111111",
			PrivateKey: "4c0883a69102937d6231471b5dbb6204fe512961708279f1d3e7c6d3e7c6d3e7",
		},
	})
	tenantSvc := service.NewTenantService(manager, nil)
	handler := NewTenantHandler(tenantSvc)

	router := gin.New()
	admin := router.Group("/v1/admin/tenants")
	admin.Use(middleware.AdminMiddleware(cfg))
	admin.GET("", handler.List)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	req2.Header.Set(middleware.HeaderAdminKey, "admin")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin key, got %d", rec2.Code)
	}

	var tenants []map[string]interface{}
	if err := json.Unmarshal(rec2.Body.Bytes(), &tenants); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected one tenant, got %d", len(tenants))
	}
	if key, _ := tenants[0]["api_key"].(string); key == "sk-tenant-1-very-secret" {
		t.Fatalf("expected api key to be masked, got %q", key)
	}
	account, ok := tenants[0]["account"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing account in response")
	}
	if pk, _ := account["private_key"].(string); len(pk) > 12 {
		t.Fatalf("expected private key to be masked, got %q", pk)
	}
}

func TestTenantCreateAndGetMasksSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)

	manager := service.NewTenantManager(&config.Config{}, nil)
	tenantSvc := service.NewTenantService(manager, nil)
	handler := NewTenantHandler(tenantSvc)

	router := gin.New()
	router.POST("/v1/admin/tenants", handler.Create)
	router.GET("/v1/admin/tenants/:id", handler.Get)

	payload := map[string]interface{}{
		"id":      "tenant-2",
		"name":    "Desk B",
		"api_key": "sk-tenant-2-very-secret",
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on create, got %d: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants/tenant-2", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec2.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if resp["id"] != "tenant-2" {
		t.Fatalf("unexpected tenant id: %v", resp["id"])
	}
	if key, _ := resp["api_key"].(string); key == "sk-tenant-2-very-secret" {
		t.Fatalf("expected api key to be masked, got %q", key)
	}

	req3 := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants/missing", nil)
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)

	if rec3.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tenant, got %d", rec3.Code)
	}
}
