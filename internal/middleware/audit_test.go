package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyTenants(t *testing.T) {
	body := []byte(`{"id":"acme","api_key":"sk-live","account":{"address":"0xabc","private_key":"0xdead"}}`)
	out := redactAuditBody("/v1/tenants", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["api_key"] == "sk-live" {
		t.Fatalf("api_key not redacted")
	}
	if account, ok := data["account"].(map[string]interface{}); ok {
		if account["private_key"] == "0xdead" {
			t.Fatalf("private_key not redacted")
		}
		if account["address"] != "0xabc" {
			t.Fatalf("address should not be redacted")
		}
	}
}

func TestRedactAuditBodyAdminPath(t *testing.T) {
	body := []byte(`{"token":"0xtok","amount":"100","admin_key":"root"}`)
	out := redactAuditBody("/v1/admin/recover", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["admin_key"] == "root" {
		t.Fatalf("admin_key not redacted")
	}
	if data["amount"] != "100" {
		t.Fatalf("amount should not be redacted")
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/health", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/tenants", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
