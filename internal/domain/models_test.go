package domain

import "testing"

func TestTenant_TableName(t *testing.T) {
	if got := (Tenant{}).TableName(); got != "tenants" {
		t.Fatalf("TableName = %q; want tenants", got)
	}
}

func TestTenant_HasWebhookURL(t *testing.T) {
	cases := map[string]bool{
		"":                                  false,
		"   ":                               false,
		"ftp://example.com":                 false,
		"example.bitrix24.ru/rest/1/abc":    false,
		"http://example.bitrix24.ru/rest/1": true,
		"https://example.bitrix24.ru/rest/1/abc123": true,
		"  https://example.bitrix24.ru/rest/1/a  ":  true,
	}
	for in, want := range cases {
		tn := &Tenant{WebhookURL: in}
		if got := tn.HasWebhookURL(); got != want {
			t.Errorf("HasWebhookURL(%q) = %v; want %v", in, got, want)
		}
	}
}
