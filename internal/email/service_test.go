package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "news@masthead.dev",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.masthead.dev",
				From: "news@masthead.dev",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.masthead.dev",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.masthead.dev",
				Port: "587",
				From: "news@masthead.dev",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"ana@masthead.dev"}, "subject", "body"); err == nil {
		t.Fatal("unconfigured send must fail")
	}
	if err := svc.SendHTMLEmail([]string{"ana@masthead.dev"}, "subject", "<p>body</p>"); err == nil {
		t.Fatal("unconfigured HTML send must fail")
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "Masthead",
		UserName:        "Test User",
		VerificationURL: "https://example.com/verify-email?token=abc123",
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Masthead") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify-email?token=abc123") {
		t.Error("template should contain verification URL")
	}
	if !strings.Contains(html, "24 hours") {
		t.Error("template should mention expiration time")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	data := PasswordResetData{
		AppName:  "Masthead",
		UserName: "Test User",
		ResetURL: "https://example.com/reset-password?token=xyz789",
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Masthead") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/reset-password?token=xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}
