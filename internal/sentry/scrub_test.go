package sentry

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestScrubEvent_RedactsSensitiveHeaders(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Headers: map[string]string{
				"Authorization": "Bearer secret-token",
				"Cookie":        "session=abc123",
				"Content-Type":  "application/json",
				"X-Request-Id":  "req-1",
			},
		},
	}

	result := ScrubEvent(event, nil)

	for _, h := range []string{"Authorization", "Cookie"} {
		if result.Request.Headers[h] != "[Filtered]" {
			t.Errorf("expected %s to be [Filtered], got %s", h, result.Request.Headers[h])
		}
	}
	if result.Request.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected Content-Type to be preserved, got %s", result.Request.Headers["Content-Type"])
	}
	if result.Request.Headers["X-Request-Id"] != "req-1" {
		t.Errorf("expected X-Request-Id to be preserved, got %s", result.Request.Headers["X-Request-Id"])
	}
}

func TestScrubEvent_StripsRequestBody(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Data: `{"username":"rudy","adminId":"secret"}`,
		},
	}

	result := ScrubEvent(event, nil)

	if result.Request.Data != "" {
		t.Errorf("expected request body to be stripped, got %s", result.Request.Data)
	}
}

func TestScrubEvent_ScrubsQueryString(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{QueryString: "code=auth-code&state=xyz"},
	}

	result := ScrubEvent(event, nil)

	values, err := url.ParseQuery(result.Request.QueryString)
	if err != nil {
		t.Fatal(err)
	}
	if values.Get("code") != "[Filtered]" {
		t.Errorf("expected code to be [Filtered], got %s", values.Get("code"))
	}
	if values.Get("state") != "xyz" {
		t.Errorf("expected state to be preserved, got %s", values.Get("state"))
	}
}

func TestScrubEvent_ScrubsTagsAndExtra(t *testing.T) {
	event := &sentry.Event{
		Tags: map[string]string{
			"environment":   "production",
			"refresh_token": "secret-value",
			"adminId":       "abc",
		},
		Extra: map[string]interface{}{
			"client_secret": "s",
			"connection_id": "c-1",
		},
	}

	result := ScrubEvent(event, nil)

	if result.Tags["environment"] != "production" {
		t.Errorf("expected environment tag to be preserved, got %s", result.Tags["environment"])
	}
	if result.Tags["refresh_token"] != "[Filtered]" || result.Tags["adminId"] != "[Filtered]" {
		t.Errorf("sensitive tags not filtered: %v", result.Tags)
	}
	if result.Extra["client_secret"] != "[Filtered]" {
		t.Errorf("expected client_secret extra to be [Filtered], got %v", result.Extra["client_secret"])
	}
	if result.Extra["connection_id"] != "c-1" {
		t.Errorf("expected connection_id extra to be preserved, got %v", result.Extra["connection_id"])
	}
}

func TestScrubEvent_ScrubsBreadcrumbData(t *testing.T) {
	event := &sentry.Event{
		Breadcrumbs: []*sentry.Breadcrumb{
			{Data: map[string]interface{}{"url": "/admin/life-updates", "jwt": "eyJhbGciOi..."}},
		},
	}

	result := ScrubEvent(event, nil)

	if result.Breadcrumbs[0].Data["url"] != "/admin/life-updates" {
		t.Errorf("expected url breadcrumb to be preserved, got %v", result.Breadcrumbs[0].Data["url"])
	}
	if result.Breadcrumbs[0].Data["jwt"] != "[Filtered]" {
		t.Errorf("expected jwt breadcrumb to be [Filtered], got %v", result.Breadcrumbs[0].Data["jwt"])
	}
}

func TestScrubEvent_HandlesEmptyEvent(t *testing.T) {
	if ScrubEvent(&sentry.Event{}, nil) == nil {
		t.Error("expected non-nil event")
	}
}

func TestInitWithoutDSN(t *testing.T) {
	enabled, err := Init("", "development")
	if err != nil || enabled {
		t.Errorf("Init(\"\") = %v, %v; want disabled without error", enabled, err)
	}
	// Reporting without a client must not panic.
	Reporter{}.Report(context.Background(), errors.New("boom"), map[string]string{"k": "v"})
}
