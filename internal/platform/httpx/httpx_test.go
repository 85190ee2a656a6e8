package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type decoded struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			FieldErrors map[string][]string `json:"fieldErrors"`
			Meta        struct {
				RequestID string `json:"requestId"`
			} `json:"meta"`
		} `json:"details"`
	} `json:"error"`
}

func render(t *testing.T, err error) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()
	WriteError(rec, req, err)
	var body decoded
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rec, body
}

func TestWriteError_Envelope(t *testing.T) {
	rec, body := render(t, NotFound("ORDER_NOT_FOUND", "Order not found"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if body.Error.Code != "ORDER_NOT_FOUND" || body.Error.Message != "Order not found" {
		t.Errorf("envelope = %+v", body.Error)
	}
	if body.Error.Details.Meta.RequestID != "req-1" {
		t.Errorf("requestId = %q, want req-1", body.Error.Details.Meta.RequestID)
	}
	if body.Error.Details.FieldErrors == nil {
		t.Error("fieldErrors should be an empty object, not null")
	}
}

func TestWriteError_InternalDoesNotLeak(t *testing.T) {
	rec, body := render(t, errors.New(`pq: relation "orders" does not exist`))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body.Error.Code != CodeInternal {
		t.Errorf("code = %q, want %q", body.Error.Code, CodeInternal)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Error("internal error text leaked into the response")
	}
}

type sample struct {
	Email string      `json:"email" validate:"required,email"`
	Items []sampleRow `json:"items" validate:"required,min=1,dive"`
}

type sampleRow struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func TestDecode_FieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"email":"nope","items":[{"quantity":0}]}`))
	var dst sample
	err := Decode(httptest.NewRecorder(), req, &dst)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Code != CodeValidation {
		t.Errorf("code = %q", apiErr.Code)
	}
	if _, ok := apiErr.FieldErrors["email"]; !ok {
		t.Errorf("missing email field error: %v", apiErr.FieldErrors)
	}
	if _, ok := apiErr.FieldErrors["items[0].quantity"]; !ok {
		t.Errorf("missing items[0].quantity field error: %v", apiErr.FieldErrors)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{"", "{", `{"unknown":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
		var dst sample
		err := Decode(httptest.NewRecorder(), req, &dst)
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
			t.Errorf("body %q: err = %v, want 400", body, err)
		}
	}
}

func TestClientIP_IgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Errorf("ClientIP = %q, want the TCP peer", got)
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	tests := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"untrusted peer ignores header", "198.51.100.7:1", []string{"203.0.113.9"}, "198.51.100.7"},
		{"trusted peer", "10.0.0.1:1", []string{"203.0.113.9"}, "203.0.113.9"},
		{"spoofed left entry skipped", "10.0.0.1:1", []string{"1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"chain of proxies", "10.0.0.1:1", []string{"203.0.113.9, 192.0.2.1, 10.1.1.1"}, "203.0.113.9"},
		{"repeated headers", "10.0.0.1:1", []string{"1.2.3.4", "203.0.113.9"}, "203.0.113.9"},
		{"no header", "10.0.0.1:1", nil, "10.0.0.1"},
		{"garbage stops walk", "10.0.0.1:1", []string{"203.0.113.9, nonsense"}, "10.0.0.1"},
		{"all hops trusted", "10.0.0.1:1", []string{"10.2.2.2"}, "10.2.2.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := proxies.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}

	var none *TrustedProxies
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := none.ClientIP(req); got != "10.0.0.1" {
		t.Errorf("nil proxies ClientIP = %q", got)
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	for _, e := range []string{"proxy.local", "10.0.0.0/99"} {
		if _, err := ParseTrustedProxies([]string{e}); err == nil {
			t.Errorf("%q: want error", e)
		}
	}
}
