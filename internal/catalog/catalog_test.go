package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	all := c.All()
	if len(all) != 3 {
		t.Fatalf("services = %d, want 3", len(all))
	}
	s, ok := c.Lookup("managed-release")
	if !ok {
		t.Fatal("managed-release missing")
	}
	if s.Name != "Managed Release" || s.Price != 250000 || s.Currency != "GBP" {
		t.Errorf("managed-release = %+v", s)
	}
	if _, ok := c.Lookup("unknown"); ok {
		t.Error("unknown slug should not resolve")
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"duplicate": "services:\n  - {slug: a, name: A, price: 1}\n  - {slug: a, name: B, price: 2}\n",
		"negative":  "services:\n  - {slug: a, name: A, price: -1}\n",
		"no slug":   "services:\n  - {name: A, price: 1}\n",
		"malformed": "services: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Price = 1
	if s, _ := c.Lookup(all[0].Slug); s.Price == 1 {
		t.Error("All must not expose internal state")
	}
	if c.All()[0].Price == 1 {
		t.Error("All must not expose internal state")
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Default().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Services []Service `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Services) != 3 || body.Services[2].Slug != "support-retainer" {
		t.Errorf("services = %+v", body.Services)
	}
}
