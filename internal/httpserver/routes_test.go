package httpserver

import (
	"net/http"
	"testing"
)

// TestStaticRoutesWinOverParams guards routes whose static segment shares a prefix
// with a parameterised route, e.g. /cart/session/{id} next to /cart/{id}.
func TestStaticRoutesWinOverParams(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name        string
		method      string
		path        string
		wantStatus  int
		wantMessage string
	}{
		{"clear session beats item delete", "DELETE", "/api/cart/session/sess-1", http.StatusOK, "Cart cleared"},
		{"item delete", "DELETE", "/api/cart/item-404", http.StatusNotFound, ""},
		{"product search beats product id", "GET", "/api/products/search?q=mug", http.StatusOK, ""},
		{"categories beats product id", "GET", "/api/products/categories", http.StatusOK, ""},
		{"product review alias", "GET", "/api/products/p1/reviews", http.StatusOK, ""},
		{"reviews by product", "GET", "/api/reviews/product/p1", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantMessage == "" {
				return
			}
			var resp struct {
				Message string `json:"message"`
			}
			decode(t, rec, &resp)
			if resp.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "PATCH", "/api/products", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/api/", "", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on every response")
	}
}
