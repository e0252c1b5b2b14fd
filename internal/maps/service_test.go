package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/logger"
)

type geocodingConfig struct{ baseURL string }

func (c geocodingConfig) GetGeocodingBaseURL() string   { return c.baseURL }
func (c geocodingConfig) GetGeocodingUserAgent() string { return "EkoMarket-test" }

func TestGeocodeNormalisesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "Jl. Sudirman" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("User-Agent") != "EkoMarket-test" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(`[
			{"display_name":"Jalan Sudirman, Jakarta","lat":"-6.2088","lon":"106.8456","address":{"road":"Jalan Sudirman","house_number":"5","postcode":"10220","city":"Jakarta","state":"DKI Jakarta"}},
			{"display_name":"broken","lat":"x","lon":"y"}
		]`))
	}))
	defer server.Close()

	svc := NewService(geocodingConfig{baseURL: server.URL}, logger.Nop())
	places, err := svc.Geocode(context.Background(), "Jl. Sudirman")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected one usable place, got %d", len(places))
	}
	p := places[0]
	if p.Label != "Jalan Sudirman 5, 10220 Jakarta" || p.Lat != -6.2088 || p.Province != "DKI Jakarta" {
		t.Fatalf("unexpected place %+v", p)
	}
}

func TestReverse(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		kind apperr.Kind
	}{
		{"match", `{"display_name":"Monas","lat":"-6.1754","lon":"106.8272","address":{"suburb":"Gambir"}}`, http.StatusOK, apperr.KindUnknown},
		{"no match", `{"error":"Unable to geocode"}`, http.StatusOK, apperr.KindNotFound},
		{"upstream down", `busy`, http.StatusServiceUnavailable, apperr.KindUnavailable},
		{"garbage", `<html>`, http.StatusOK, apperr.KindUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/reverse" || r.URL.Query().Get("lon") != "106.827200" {
					t.Errorf("unexpected request %s", r.URL)
				}
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			svc := NewService(geocodingConfig{baseURL: server.URL}, logger.Nop())
			place, err := svc.Reverse(context.Background(), -6.1754, 106.8272)
			if tc.kind == apperr.KindUnknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if place.City != "Gambir" || place.Label != "Gambir" {
					t.Fatalf("unexpected place %+v", place)
				}
				return
			}
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, err)
			}
		})
	}
}
