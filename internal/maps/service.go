package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "EkoMarket/1.0"
	requestTimeout   = 5 * time.Second
	searchLimit      = 5
	msgUnavailable   = "geocoding service unavailable"
)

// Service proxies forward and reverse geocoding to Nominatim.
type Service struct {
	baseURL   string
	userAgent string
	client    *http.Client
	log       *logger.Logger
}

// NewService creates the geocoder.
func NewService(cfg config.GeocodingConfig, log *logger.Logger) *Service {
	s := &Service{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		client:    &http.Client{Timeout: requestTimeout},
		log:       log,
	}
	if cfg != nil {
		if v := strings.TrimRight(cfg.GetGeocodingBaseURL(), "/"); v != "" {
			s.baseURL = v
		}
		if v := cfg.GetGeocodingUserAgent(); v != "" {
			s.userAgent = v
		}
	}
	return s
}

// Geocode resolves free text into up to five places.
func (s *Service) Geocode(ctx context.Context, query string) ([]Place, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("format", "jsonv2")
	params.Add("addressdetails", "1")
	params.Add("limit", strconv.Itoa(searchLimit))

	var raw []nominatimPlace
	if err := s.get(ctx, "/search", params, &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		if p, ok := buildPlace(r); ok {
			places = append(places, p)
		}
	}
	return places, nil
}

// Reverse resolves coordinates into the nearest address. No match returns
// not found.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Add("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Add("format", "jsonv2")
	params.Add("addressdetails", "1")

	var raw nominatimPlace
	if err := s.get(ctx, "/reverse", params, &raw); err != nil {
		return Place{}, err
	}
	if raw.Error != "" {
		return Place{}, apperr.NotFound("no address at these coordinates")
	}
	p, ok := buildPlace(raw)
	if !ok {
		return Place{}, apperr.NotFound("no address at these coordinates")
	}
	return p, nil
}

func (s *Service) get(ctx context.Context, path string, params url.Values, dst any) error {
	reqURL := fmt.Sprintf("%s%s?%s", s.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.ExternalDegraded("nominatim", err)
		return unavailable(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("upstream status %d", resp.StatusCode)
		s.log.ExternalDegraded("nominatim", err)
		return unavailable(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		s.log.ExternalDegraded("nominatim", err)
		return unavailable(err)
	}
	return nil
}

func unavailable(cause error) *apperr.Error {
	e := apperr.Unavailable(msgUnavailable)
	e.Err = cause
	return e
}

func buildPlace(raw nominatimPlace) (Place, bool) {
	lat, errLat := strconv.ParseFloat(raw.Lat, 64)
	lng, errLng := strconv.ParseFloat(raw.Lon, 64)
	if errLat != nil || errLng != nil {
		return Place{}, false
	}
	p := Place{
		Street:      raw.Address.Road,
		HouseNumber: raw.Address.HouseNumber,
		PostalCode:  raw.Address.Postcode,
		City:        pickCity(raw.Address),
		Province:    raw.Address.State,
		Lat:         lat,
		Lng:         lng,
	}
	p.Label = buildLabel(p)
	if p.Label == "" {
		p.Label = raw.DisplayName
	}
	return p, p.Label != ""
}

func pickCity(address nominatimAddress) string {
	for _, v := range []string{address.City, address.Town, address.Municipality, address.Village, address.Suburb} {
		if v != "" {
			return v
		}
	}
	return ""
}

func buildLabel(p Place) string {
	street := strings.TrimSpace(p.Street + " " + p.HouseNumber)
	locality := strings.TrimSpace(p.PostalCode + " " + p.City)
	parts := make([]string, 0, 2)
	for _, v := range []string{street, locality} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
