// Package discovery lists the publicly listed wikis from the WikiDiscover API.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Site identifies one hosted wiki by its database name.
type Site struct {
	ID string
}

// Config controls the discovery request.
type Config struct {
	Endpoint  string
	State     string
	SiteProp  string
	UserAgent string
	Timeout   time.Duration
}

// Lister queries the discovery endpoint once per run.
type Lister struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
}

// ErrMalformedResponse is returned when the API answers with something other than a site list.
var ErrMalformedResponse = errors.New("malformed discovery response")

// New builds a Lister. A nil client gets a resty client configured from cfg.
func New(cfg Config, client *resty.Client, logger *zap.Logger) *Lister {
	if cfg.State == "" {
		cfg.State = "public"
	}
	if cfg.SiteProp == "" {
		cfg.SiteProp = "dbname"
	}
	if client == nil {
		client = resty.New()
		if cfg.Timeout > 0 {
			client.SetTimeout(cfg.Timeout)
		}
		if cfg.UserAgent != "" {
			client.SetHeader("User-Agent", cfg.UserAgent)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{cfg: cfg, client: client, logger: logger}
}

// List returns site identifiers in response order. Any failure here is fatal to the run.
func (l *Lister) List(ctx context.Context) ([]Site, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"action":     "wikidiscover",
			"format":     "json",
			"wdstate":    l.cfg.State,
			"wdsiteprop": l.cfg.SiteProp,
		}).
		Get(l.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d body: %s", resp.StatusCode(), snippet(resp.Body()))
	}

	sites, err := l.decode(resp.Body())
	if err != nil {
		return nil, err
	}
	l.logger.Info("discovered sites", zap.Int("count", len(sites)))
	return sites, nil
}

type apiEnvelope struct {
	Records json.RawMessage `json:"wikidiscover"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type siteRecord map[string]json.RawMessage

func (l *Lister) decode(body []byte) ([]Site, error) {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("discovery api error %s: %s", env.Error.Code, env.Error.Info)
	}
	if len(env.Records) == 0 || string(env.Records) == "null" {
		return nil, fmt.Errorf("%w: missing wikidiscover member", ErrMalformedResponse)
	}

	records, err := orderedRecords(env.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	sites := make([]Site, 0, len(records))
	for i, rec := range records {
		id := l.siteID(rec)
		if id == "" {
			l.logger.Warn("discovery record without site id", zap.Int("index", i), zap.String("prop", l.cfg.SiteProp))
			continue
		}
		sites = append(sites, Site{ID: id})
	}
	return sites, nil
}

func (l *Lister) siteID(rec siteRecord) string {
	raw, ok := rec[l.cfg.SiteProp]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// orderedRecords accepts either a JSON array of records or an object of records keyed by
// site, keeping document order in both cases.
func orderedRecords(raw json.RawMessage) ([]siteRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty record list")
	}
	switch trimmed[0] {
	case '[':
		var list []siteRecord
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode record list: %w", err)
		}
		return list, nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("decode record object: %w", err)
		}
		var list []siteRecord
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode record key: %w", err)
			}
			var rec siteRecord
			if err := dec.Decode(&rec); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			list = append(list, rec)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected record list token %q", trimmed[0])
	}
}

func snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
