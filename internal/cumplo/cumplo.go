package cumplo

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
)

const (
	apiURL      = "https://api.cumplo.cl/graphql"
	detailsURL  = "https://secure.cumplo.cl/inversiones/solicitudes"
	userAgent   = "cumplo-spotter/cumplo-spotter"
	dicomString = "CLIENTE CON DICOM"
	// Page size used by the marketplace web client.
	pageSize    = 50
	concurrency = 8
	timeout     = 10 * time.Second
)

// Config holds the marketplace settings read from the configuration file.
type Config struct {
	APIURL      string        `mapstructure:"api-url"`
	DetailsURL  string        `mapstructure:"details-url"`
	UserAgent   string        `mapstructure:"user-agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PageSize    int           `mapstructure:"page-size"`
	MaxPages    int           `mapstructure:"max-pages"`
	Concurrency int           `mapstructure:"concurrency"`
	DicomString string        `mapstructure:"dicom-string"`
}

type Client struct {
	logger      *zap.Logger
	HTTPClient  *http.Client
	UserAgent   string
	APIURL      string
	DetailsURL  string
	PageSize    int
	MaxPages    int
	Concurrency int
	DicomString string
	Lexicon     funding.Lexicon
}

func New(logger *zap.Logger, cfg Config, lex funding.Lexicon) *Client {
	c := &Client{
		logger:      logger,
		HTTPClient:  &http.Client{Timeout: timeout},
		UserAgent:   userAgent,
		APIURL:      apiURL,
		DetailsURL:  detailsURL,
		PageSize:    pageSize,
		MaxPages:    cfg.MaxPages,
		Concurrency: concurrency,
		DicomString: dicomString,
		Lexicon:     lex,
	}

	if cfg.APIURL != "" {
		c.APIURL = cfg.APIURL
	}
	if cfg.DetailsURL != "" {
		c.DetailsURL = cfg.DetailsURL
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}
	if cfg.PageSize > 0 {
		c.PageSize = cfg.PageSize
	}
	if cfg.Concurrency > 0 {
		c.Concurrency = cfg.Concurrency
	}
	if cfg.DicomString != "" {
		c.DicomString = cfg.DicomString
	}

	return c
}
