// Package datadog adapts the batched HTTP sink to the Datadog logs intake:
// JSON and text encodings, authentication header and healthcheck rules.
package datadog

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ibs-source/logship/internal/batch"
	"github.com/ibs-source/logship/internal/clock"
	"github.com/ibs-source/logship/internal/config"
	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/policy"
	"github.com/ibs-source/logship/internal/sink"
	"github.com/ibs-source/logship/internal/transport"
)

// Name identifies the sink in logs
const Name = "datadog_logs"

// Supported codecs
const (
	CodecJSON = "json"
	CodecText = "text"
)

// Options assemble a Sink
type Options struct {
	Config       config.SinkConfig
	DrainTimeout time.Duration
	Clock        clock.Clock
	Logger       *log.Logger
	// Observer receives batch notifications, Attempts receives one
	// notification per request attempt. Both are optional.
	Observer sink.Observer
	Attempts policy.Observer
}

// Sink is a running logs sink together with the HTTP client it owns
type Sink struct {
	sink.Sink
	client *transport.Client
}

// New validates the sink configuration and builds the sink for its codec
func New(o Options) (*Sink, error) {
	cfg := o.Config
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrConfigInvalid, err)
	}
	if o.Logger == nil {
		o.Logger = log.New()
	}

	compression, err := encoding.ParseCompression(cfg.Compression.Type, cfg.Compression.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrConfigInvalid, err)
	}
	rules, err := rulesFromConfig(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrConfigInvalid, err)
	}

	client, err := transport.NewClient(transport.Settings{
		TLS: transport.TLSSettings{
			CACert:       cfg.TLS.CACert,
			ClientCert:   cfg.TLS.ClientCert,
			ClientKey:    cfg.TLS.ClientKey,
			InsecureSkip: cfg.TLS.InsecureSkip,
		},
		MaxConnsPerHost: cfg.Request.Concurrency,
	}, o.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrConfigInvalid, err)
	}

	svc, err := policy.New(client, policySettings(cfg.Request), o.Clock, o.Logger, o.Attempts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrConfigInvalid, err)
	}

	template := requestTemplate{
		uri:         cfg.Endpoint,
		apiKey:      cfg.APIKey,
		compression: compression,
	}
	settings := sink.Settings{
		Batch:        batchSettings(cfg.Encoding.Codec, cfg.Batch),
		Timeout:      cfg.Batch.Timeout,
		DrainTimeout: o.DrainTimeout,
	}

	var s sink.Sink
	switch cfg.Encoding.Codec {
	case CodecJSON:
		template.contentType = ContentTypeJSON
		keys := Keys{
			Message:   cfg.Encoding.MessageKey,
			Timestamp: cfg.Encoding.TimestampKey,
			Host:      cfg.Encoding.HostKey,
		}
		s, err = newDriver(newJSONEncoder(keys, rules, template), svc, client, settings, o)
	case CodecText:
		template.contentType = ContentTypeText
		s, err = newDriver(newTextEncoder(cfg.Encoding.MessageKey, rules, template), svc, client, settings, o)
	}
	if err != nil {
		return nil, err
	}

	o.Logger.InfoWithFields(log.Fields{
		"sink":        Name,
		"endpoint":    cfg.Endpoint,
		"codec":       cfg.Encoding.Codec,
		"compression": string(compression.Kind),
	}, "Logs sink configured")

	return &Sink{Sink: s, client: client}, nil
}

// Close releases the idle connections of the sink's client
func (s *Sink) Close() error {
	return s.client.Close()
}

func newDriver[T any](enc encoding.Encoder[T], svc *policy.Service, sender transport.Sender, settings sink.Settings, o Options) (sink.Sink, error) {
	d, err := sink.NewDriver(sink.Options[T]{
		Name:     Name,
		Encoder:  enc,
		Policy:   svc,
		Sender:   sender,
		Settings: settings,
		Health:   Health,
		Clock:    o.Clock,
		Logger:   o.Logger,
		Observer: o.Observer,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// batchSettings derives the buffer limits for codec so that a full batch
// produces a body of at most MaxBytes
func batchSettings(codec string, cfg config.BatchConfig) batch.Settings {
	s := batch.Settings{MaxEvents: cfg.MaxEvents, MaxBytes: cfg.MaxBytes}
	if codec == CodecJSON {
		s.MaxBytes -= jsonArrayClose
	}
	return s
}

// validate fills the default endpoint and checks the limits the intake
// imposes
func validate(cfg *config.SinkConfig) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	switch cfg.Encoding.Codec {
	case CodecJSON, CodecText:
	default:
		return fmt.Errorf("encoding codec must be %s or %s, got %q", CodecJSON, CodecText, cfg.Encoding.Codec)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultEndpoint
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q is not a valid URL", cfg.Endpoint)
	}
	if cfg.Batch.MaxBytes < config.MinBatchBytes || cfg.Batch.MaxBytes > config.MaxBatchBytes {
		return fmt.Errorf("batch max bytes must be between %d and %d, got %d",
			config.MinBatchBytes, config.MaxBatchBytes, cfg.Batch.MaxBytes)
	}
	return nil
}

func policySettings(r config.RequestConfig) policy.Settings {
	return policy.Settings{
		Concurrency:       r.Concurrency,
		Timeout:           r.Timeout,
		RetryAttempts:     r.RetryAttempts,
		InitialBackoff:    r.RetryInitialBackoff,
		Multiplier:        r.RetryMultiplier,
		MaxBackoff:        r.RetryMaxBackoff,
		Jitter:            r.RetryJitter,
		RateLimitNum:      r.RateLimitNum,
		RateLimitDuration: r.RateLimitDuration,
	}
}
