package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var (
	errBrokerNotProvided      = errors.New("kafka broker address not provided")
	errPublisherNotConfigured = errors.New("publisher not configured or topic is empty")
)

const (
	DefaultBatchSize    = 100
	DefaultBatchBytes   = 1048576
	DefaultBatchTimeout = 1000
)

type Config struct {
	Brokers          []string
	BatchSize        int
	BatchBytes       int
	BatchTimeout     int // nanoseconds
	SASLMechanism    string
	SASLUser         string
	SASLPassword     string
	SecurityProtocol string
	TLS              TLSConfig
}

type TLSConfig struct {
	CertFile, KeyFile, CACertFile string
	InsecureSkipVerify            bool
}

// Writer is the subset of *kafka.Writer used by the client.
type Writer interface {
	WriteMessages(ctx context.Context, msg ...kafka.Message) error
	Close() error
}

type Client interface {
	Publish(ctx context.Context, topic string, key, message []byte) error
	Close() error
}

type kafkaClient struct {
	writer Writer
	config Config
}

func New(conf *Config) (Client, error) {
	if conf == nil || len(conf.Brokers) == 0 {
		return nil, errBrokerNotProvided
	}
	cfg := *conf
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.SecurityProtocol == "" {
		cfg.SecurityProtocol = "PLAINTEXT"
	}

	dialer, err := setupDialer(&cfg)
	if err != nil {
		return nil, err
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Dialer:       dialer,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: time.Duration(cfg.BatchTimeout),
	})
	return &kafkaClient{writer: writer, config: cfg}, nil
}

// NewWithWriter builds a client over an existing writer.
func NewWithWriter(w Writer) Client {
	return &kafkaClient{writer: w}
}

func setupDialer(cfg *Config) (*kafka.Dialer, error) {
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	protocol := strings.ToUpper(cfg.SecurityProtocol)

	if protocol == "SASL_PLAINTEXT" || protocol == "SASL_SSL" {
		mech, err := getSASLMechanism(cfg.SASLMechanism, cfg.SASLUser, cfg.SASLPassword)
		if err != nil {
			return nil, err
		}
		dialer.SASLMechanism = mech
	}
	if protocol == "SSL" || protocol == "SASL_SSL" {
		tlsConfig, err := createTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, err
		}
		dialer.TLS = tlsConfig
	}
	return dialer, nil
}

func getSASLMechanism(mechanism, username, password string) (sasl.Mechanism, error) {
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, username, password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, username, password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", mechanism)
	}
}

func createTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (k *kafkaClient) Publish(ctx context.Context, topic string, key, message []byte) error {
	if k.writer == nil || topic == "" {
		return errPublisherNotConfigured
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: message, Time: time.Now()})
}

func (k *kafkaClient) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
