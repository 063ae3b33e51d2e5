package main

import (
	"time"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultTCPPort       = 4000
	defaultAPIPort       = 3000
	defaultOTLPPort      = 4317
	defaultMuxBufferSize = DefaultMuxBuffer
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"

	defaultNeo4jURL      = "http://localhost:7474"
	defaultNeo4jUser     = "neo4j"
	defaultNeo4jProtocol = "http"
	defaultNeo4jQuery    = "CREATE (m:Message {id: $_id, message: $message, source: $source, level: $level, received: '{{.timestamp}}'})"

	defaultKafkaGroupID = "graphsink"
	defaultNATSName     = "graphsink"
	defaultConnTimeout  = 10 * time.Second

	redacted = "******"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	LogLevel  string `mapstructure:"log-level" yaml:"log-level"`
	LogFormat string `mapstructure:"log-format" yaml:"log-format"`

	Neo4jURL          string `mapstructure:"neo4j-url" yaml:"neo4j-url"`
	Neo4jUser         string `mapstructure:"neo4j-user" yaml:"neo4j-user"`
	Neo4jPassword     string `mapstructure:"neo4j-password" yaml:"neo4j-password"`
	Neo4jProtocol     string `mapstructure:"neo4j-protocol" yaml:"neo4j-protocol"`
	Neo4jDatabase     string `mapstructure:"neo4j-database" yaml:"neo4j-database"`
	Neo4jStartupQuery string `mapstructure:"neo4j-startup-query" yaml:"neo4j-startup-query"`
	Neo4jQuery        string `mapstructure:"neo4j-query" yaml:"neo4j-query"`

	TCPEnabled bool   `mapstructure:"tcp-enabled" yaml:"tcp-enabled"`
	TCPPort    int    `mapstructure:"tcp-port" yaml:"tcp-port"`
	TCPAddr    string `mapstructure:"tcp-addr" yaml:"tcp-addr"`

	APIEnabled bool   `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort    int    `mapstructure:"api-port" yaml:"api-port"`
	APIAddr    string `mapstructure:"api-addr" yaml:"api-addr"`

	OTLPEnabled bool   `mapstructure:"otlp-enabled" yaml:"otlp-enabled"`
	OTLPPort    int    `mapstructure:"otlp-port" yaml:"otlp-port"`
	OTLPAddr    string `mapstructure:"otlp-addr" yaml:"otlp-addr"`

	KafkaEnabled bool     `mapstructure:"kafka-enabled" yaml:"kafka-enabled"`
	KafkaBrokers []string `mapstructure:"kafka-brokers" yaml:"kafka-brokers"`
	KafkaTopic   string   `mapstructure:"kafka-topic" yaml:"kafka-topic"`
	KafkaGroupID string   `mapstructure:"kafka-group-id" yaml:"kafka-group-id"`

	NATSEnabled bool   `mapstructure:"nats-enabled" yaml:"nats-enabled"`
	NATSURL     string `mapstructure:"nats-url" yaml:"nats-url"`
	NATSSubject string `mapstructure:"nats-subject" yaml:"nats-subject"`
	NATSQueue   string `mapstructure:"nats-queue" yaml:"nats-queue"`

	AMQPEnabled bool   `mapstructure:"amqp-enabled" yaml:"amqp-enabled"`
	AMQPURL     string `mapstructure:"amqp-url" yaml:"amqp-url"`
	AMQPQueue   string `mapstructure:"amqp-queue" yaml:"amqp-queue"`
	AMQPDeclare bool   `mapstructure:"amqp-declare" yaml:"amqp-declare"`

	ConnTimeout   time.Duration `mapstructure:"conn-timeout" yaml:"conn-timeout"`
	MuxBufferSize int           `mapstructure:"mux-buffer-size" yaml:"mux-buffer-size"`
	ConfigPath    string        `mapstructure:"-" yaml:"-"` // not from config file
}

// redactedCopy returns the config with secrets masked, for printing.
func (c appConfig) redactedCopy() appConfig {
	if c.Neo4jPassword != "" {
		c.Neo4jPassword = redacted
	}
	c.AMQPURL = redactURL(c.AMQPURL)
	c.NATSURL = redactURL(c.NATSURL)
	return c
}
