// Package config loads the netdisco configuration from a file and the
// environment.
//
// Every key can be overridden by an environment variable with the NETDISCO_
// prefix, dots replaced by underscores: NETDISCO_ARP_EXPIRY=1m sets
// arp.expiry. Durations are written as Go durations ("30s", "5m").
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dailyyoga/netdisco/arp"
	"github.com/dailyyoga/netdisco/ch"
	"github.com/dailyyoga/netdisco/db"
	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/kafka"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/mdns"
	"github.com/dailyyoga/netdisco/upnp"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides
const EnvPrefix = "NETDISCO"

// Config is the complete process configuration. Optional integrations are
// disabled while their section is absent.
type Config struct {
	Log  logger.Config `mapstructure:"log"`
	HTTP HTTPConfig    `mapstructure:"http"`

	// Sources lists the enabled adapters
	// default: ["arp", "mdns", "upnp"]
	Sources []string    `mapstructure:"sources"`
	ARP     arp.Config  `mapstructure:"arp"`
	MDNS    mdns.Config `mapstructure:"mdns"`
	UPnP    upnp.Config `mapstructure:"upnp"`

	Discovery discovery.Config          `mapstructure:"discovery"`
	Forwarder discovery.ForwarderConfig `mapstructure:"forwarder"`

	Kafka      *KafkaConfig `mapstructure:"kafka"`
	ClickHouse *ClickHouse  `mapstructure:"clickhouse"`
	MySQL      *db.Config   `mapstructure:"mysql"`
}

// HTTPConfig configures the API and metrics listener
type HTTPConfig struct {
	// empty disables the listener
	// default: ":9464"
	Listen string `mapstructure:"listen"`
	// default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must cover on-demand probes
	// default: 60s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig enables the event producer, the probe request consumer, or both
type KafkaConfig struct {
	Producer *kafka.ProducerConfig `mapstructure:"producer"`
	Consumer *kafka.ConsumerConfig `mapstructure:"consumer"`
}

// ClickHouse adds sightings table settings to the client config
type ClickHouse struct {
	ch.Config `mapstructure:",squash"`
	// CreateTable creates the sightings table on startup
	CreateTable bool `mapstructure:"create_table"`
	// default: 90
	TTLDays int `mapstructure:"ttl_days"`
}

// Default returns the configuration used without a file
func Default() *Config {
	return &Config{
		Log:       *logger.DefaultConfig(),
		HTTP:      HTTPConfig{Listen: ":9464", ReadTimeout: 10 * time.Second, WriteTimeout: 60 * time.Second},
		Sources:   []string{arp.Name, mdns.Name, upnp.Name},
		ARP:       *arp.DefaultConfig(),
		MDNS:      *mdns.DefaultConfig(),
		UPnP:      *upnp.DefaultConfig(),
		Discovery: *discovery.DefaultConfig(),
		Forwarder: *discovery.DefaultForwarderConfig(),
	}
}

// Load reads path, or only defaults and environment when path is empty
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ErrRead(path, err)
		}
	}

	cfg := new(Config)
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, ErrDecode(err)
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindDefaults registers every default key so that environment variables
// are seen by Unmarshal even when the file does not mention the key.
// Optional sections behind pointers have no defaults.
func bindDefaults(v *viper.Viper) {
	walkDefaults("", reflect.ValueOf(Default()).Elem(), v.SetDefault)
}

func walkDefaults(prefix string, rv reflect.Value, set func(key string, value any)) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		fv := rv.Field(i)

		if opts == "squash" {
			walkDefaults(prefix, fv, set)
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch fv.Kind() {
		case reflect.Struct:
			walkDefaults(key, fv, set)
		case reflect.Pointer:
			// optional section
		default:
			set(key, fv.Interface())
		}
	}
}

// MergeDefaults fills zero values of every section
func (c *Config) MergeDefaults() {
	c.Log.MergeDefaults()
	if len(c.Sources) == 0 {
		c.Sources = Default().Sources
	}
	c.ARP.MergeDefaults()
	c.MDNS.MergeDefaults()
	c.UPnP.MergeDefaults()
	c.Discovery.MergeDefaults()
	c.Forwarder.MergeDefaults()
	if c.Kafka != nil {
		if c.Kafka.Producer != nil {
			c.Kafka.Producer.MergeDefaults()
		}
		if c.Kafka.Consumer != nil {
			c.Kafka.Consumer.MergeDefaults()
		}
	}
	if c.ClickHouse != nil {
		c.ClickHouse.MergeDefaults()
		if c.ClickHouse.TTLDays == 0 {
			c.ClickHouse.TTLDays = 90
		}
	}
	if c.MySQL != nil {
		c.MySQL.MergeDefaults()
	}
}

// Validate validates every enabled section and returns all problems
func (c *Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("log", c.Log.Validate())
	for _, s := range c.Sources {
		switch s {
		case arp.Name:
			add("arp", c.ARP.Validate())
		case mdns.Name:
			add("mdns", c.MDNS.Validate())
		case upnp.Name:
			add("upnp", c.UPnP.Validate())
		default:
			add("sources", ErrUnknownSource(s))
		}
	}
	add("discovery", c.Discovery.Validate())
	if c.Kafka != nil {
		if c.Kafka.Producer != nil {
			add("kafka.producer", c.Kafka.Producer.Validate())
		}
		if c.Kafka.Consumer != nil {
			add("kafka.consumer", c.Kafka.Consumer.Validate())
		}
	}
	if c.ClickHouse != nil {
		add("clickhouse", c.ClickHouse.Validate())
	}
	if c.MySQL != nil {
		add("mysql", c.MySQL.Validate())
	}
	return errors.Join(errs...)
}

// SourceEnabled reports whether name is listed in Sources
func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}
