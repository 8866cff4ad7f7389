package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds the settings of the app. It is read from .config.json and
// then overridden by FORKCHAN_* environment variables, which may also come
// from a .env file.
type Config struct {
	Port          int            `json:"port"`
	Env           string         `json:"env"`
	Pepper        string         `json:"pepper"`
	HMACKey       string         `json:"hmac_key"`
	LogLevel      string         `json:"log_level"`
	Store         string         `json:"store"`
	TxRetries     int            `json:"tx_retries"`
	MaxImageBytes int64          `json:"max_image_bytes"`
	MaxSessions   int            `json:"max_sessions"`
	Database      PostgresConfig `json:"database"`
	Mongo         MongoConfig    `json:"mongo"`
	Redis         RedisConfig    `json:"redis"`
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool {
	return c.Env == "prod"
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`

	// MaxOpenConns caps the connection pool. Zero leaves it unbounded.
	MaxOpenConns int `json:"max_open_conns"`
}

func (pc PostgresConfig) ConnectionInfo() string {
	if pc.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", pc.Host, pc.Port, pc.User, pc.Name)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", pc.Host, pc.Port, pc.User, pc.Password, pc.Name)
}

type MongoConfig struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// RedisConfig enables the realtime change feed when Host is set.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (rc RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", rc.Host, rc.Port)
}

func DefaultConfig() Config {
	return Config{
		Port:          1111,
		Env:           "dev",
		Pepper:        "secret-random-string",
		HMACKey:       "secret-hmac-key",
		LogLevel:      "debug",
		Store:         "memory",
		TxRetries:     5,
		MaxImageBytes: 5 << 20,
		MaxSessions:   1024,
		Database:      DefaultPostgresConfig(),
		Mongo: MongoConfig{
			URI:  "mongodb://localhost:27017/?replicaSet=rs0",
			Name: "fork_chan",
		},
		Redis: RedisConfig{Port: 6379},
	}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:         "localhost",
		Port:         5432,
		User:         "postgres",
		Password:     "",
		Name:         "fork_chan",
		MaxOpenConns: 20,
	}
}

// LoadConfig loads .config.json if present, otherwise the default dev setup.
// If required is true the file must exist and LoadConfig panics without it.
func LoadConfig(required bool) Config {
	c := DefaultConfig()
	f, err := os.Open(".config.json")
	if err != nil {
		if required {
			panic("a .config.json file must be provided in production")
		}
		log.Info("no .config.json found, using the default config")
	} else {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			panic(err)
		}
		log.Info("successfully loaded .config.json")
	}

	_ = godotenv.Load(".env")
	applyEnv(&c)
	return c
}

// applyEnv overrides c with the FORKCHAN_* environment variables that are set.
func applyEnv(c *Config) {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv("FORKCHAN_" + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv("FORKCHAN_" + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.WithField("var", "FORKCHAN_"+name).Warn("ignoring non numeric value")
				return
			}
			*dst = n
		}
	}
	str("ENV", &c.Env)
	num("PORT", &c.Port)
	str("PEPPER", &c.Pepper)
	str("HMAC_KEY", &c.HMACKey)
	str("LOG_LEVEL", &c.LogLevel)
	str("STORE", &c.Store)
	num("TX_RETRIES", &c.TxRetries)
	num("MAX_SESSIONS", &c.MaxSessions)
	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	num("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	str("MONGO_URI", &c.Mongo.URI)
	str("MONGO_NAME", &c.Mongo.Name)
	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	if v, ok := os.LookupEnv("FORKCHAN_MAX_IMAGE_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxImageBytes = n
		}
	}
}
