// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	Backend         `yaml:"backend"`
	CryptoLink      `yaml:"crypto_link"`
	Links           `yaml:"links"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	RateLimit   int           `yaml:"rate_limit" env-default:"20"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Backend структура для настройки клиента основного API
type Backend struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutBackend time.Duration `yaml:"timeout" env-default:"10s"`
}

// CryptoLink структура для настройки сервиса шифрования ссылок
type CryptoLink struct {
	Endpoint      string        `yaml:"endpoint"`
	TimeoutCrypto time.Duration `yaml:"timeout" env-default:"5s"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env-default:"1h"`
}

// AppLinks ссылки на установку клиента по платформам
type AppLinks struct {
	IOS     string `yaml:"ios"`
	Android string `yaml:"android"`
	Windows string `yaml:"windows"`
}

// Links внешние ссылки, которые отдаются страницей подключения
type Links struct {
	Happ       AppLinks `yaml:"happ"`
	SupportURL string   `yaml:"support_url"`
	TermsURL   string   `yaml:"terms_url"`
}

// MustLoad функция для загрузки конфига, путь берется из переменной окружения CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  User: %s\n"+
			"  DB: %d\n"+
			"  MaxRetries: %d\n"+
			"  DialTimeout: %s\n"+
			"  Timeout: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"  RateLimit: %d\n"+
			"Backend:\n"+
			"  BaseURL: %s\n"+
			"  Timeout: %s\n"+
			"CryptoLink:\n"+
			"  Endpoint: %s\n"+
			"  Timeout: %s\n"+
			"  CacheTTL: %s\n",
		c.Env,
		c.AddressRedis,
		c.User,
		c.DB,
		c.MaxRetries,
		c.DialTimeout,
		c.TimeoutRedis,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RateLimit,
		c.BaseURL,
		c.TimeoutBackend,
		c.Endpoint,
		c.TimeoutCrypto,
		c.CacheTTL,
	)
}
