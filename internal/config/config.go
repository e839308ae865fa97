package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingEnv       = errors.New("required environment variable not set")
	ErrHostListMismatch = errors.New("container host configuration lists have mismatched lengths")
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Metrics     MetricsConfig
	Distributor DistributorConfig
	Cleanup     CleanupConfig
	Hosts       []ContainerHost
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Addr     string
	User     string
	Password string
	Database string
}

type MetricsConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DistributorConfig struct {
	BearerToken string
	Image       string
	Strategy    string
	StartPort   int
	SSHDir      string
	SSHTimeout  time.Duration
	LogDir      string
}

type CleanupConfig struct {
	SessionInterval   time.Duration
	ContainerInterval time.Duration
	StatsInterval     time.Duration
	LogInterval       time.Duration
	IdleMinutes       int
	Concurrency       int
}

// ContainerHost is one entry of the host pool: address, SSH credential,
// capacity and the TLS material bind-mounted into containers started there.
type ContainerHost struct {
	Addr          string
	User          string
	KeyFile       string
	Passphrase    string
	MaxContainers int
	TLSCert       string
	TLSKey        string
}

// Load reads the whole configuration from the environment. The host pool
// lists are index-aligned; any length mismatch is a fatal startup error.
func Load() (*Config, error) {
	for _, name := range []string{
		"CONTAINER_HOSTS",
		"CONTAINER_HOSTS_KEYS",
		"CONTAINER_HOSTS_TLS_CERTS",
		"MAX_CONTAINERS_RUNNING",
		"START_PORT",
		"AUTH_TOKEN",
	} {
		if os.Getenv(name) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingEnv, name)
		}
	}

	hosts, err := ParseHosts(
		os.Getenv("CONTAINER_HOSTS"),
		os.Getenv("CONTAINER_HOSTS_KEYS"),
		os.Getenv("MAX_CONTAINERS_RUNNING"),
		os.Getenv("CONTAINER_HOSTS_TLS_CERTS"),
	)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Addr:     getEnv("POSTGRES_ADDR", "localhost:5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "wrp_distributor"),
		},
		Metrics: MetricsConfig{
			Addr:            getEnv("METRICS_ADDR", ":9090"),
			ShutdownTimeout: getDurationEnv("METRICS_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Distributor: DistributorConfig{
			BearerToken: os.Getenv("AUTH_TOKEN"),
			Image:       getEnv("WRP_IMAGE", "alb42/amifoxserver:latest"),
			Strategy:    getEnv("CONTAINER_DISTRIBUTION_METHOD", "equal"),
			StartPort:   getIntEnv("START_PORT", 8100),
			SSHDir:      getEnv("SSH_DIR", "ssh"),
			SSHTimeout:  getDurationEnv("SSH_TIMEOUT", 30*time.Second),
			LogDir:      getEnv("WRP_LOG_DIR", "logs/containers"),
		},
		Cleanup: CleanupConfig{
			SessionInterval:   getDurationEnv("CLEANUP_SESSION_INTERVAL", 5*time.Minute),
			ContainerInterval: getDurationEnv("CLEANUP_CONTAINER_INTERVAL", 15*time.Minute),
			StatsInterval:     getDurationEnv("STATS_COLLECT_INTERVAL", 5*time.Minute),
			LogInterval:       getDurationEnv("LOG_COLLECT_INTERVAL", 30*time.Minute),
			IdleMinutes:       getIntEnv("SESSION_IDLE_MINUTES", 10),
			Concurrency:       getIntEnv("WORKER_CONCURRENCY", 5),
		},
		Hosts: hosts,
	}, nil
}

// ParseHosts builds the host pool from the four comma-separated,
// index-aligned environment lists. Credential entries are
// "user~keyfile" or "user~keyfile~passphrase"; TLS entries are "cert~key".
func ParseHosts(hostsCSV, keysCSV, maxCSV, certsCSV string) ([]ContainerHost, error) {
	addrs := splitList(hostsCSV)
	keys := splitList(keysCSV)
	maxes := splitList(maxCSV)
	certs := splitList(certsCSV)

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no container hosts configured", ErrHostListMismatch)
	}
	if len(keys) != len(addrs) || len(maxes) != len(addrs) || len(certs) != len(addrs) {
		return nil, fmt.Errorf("%w: hosts=%d keys=%d maxContainers=%d tlsCerts=%d",
			ErrHostListMismatch, len(addrs), len(keys), len(maxes), len(certs))
	}

	hosts := make([]ContainerHost, len(addrs))
	for i, addr := range addrs {
		keyParts := strings.Split(keys[i], "~")
		if len(keyParts) < 2 {
			return nil, fmt.Errorf("%w: credential %q needs user~keyfile", ErrHostListMismatch, keys[i])
		}

		certParts := strings.Split(certs[i], "~")
		if len(certParts) != 2 {
			return nil, fmt.Errorf("%w: tls entry %q needs cert~key", ErrHostListMismatch, certs[i])
		}

		maxContainers, err := strconv.Atoi(strings.TrimSpace(maxes[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid max containers %q", ErrHostListMismatch, maxes[i])
		}

		hosts[i] = ContainerHost{
			Addr:          addr,
			User:          keyParts[0],
			KeyFile:       keyParts[1],
			MaxContainers: maxContainers,
			TLSCert:       certParts[0],
			TLSKey:        certParts[1],
		}
		if len(keyParts) > 2 {
			hosts[i].Passphrase = keyParts[2]
		}
	}

	return hosts, nil
}

// TotalMaxContainers is the summed capacity of the whole pool.
func TotalMaxContainers(hosts []ContainerHost) int {
	total := 0
	for _, h := range hosts {
		total += h.MaxContainers
	}
	return total
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
