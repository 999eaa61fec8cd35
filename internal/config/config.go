package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Duration decodes "30s"-style strings from TOML and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Server struct {
	Port         int `toml:"port"`
	ReadTimeout  int `toml:"read_timeout"`
	WriteTimeout int `toml:"write_timeout"`
	IdleTimeout  int `toml:"idle_timeout"`
}

type Judge struct {
	MaxRequests        int     `toml:"max_requests"`
	MaxCPUs            float64 `toml:"max_cpus"`
	MaxMemory          int     `toml:"max_memory"`
	MinMemory          int     `toml:"min_memory"`
	MaxTime            int     `toml:"max_time"`
	MinTime            int     `toml:"min_time"`
	MaxTestCases       int     `toml:"max_test_cases"`
	ExecutionTimeoutMs int     `toml:"execution_timeout_ms"`
	BuildTimeoutMs     int     `toml:"build_timeout_ms"`
	CommandTimeoutMs   int     `toml:"command_timeout_ms"`
	OOMExitCode        int     `toml:"oom_exit_code"`
	TimeoutExitCode    int     `toml:"timeout_exit_code"`
	Workdir            string  `toml:"workdir"`
	DeleteImage        bool    `toml:"delete_image"`
	DockerBinary       string  `toml:"docker_binary"`
}

type Cleanup struct {
	MinWorkers  int      `toml:"min_workers"`
	MaxWorkers  int      `toml:"max_workers"`
	QueueSize   int      `toml:"queue"`
	IdleTimeout Duration `toml:"idle_timeout"`
}

type Deferred struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue"`
}

type RateLimit struct {
	GlobalRPS float64 `toml:"global_rps"`
	IPRPS     float64 `toml:"ip_rps"`
	IPBurst   int     `toml:"ip_burst"`
}

type Hooks struct {
	Backend string   `toml:"backend"`
	TTL     Duration `toml:"ttl"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Db struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

type Nats struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Server    Server    `toml:"server"`
	Judge     Judge     `toml:"judge"`
	Cleanup   Cleanup   `toml:"cleanup"`
	Deferred  Deferred  `toml:"deferred"`
	RateLimit RateLimit `toml:"rate_limit"`
	Hooks     Hooks     `toml:"hooks"`
	Redis     Redis     `toml:"redis"`
	Db        Db        `toml:"db"`
	Nats      Nats      `toml:"nats"`
	Log       Log       `toml:"log"`
}

func Default() *Config {
	return &Config{
		Server: Server{Port: 8082, ReadTimeout: 30, WriteTimeout: 120, IdleTimeout: 60},
		Judge: Judge{
			MaxRequests:        10,
			MaxCPUs:            0.5,
			MaxMemory:          10000,
			MinMemory:          0,
			MaxTime:            15,
			MinTime:            1,
			MaxTestCases:       20,
			ExecutionTimeoutMs: 20000,
			BuildTimeoutMs:     60000,
			CommandTimeoutMs:   10000,
			OOMExitCode:        139,
			TimeoutExitCode:    124,
			Workdir:            "./executions",
			DeleteImage:        true,
			DockerBinary:       "docker",
		},
		Cleanup: Cleanup{
			MinWorkers:  1,
			MaxWorkers:  16,
			QueueSize:   256,
			IdleTimeout: Duration{30 * time.Second},
		},
		Deferred:  Deferred{Workers: 5, QueueSize: 100},
		RateLimit: RateLimit{GlobalRPS: 100, IPRPS: 10, IPBurst: 20},
		Hooks:     Hooks{Backend: "memory", TTL: Duration{time.Hour}},
		Redis:     Redis{Addr: "localhost:6379"},
		Db:        Db{Host: "localhost", Port: 5432, User: "postgres", Name: "judge", SSLMode: "disable"},
		Nats:      Nats{Subject: "judge.executions"},
		Log:       Log{Level: "info", Format: "console"},
	}
}

// LoadConfig layers defaults, an optional TOML file named by CONFIG_FILE and
// environment variables (including a .env file), in that order.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.int("PORT", &c.Server.Port)
	e.int("READ_TIMEOUT", &c.Server.ReadTimeout)
	e.int("WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.int("IDLE_TIMEOUT", &c.Server.IdleTimeout)

	e.int("MAX_REQUESTS", &c.Judge.MaxRequests)
	e.float("MAX_CPUS", &c.Judge.MaxCPUs)
	e.int("MAX_MEMORY", &c.Judge.MaxMemory)
	e.int("MIN_MEMORY", &c.Judge.MinMemory)
	e.int("MAX_TIME", &c.Judge.MaxTime)
	e.int("MIN_TIME", &c.Judge.MinTime)
	e.int("MAX_TEST_CASES", &c.Judge.MaxTestCases)
	e.int("EXECUTION_TIMEOUT_MS", &c.Judge.ExecutionTimeoutMs)
	e.int("BUILD_TIMEOUT_MS", &c.Judge.BuildTimeoutMs)
	e.int("COMMAND_TIMEOUT_MS", &c.Judge.CommandTimeoutMs)
	e.int("OOM_EXIT_CODE", &c.Judge.OOMExitCode)
	e.int("TIMEOUT_EXIT_CODE", &c.Judge.TimeoutExitCode)
	e.string("WORKDIR", &c.Judge.Workdir)
	e.bool("DELETE_IMAGE", &c.Judge.DeleteImage)
	e.string("DOCKER_BINARY", &c.Judge.DockerBinary)

	e.int("CLEANUP_MIN_WORKERS", &c.Cleanup.MinWorkers)
	e.int("CLEANUP_MAX_WORKERS", &c.Cleanup.MaxWorkers)
	e.int("CLEANUP_QUEUE", &c.Cleanup.QueueSize)
	e.duration("CLEANUP_IDLE_TIMEOUT", &c.Cleanup.IdleTimeout)

	e.int("DEFERRED_WORKERS", &c.Deferred.Workers)
	e.int("DEFERRED_QUEUE", &c.Deferred.QueueSize)

	e.float("RATE_GLOBAL_RPS", &c.RateLimit.GlobalRPS)
	e.float("RATE_IP_RPS", &c.RateLimit.IPRPS)
	e.int("RATE_IP_BURST", &c.RateLimit.IPBurst)

	e.string("HOOKS_BACKEND", &c.Hooks.Backend)
	e.duration("HOOKS_TTL", &c.Hooks.TTL)

	e.string("REDIS_ADDR", &c.Redis.Addr)
	e.string("REDIS_PASSWORD", &c.Redis.Password)
	e.int("REDIS_DB", &c.Redis.DB)

	e.string("DB_HOST", &c.Db.Host)
	e.int("DB_PORT", &c.Db.Port)
	e.string("DB_USER", &c.Db.User)
	e.string("DB_PASSWORD", &c.Db.Password)
	e.string("DB_NAME", &c.Db.Name)
	e.string("DB_SSLMODE", &c.Db.SSLMode)

	e.string("NATS_URL", &c.Nats.URL)
	e.string("NATS_SUBJECT", &c.Nats.Subject)

	e.string("LOG_LEVEL", &c.Log.Level)
	e.string("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "PORT must be a valid port, got %d", c.Server.Port)
	check(c.Judge.MaxRequests > 0, "MAX_REQUESTS must be positive, got %d", c.Judge.MaxRequests)
	check(c.Judge.MaxCPUs > 0, "MAX_CPUS must be positive, got %v", c.Judge.MaxCPUs)
	check(c.Judge.MinMemory >= 0 && c.Judge.MinMemory <= c.Judge.MaxMemory,
		"memory bounds must satisfy 0 <= MIN_MEMORY <= MAX_MEMORY, got %d and %d", c.Judge.MinMemory, c.Judge.MaxMemory)
	// timeout(1) treats a zero duration as no limit at all.
	check(c.Judge.MinTime >= 1 && c.Judge.MinTime <= c.Judge.MaxTime,
		"time bounds must satisfy 1 <= MIN_TIME <= MAX_TIME, got %d and %d", c.Judge.MinTime, c.Judge.MaxTime)
	check(c.Judge.MaxTestCases > 0, "MAX_TEST_CASES must be positive, got %d", c.Judge.MaxTestCases)
	check(c.Judge.ExecutionTimeoutMs > 0, "EXECUTION_TIMEOUT_MS must be positive")
	check(c.Judge.BuildTimeoutMs > 0, "BUILD_TIMEOUT_MS must be positive")
	check(c.Judge.CommandTimeoutMs > 0, "COMMAND_TIMEOUT_MS must be positive")
	check(c.Judge.OOMExitCode != 0 && c.Judge.TimeoutExitCode != 0 && c.Judge.OOMExitCode != c.Judge.TimeoutExitCode,
		"OOM_EXIT_CODE and TIMEOUT_EXIT_CODE must be distinct non-zero codes")
	check(c.Judge.Workdir != "", "WORKDIR must not be empty")
	check(c.Cleanup.MaxWorkers > 0 && c.Cleanup.MinWorkers >= 0 && c.Cleanup.MinWorkers <= c.Cleanup.MaxWorkers,
		"cleanup workers must satisfy 0 <= CLEANUP_MIN_WORKERS <= CLEANUP_MAX_WORKERS")
	check(c.Cleanup.QueueSize > 0, "CLEANUP_QUEUE must be positive")
	check(c.Deferred.Workers > 0 && c.Deferred.QueueSize > 0, "DEFERRED_WORKERS and DEFERRED_QUEUE must be positive")
	check(c.RateLimit.GlobalRPS > 0 && c.RateLimit.IPRPS > 0 && c.RateLimit.IPBurst > 0, "rate limits must be positive")

	switch c.Hooks.Backend {
	case "memory", "redis", "postgres":
	default:
		errs = append(errs, fmt.Errorf("HOOKS_BACKEND must be memory, redis or postgres, got %q", c.Hooks.Backend))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (j Judge) ExecutionTimeout() time.Duration {
	return time.Duration(j.ExecutionTimeoutMs) * time.Millisecond
}

func (j Judge) BuildTimeout() time.Duration {
	return time.Duration(j.BuildTimeoutMs) * time.Millisecond
}

func (j Judge) CommandTimeout() time.Duration {
	return time.Duration(j.CommandTimeoutMs) * time.Millisecond
}

// SyncRunBudget is the longest a valid synchronous run can take: one image
// build plus, for every test case, a container run under the largest hard
// timeout followed by an inspect.
func (j Judge) SyncRunBudget() time.Duration {
	hard := max(j.ExecutionTimeout(), time.Duration(j.MaxTime+5)*time.Second)
	return j.BuildTimeout() + time.Duration(j.MaxTestCases)*(hard+j.CommandTimeout())
}

// HTTPWriteTimeout is WRITE_TIMEOUT, raised to the synchronous run budget
// when it is shorter.
func (c *Config) HTTPWriteTimeout() time.Duration {
	return max(time.Duration(c.Server.WriteTimeout)*time.Second, c.Judge.SyncRunBudget())
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) string(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *Duration) {
	if v, ok := e.get(key); ok {
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		}
	}
}
