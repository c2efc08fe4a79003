package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Google  GoogleConfig
	Backup  BackupConfig
	Retry   RetryConfig
	API     APIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.UsesSQL() {
		if err := cfg.DB.ensureDSN(cfg.Storage.Driver); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DEBTBOOK_APP_ENV" default:"dev"`
	Port         string `envconfig:"DEBTBOOK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DEBTBOOK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"DEBTBOOK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"DEBTBOOK_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"DEBTBOOK_AUTO_MIGRATE" default:"true"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects where the ledger and auth records are persisted.
type StorageConfig struct {
	Driver string `envconfig:"DEBTBOOK_STORAGE_DRIVER" default:"sqlite"`
}

func (s StorageConfig) UsesSQL() bool {
	return s.Driver == StorageDriverSQLite || s.Driver == StorageDriverPostgres
}

func (s StorageConfig) validate() error {
	switch s.Driver {
	case StorageDriverSQLite, StorageDriverPostgres, StorageDriverRedis:
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q (want %s, %s or %s)", s.Driver, StorageDriverSQLite, StorageDriverPostgres, StorageDriverRedis)
}

type DBConfig struct {
	DSN        string `envconfig:"DEBTBOOK_DB_DSN"`
	SQLitePath string `envconfig:"DEBTBOOK_SQLITE_PATH" default:"debtbook.db"`

	LegacyHost     string `envconfig:"DEBTBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"DEBTBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DEBTBOOK_DB_USER"`
	LegacyPassword string `envconfig:"DEBTBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"DEBTBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"DEBTBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DEBTBOOK_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"DEBTBOOK_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DEBTBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DEBTBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Driver is copied from StorageConfig during Load.
	Driver string `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DEBTBOOK_REDIS_URL"`
	Address      string        `envconfig:"DEBTBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"DEBTBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"DEBTBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DEBTBOOK_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"DEBTBOOK_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"DEBTBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DEBTBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DEBTBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GoogleConfig points at the identity provider and the Drive REST API.
type GoogleConfig struct {
	ClientID         string        `envconfig:"DEBTBOOK_GOOGLE_CLIENT_ID"`
	TokenURL         string        `envconfig:"DEBTBOOK_GOOGLE_TOKEN_URL" default:"https://www.googleapis.com/oauth2/v4/token"`
	UserInfoURL      string        `envconfig:"DEBTBOOK_GOOGLE_USERINFO_URL" default:"https://www.googleapis.com/userinfo/v2/me"`
	DriveBaseURL     string        `envconfig:"DEBTBOOK_DRIVE_BASE_URL" default:"https://www.googleapis.com/drive/v3/"`
	UploadBaseURL    string        `envconfig:"DEBTBOOK_DRIVE_UPLOAD_BASE_URL" default:"https://www.googleapis.com/upload/drive/v3/"`
	RefreshThreshold time.Duration `envconfig:"DEBTBOOK_TOKEN_REFRESH_THRESHOLD" default:"10m"`
	HTTPTimeout      time.Duration `envconfig:"DEBTBOOK_GOOGLE_HTTP_TIMEOUT" default:"15s"`
}

type BackupConfig struct {
	RootFolder   string        `envconfig:"DEBTBOOK_BACKUP_ROOT_FOLDER" default:"Colmado Gutierrez Backups"`
	Threshold    int           `envconfig:"DEBTBOOK_BACKUP_THRESHOLD" default:"10"`
	DateLayout   string        `envconfig:"DEBTBOOK_BACKUP_DATE_LAYOUT" default:"2/1/2006"`
	ProbeURL     string        `envconfig:"DEBTBOOK_NETWORK_PROBE_URL" default:"https://www.google.com"`
	ProbeTimeout time.Duration `envconfig:"DEBTBOOK_NETWORK_PROBE_TIMEOUT" default:"5s"`
}

// APIConfig guards the HTTP API. An empty KeyHash disables the API key check.
type APIConfig struct {
	KeyHash          string   `envconfig:"DEBTBOOK_API_KEY_HASH"`
	CORSOrigins      []string `envconfig:"DEBTBOOK_CORS_ORIGINS" default:"http://localhost:3000"`
	ArgonMemoryKB    int      `envconfig:"DEBTBOOK_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int      `envconfig:"DEBTBOOK_ARGON_TIME" default:"2"`
	ArgonParallelism int      `envconfig:"DEBTBOOK_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int      `envconfig:"DEBTBOOK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int      `envconfig:"DEBTBOOK_ARGON_KEY_LEN" default:"32"`
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"DEBTBOOK_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"DEBTBOOK_RETRY_BASE_DELAY" default:"1s"`
}

func (db *DBConfig) ensureDSN(driver string) error {
	db.Driver = driver
	if driver == StorageDriverSQLite {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		if db.DSN == "" {
			return fmt.Errorf("either %s or %s is required for sqlite", EnvDBDSN, EnvSQLitePath)
		}
		return nil
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
