package config

const (
	EnvPrefix = "DEBTBOOK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"

	EnvAppEnv        = "DEBTBOOK_APP_ENV"
	EnvPort          = "DEBTBOOK_APP_PORT"
	EnvStorageDriver = "DEBTBOOK_STORAGE_DRIVER"
	EnvDBDSN         = "DEBTBOOK_DB_DSN"
	EnvSQLitePath    = "DEBTBOOK_SQLITE_PATH"
	EnvDBHost        = "DEBTBOOK_DB_HOST"
	EnvDBUser        = "DEBTBOOK_DB_USER"
	EnvDBName        = "DEBTBOOK_DB_NAME"
	EnvRedisURL      = "DEBTBOOK_REDIS_URL"
	EnvGoogleClient  = "DEBTBOOK_GOOGLE_CLIENT_ID"
	EnvBackupRoot    = "DEBTBOOK_BACKUP_ROOT_FOLDER"
	EnvBackupLimit   = "DEBTBOOK_BACKUP_THRESHOLD"
	EnvRetryDelay    = "DEBTBOOK_RETRY_BASE_DELAY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
