// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Cache      CacheConfig      `json:"cache"`
	Treasury   TreasuryConfig   `json:"treasury"`
	Workflow   WorkflowConfig   `json:"workflow"`
	Operators  OperatorsConfig  `json:"operators"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	APIKey          string        `json:"api_key"` // shared secret for the workflow engine
	SweepInterval   time.Duration `json:"sweep_interval"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
	ToStdout   bool   `json:"to_stdout"`
}

type CacheConfig struct {
	RedisURL  string        `json:"redis_url"`
	ResultTTL time.Duration `json:"result_ttl"`
	Enabled   bool          `json:"enabled"`
}

// TreasuryConfig carries the deployment-level gateway defaults. Per-field
// overrides and district DDO routing layer on top of these at request time.
type TreasuryConfig struct {
	Endpoint      string            `json:"endpoint"`
	MerchantCode  string            `json:"merchant_code"`
	DeptID        string            `json:"dept_id"`
	ServiceCode   string            `json:"service_code"`
	DdoCode       string            `json:"ddo_code"`
	PayerID       string            `json:"payer_id"`
	ReturnURL     string            `json:"return_url"`
	KeyPath       string            `json:"key_path"`
	Head1Code     string            `json:"head1_code"`
	Head1Percent  string            `json:"head1_percent"`
	Head2Code     string            `json:"head2_code"`
	Head2Percent  string            `json:"head2_percent"`
	Head3Code     string            `json:"head3_code"`
	Head3Percent  string            `json:"head3_percent"`
	Head4Code     string            `json:"head4_code"`
	Head4Percent  string            `json:"head4_percent"`
	Head10Code    string            `json:"head10_code"`
	Head10Percent string            `json:"head10_percent"`
	DdoByDistrict map[string]string `json:"ddo_by_district"`
}

type WorkflowConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// OperatorsConfig lists operator accounts as username:bcrypt-hash pairs
type OperatorsConfig struct {
	Credentials map[string]string `json:"credentials"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"` // production, staging, development
	Version     string `json:"version"`
}

// IsProduction reports whether placeholder gateway configuration must be refused
func (d DeploymentConfig) IsProduction() bool {
	return d.Environment == "production"
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "hptourism_payments"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://hptourism.hp.gov.in"}),
			APIKey:          getEnvString("SERVICE_API_KEY", ""),
			SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "hptourism-payments"),
			Audience:        getEnvString("JWT_AUDIENCE", "hptourism-admin"),
		},
		Logging: LoggingConfig{
			FilePath:   getEnvString("LOG_FILE_PATH", "logs/payments.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
			ToStdout:   getEnvBool("LOG_TO_STDOUT", true),
		},
		Cache: CacheConfig{
			RedisURL:  getEnvString("REDIS_URL", ""),
			ResultTTL: getEnvDuration("REDIS_RESULT_TTL", 24*time.Hour),
			Enabled:   getEnvBool("REDIS_ENABLED", false),
		},
		Treasury: TreasuryConfig{
			Endpoint:      getEnvString("TREASURY_ENDPOINT", "https://himkosh.hp.nic.in/echallan/SingleWindow"),
			MerchantCode:  getEnvString("TREASURY_MERCHANT_CODE", ""),
			DeptID:        getEnvString("TREASURY_DEPT_ID", ""),
			ServiceCode:   getEnvString("TREASURY_SERVICE_CODE", ""),
			DdoCode:       getEnvString("TREASURY_DDO_CODE", ""),
			PayerID:       getEnvString("TREASURY_PAYER_ID", ""),
			ReturnURL:     getEnvString("TREASURY_RETURN_URL", ""),
			KeyPath:       getEnvString("TREASURY_KEY_PATH", "/etc/hptourism/enc.key"),
			Head1Code:     getEnvString("TREASURY_HEAD1_CODE", ""),
			Head1Percent:  getEnvString("TREASURY_HEAD1_PERCENT", "100"),
			Head2Code:     getEnvString("TREASURY_HEAD2_CODE", ""),
			Head2Percent:  getEnvString("TREASURY_HEAD2_PERCENT", ""),
			Head3Code:     getEnvString("TREASURY_HEAD3_CODE", ""),
			Head3Percent:  getEnvString("TREASURY_HEAD3_PERCENT", ""),
			Head4Code:     getEnvString("TREASURY_HEAD4_CODE", ""),
			Head4Percent:  getEnvString("TREASURY_HEAD4_PERCENT", ""),
			Head10Code:    getEnvString("TREASURY_HEAD10_CODE", ""),
			Head10Percent: getEnvString("TREASURY_HEAD10_PERCENT", ""),
			DdoByDistrict: getEnvStringMap("TREASURY_DDO_BY_DISTRICT", map[string]string{}),
		},
		Workflow: WorkflowConfig{
			BaseURL: getEnvString("WORKFLOW_BASE_URL", ""),
			APIKey:  getEnvString("WORKFLOW_API_KEY", ""),
			Timeout: getEnvDuration("WORKFLOW_TIMEOUT", 30*time.Second),
		},
		Operators: OperatorsConfig{
			Credentials: getEnvStringMap("OPERATOR_CREDENTIALS", map[string]string{}),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("APP_VERSION", "dev"),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// getEnvStringMap parses "key1=value1;key2=value2" into a map
func getEnvStringMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result := make(map[string]string)
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" || !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		k := strings.TrimSpace(parts[0])
		v := strings.TrimSpace(parts[1])
		if k != "" && v != "" {
			result[k] = v
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "database host is required")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "database name is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "database user is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT secret key is required")
	} else if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT secret key must be at least 32 characters")
	}

	if cfg.Treasury.KeyPath == "" {
		errors = append(errors, "treasury encryption key path is required")
	}

	if cfg.Deployment.IsProduction() {
		if cfg.Server.APIKey == "" {
			errors = append(errors, "service API key is required in production")
		}
		if cfg.Workflow.BaseURL == "" {
			errors = append(errors, "workflow base URL is required in production")
		}
		if len(cfg.Operators.Credentials) == 0 {
			errors = append(errors, "at least one operator credential is required in production")
		}
		if cfg.Database.SSLMode == "disable" {
			errors = append(errors, "database SSL must not be disabled in production")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
