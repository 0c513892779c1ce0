package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config - main application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig - HTTP server settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig - PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig - JWT settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Load loads the configuration from a YAML file with env overrides
func Load(path string) (*Config, error) {
	// .env is optional; deployments normally rely on real environment variables
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if envPort := os.Getenv("PORT"); envPort != "" {
		cfg.Server.Port = envPort
	}
	if envDBHost := os.Getenv("DB_HOST"); envDBHost != "" {
		cfg.Database.Host = envDBHost
	}
	if envDBPort := os.Getenv("DB_PORT"); envDBPort != "" {
		cfg.Database.Port = envDBPort
	}
	if envDBUser := os.Getenv("DB_USER"); envDBUser != "" {
		cfg.Database.User = envDBUser
	}
	if envDBPassword := os.Getenv("DB_PASSWORD"); envDBPassword != "" {
		cfg.Database.Password = envDBPassword
	}
	if envDBName := os.Getenv("DB_NAME"); envDBName != "" {
		cfg.Database.DBName = envDBName
	}
	if envSecret := os.Getenv("JWT_SECRET"); envSecret != "" {
		cfg.Auth.JWTSecret = envSecret
	}

	return &cfg, nil
}
