package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Server ServerConfig
	Schema SchemaConfig
	Store  StoreConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string
	Mode string
}

// SchemaConfig 模式文档配置
type SchemaConfig struct {
	FilePath string
	// ConsistencyMode strict / minimum-requirements / ignore
	ConsistencyMode string
}

// StoreConfig 后端存储配置
type StoreConfig struct {
	// Driver memory 或 sqlite
	Driver string
	Path   string
}

// Load 加载配置
func Load() (*Config, error) {
	// 尝试加载 .env 文件，如果不存在也不报错
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "debug"),
		},
		Schema: SchemaConfig{
			FilePath:        getEnv("SCHEMA_FILE_PATH", "./ontology/schema.yaml"),
			ConsistencyMode: getEnv("CONSISTENCY_MODE", "strict"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "memory"),
			Path:   getEnv("STORE_PATH", "./data/ontograph.db"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
