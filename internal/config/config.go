package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	// Multiplier бизнес-константы движка множителя трафика.
	// Значения по умолчанию: база 0.8, потолок 1.0, шаг 500 -> +0.05.
	Multiplier struct {
		Base         string `mapstructure:"base"`
		Ceiling      string `mapstructure:"ceiling"`
		StepAmount   string `mapstructure:"stepAmount"`
		StepIncrease string `mapstructure:"stepIncrease"`
	} `mapstructure:"multiplier"`
}

// LoadConfig загружает конфигурацию из файла или переменных окружения.
func LoadConfig(envPath string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env опционален: локально удобно, в контейнере не нужен
		_ = godotenv.Load(envPath)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.env", "development")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("multiplier.base", "0.8")
	viper.SetDefault("multiplier.ceiling", "1.0")
	viper.SetDefault("multiplier.stepAmount", "500")
	viper.SetDefault("multiplier.stepIncrease", "0.05")

	viper.AutomaticEnv() // Чтение переменных окружения

	if err := viper.ReadInConfig(); err != nil {
		// Отсутствие config.yml не фатально, все значения можно задать окружением
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
