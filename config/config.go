package config

import (
	"github.com/spf13/viper"
)

// Config is the process configuration, sourced from the environment with
// an optional config.env file for development.
type Config struct {
	Port        int    `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDB     string `mapstructure:"MONGO_DB"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	JWTSecret        string `mapstructure:"JWT_SECRET"`
	JWTExpireHours   int    `mapstructure:"JWT_EXPIRE_HOURS"`
	CookieExpireDays int    `mapstructure:"COOKIE_EXPIRE_DAYS"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPMail     string `mapstructure:"SMTP_MAIL"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	SMSAPIURL string `mapstructure:"SMS_API_URL"`
	SMSFrom   string `mapstructure:"SMS_FROM"`
	SMSAPIKey string `mapstructure:"SMS_API_KEY"`
}

// Load reads configuration from config.env and the environment.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", 8080)
	viper.SetDefault("ENV", "development")
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DB", "scribe")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("JWT_EXPIRE_HOURS", 5)
	viper.SetDefault("COOKIE_EXPIRE_DAYS", 7)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
