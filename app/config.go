package huddle

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	// Port is the Port number to listen on. The default is 3000.
	Port int `validate:"required,port"`
	// Host is the interface to listen on. The default is 0.0.0.0.
	Host string `validate:"required"`
	// AllowedOrigins is a list of origins that are allowed to call the API and open websockets.
	// The default is ["*"].
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"min=1"`
	// StaticDir is served at the root when it exists. The default is ./public.
	StaticDir string `mapstructure:"static_dir"`

	Log struct {
		Level  string `validate:"oneof=debug info warn error"`
		Format string `validate:"oneof=json console"`
	}

	Store struct {
		// Driver selects the message store. When it cannot be opened the server falls back to memory.
		Driver string `validate:"oneof=sqlite mysql redis memory"`
	}

	SQLite struct {
		File string `validate:"required"`
	}

	MySQL struct {
		Host     string `validate:"required"`
		Port     int    `validate:"port"`
		User     string
		Password string
		Name     string `validate:"required"`
	}

	Redis struct {
		Address  string `validate:"required"`
		Password string
		DB       int `validate:"min=0"`
	}

	WS struct {
		ReadLimit   int64         `mapstructure:"read_limit" validate:"min=0"`
		WriteBuffer int           `mapstructure:"write_buffer" validate:"min=0"`
		WriteWait   time.Duration `mapstructure:"write_wait" validate:"min=0"`
		PongWait    time.Duration `mapstructure:"pong_wait" validate:"min=0"`
	}

	TLS struct {
		Crt string `validate:"required_with=Key"`
		Key string `validate:"required_with=Crt"`
	}

	valid bool
}

// envBindings maps config keys to the environment variables they are read from.
var envBindings = map[string][]string{
	"port":            {"PORT"},
	"host":            {"HOST"},
	"allowed_origins": {"ALLOWED_ORIGINS"},
	"static_dir":      {"STATIC_DIR"},
	"log.level":       {"LOG_LEVEL"},
	"log.format":      {"LOG_FORMAT"},
	"store.driver":    {"STORE_DRIVER"},
	"sqlite.file":     {"SQLITE_FILE"},
	"mysql.host":      {"DB_HOST"},
	"mysql.port":      {"DB_PORT"},
	"mysql.user":      {"DB_USER"},
	"mysql.password":  {"DB_PASSWORD"},
	"mysql.name":      {"DB_NAME"},
	"redis.address":   {"REDIS_ADDRESS"},
	"redis.password":  {"REDIS_PASSWORD"},
	"redis.db":        {"REDIS_DB"},
	"ws.read_limit":   {"WS_READ_LIMIT"},
	"ws.write_buffer": {"WS_WRITE_BUFFER"},
	"ws.write_wait":   {"WS_WRITE_WAIT"},
	"ws.pong_wait":    {"WS_PONG_WAIT"},
	"tls.crt":         {"TLS_CRT"},
	"tls.key":         {"TLS_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("static_dir", "./public")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("sqlite.file", "./huddle.db")
	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.name", "chat_app")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ws.read_limit", 64*1024)
	v.SetDefault("ws.write_buffer", 256)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")
}

// LoadConfig loads the configuration from a .env file, the config file and environment variables,
// in increasing order of precedence. Both files are optional.
// Any invalid configuration will not be loaded, and the error wil be cought in the validation step.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	config.AllowedOrigins = trimOrigins(config.AllowedOrigins)
	return config, nil
}

func trimOrigins(origins []string) []string {
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			trimmed = append(trimmed, o)
		}
	}
	return trimmed
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

// Addr is the address the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)

	var sb strings.Builder
	for _, v := range translated {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
