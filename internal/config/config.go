package config

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fhuszti/picsee-preprocessor/internal/executor"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/validation"
)

const (
	ExecutorLocal   = executor.KindLocal
	ExecutorProcess = executor.KindProcess
)

// PreprocessSettings drive the image preprocessor and its execution contexts.
type PreprocessSettings struct {
	Concurrency    int           `mapstructure:"POOL_CONCURRENCY" validate:"gte=0"`
	TaskTimeout    time.Duration `mapstructure:"TASK_TIMEOUT" validate:"gt=0"`
	MaxWidth       int           `mapstructure:"MAX_WIDTH" validate:"gt=0"`
	Quality        float64       `mapstructure:"QUALITY" validate:"gt=0,lte=1"`
	RespawnDelay   time.Duration `mapstructure:"RESPAWN_DELAY" validate:"gt=0"`
	Executor       string        `mapstructure:"EXECUTOR" validate:"oneof=local process"`
	TransformerBin string        `mapstructure:"TRANSFORMER_BIN" validate:"required_if=Executor process"`
}

// PoolConfig converts the settings for preprocess.New.
func (p PreprocessSettings) PoolConfig() preprocess.Config {
	return preprocess.Config{
		Concurrency:  p.Concurrency,
		MaxWidth:     p.MaxWidth,
		Quality:      p.Quality,
		TaskTimeout:  p.TaskTimeout,
		RespawnDelay: p.RespawnDelay,
	}
}

type Settings struct {
	Preprocess PreprocessSettings

	ServerPort     int    `mapstructure:"SERVER_PORT" validate:"gt=0,lt=65536"`
	MaxConnections int    `mapstructure:"MAX_CONNECTIONS" validate:"gt=0"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES" validate:"gt=0"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT" validate:"required"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY" validate:"required"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY" validate:"required"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	UploadBucket  string        `mapstructure:"UPLOAD_BUCKET" validate:"required"`
	StagingBucket string        `mapstructure:"STAGING_BUCKET" validate:"required"`
	UploadedTTL   time.Duration `mapstructure:"UPLOADED_TTL" validate:"gt=0"`
}

// Buckets lists every bucket the services expect to exist.
func (s *Settings) Buckets() []string {
	return []string{s.UploadBucket, s.StagingBucket}
}

func readEnv() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found; proceeding with OS environment variables")
	}

	viper.AutomaticEnv()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: could not read .env file: %v", err)
	}
}

// LoadPreprocess reads only the preprocessor settings; the batch CLI needs
// nothing else.
func LoadPreprocess() (*PreprocessSettings, error) {
	readEnv()
	return loadPreprocess()
}

func loadPreprocess() (*PreprocessSettings, error) {
	var (
		p   PreprocessSettings
		err error
	)

	if p.Concurrency, err = intOr("POOL_CONCURRENCY", preprocess.DefaultConcurrency(runtime.NumCPU())); err != nil {
		return nil, err
	}
	timeoutSecs, err := intOr("TASK_TIMEOUT", int(preprocess.DefaultTaskTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	p.TaskTimeout = time.Duration(timeoutSecs) * time.Second
	if p.MaxWidth, err = intOr("MAX_WIDTH", preprocess.DefaultMaxWidth); err != nil {
		return nil, err
	}
	if p.Quality, err = floatOr("QUALITY", preprocess.DefaultQuality); err != nil {
		return nil, err
	}
	respawnMs, err := intOr("RESPAWN_DELAY", int(preprocess.DefaultRespawnDelay/time.Millisecond))
	if err != nil {
		return nil, err
	}
	p.RespawnDelay = time.Duration(respawnMs) * time.Millisecond
	p.Executor = strings.ToLower(stringOr("EXECUTOR", ExecutorLocal))
	p.TransformerBin = stringOr("TRANSFORMER_BIN", "")

	if p.Executor == ExecutorProcess && p.TransformerBin == "" {
		return nil, fmt.Errorf("TRANSFORMER_BIN is required")
	}
	if err := check(p); err != nil {
		return nil, err
	}
	return &p, nil
}

func Load() (*Settings, error) {
	readEnv()

	for _, key := range []string{"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"} {
		if !isSet(key) {
			return nil, fmt.Errorf("%s is required", key)
		}
	}

	pre, err := loadPreprocess()
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Preprocess:     *pre,
		JWTSecret:      stringOr("JWT_SECRET", ""),
		RedisAddr:      stringOr("REDIS_ADDR", ""),
		RedisPassword:  stringOr("REDIS_PASSWORD", ""),
		MinioEndpoint:  viper.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: viper.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: viper.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    viper.GetBool("MINIO_USE_SSL"),
		UploadBucket:   stringOr("UPLOAD_BUCKET", "uploads"),
		StagingBucket:  stringOr("STAGING_BUCKET", "staging"),
	}

	if s.ServerPort, err = intOr("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if s.MaxConnections, err = intOr("MAX_CONNECTIONS", 256); err != nil {
		return nil, err
	}
	maxUpload, err := intOr("MAX_UPLOAD_BYTES", 30*1024*1024)
	if err != nil {
		return nil, err
	}
	s.MaxUploadBytes = int64(maxUpload)
	ttlSecs, err := intOr("UPLOADED_TTL", int((7 * 24 * time.Hour).Seconds()))
	if err != nil {
		return nil, err
	}
	s.UploadedTTL = time.Duration(ttlSecs) * time.Second

	if err := check(s); err != nil {
		return nil, err
	}
	return s, nil
}

// check turns validator failures into a single "X is invalid" error naming
// the first offending key.
func check(v any) error {
	err := validation.ValidateStruct(v)
	if err == nil {
		return nil
	}
	fields := validation.ErrorsToMap(err)
	if len(fields) == 0 {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Errorf("%s is invalid", keys[0])
}

func isSet(key string) bool {
	return viper.IsSet(key) && strings.TrimSpace(viper.GetString(key)) != ""
}

func stringOr(key, def string) string {
	if !isSet(key) {
		return def
	}
	return strings.TrimSpace(viper.GetString(key))
}

func intOr(key string, def int) (int, error) {
	if !isSet(key) {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(viper.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("%s is invalid", key)
	}
	return n, nil
}

func floatOr(key string, def float64) (float64, error) {
	if !isSet(key) {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(viper.GetString(key)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s is invalid", key)
	}
	return f, nil
}
