package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    EnvFilePath `optional:"true"`
}

// LoadConfig loads configuration in four passes:
//  1. the .env file (if any) is loaded into the process environment,
//  2. ${VAR} placeholders in the embedded YAML are expanded,
//  3. the YAML is unmarshalled and zero values are filled from `default` tags,
//  4. environment variables named after the upper-cased yaml path override scalars
//     (e.g. SURFIN_BATCH_CHUNK_SIZE).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	loadEnvFile(envFilePath)

	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to apply config defaults", err)
	}
	if err := ApplyEnvOverrides(cfg, ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err)
	}
	if err := validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config and applies the logging settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(string(params.EnvFilePath), params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	logger.SetFormat(cfg.Surfin.System.Logging.Format)
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	return cfg, nil
}

func loadEnvFile(envFilePath string) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
		return
	}
	if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
}

func validate(cfg *Config) error {
	if cfg.Surfin.Batch.ChunkSize <= 0 {
		return fmt.Errorf("surfin.batch.chunk_size must be positive, got %d", cfg.Surfin.Batch.ChunkSize)
	}
	if cfg.Surfin.Batch.WriteBatchSize <= 0 {
		return fmt.Errorf("surfin.batch.write_batch_size must be positive, got %d", cfg.Surfin.Batch.WriteBatchSize)
	}
	if _, err := time.LoadLocation(cfg.Surfin.System.Timezone); err != nil {
		return fmt.Errorf("surfin.system.timezone '%s' is not a valid IANA zone: %w", cfg.Surfin.System.Timezone, err)
	}
	switch cfg.Surfin.Metrics.Backend {
	case "prometheus", "otlp", "none":
	default:
		return fmt.Errorf("surfin.metrics.backend must be one of prometheus, otlp, none; got '%s'", cfg.Surfin.Metrics.Backend)
	}
	return nil
}

// DecodeSection decodes a raw map (an adapter entry or the application block) into target
// using yaml tag names, then fills zero values from `default` tags.
func DecodeSection(raw interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if raw != nil {
		if err := decoder.Decode(raw); err != nil {
			return err
		}
	}
	return defaults.Set(target)
}

// ApplyEnvOverrides walks the struct behind ptr and overrides scalar fields from
// environment variables named PREFIX + upper-cased yaml path, joined with "_".
func ApplyEnvOverrides(ptr interface{}, prefix string) error {
	val := reflect.ValueOf(ptr)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ApplyEnvOverrides expects a pointer to a struct, got %T", ptr)
	}
	return loadStructFromEnv(val.Elem(), prefix)
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// Maps and other composite kinds are left to YAML.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := reflect.MakeSlice(field.Type(), 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = reflect.Append(out, reflect.ValueOf(p))
				}
			}
			field.Set(out)
		}
	}
	return nil
}
