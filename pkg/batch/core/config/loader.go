package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const (
	moduleName = "config"
	// envPrefix is prepended to every yaml path when looking up environment overrides.
	envPrefix = "SURFIN_"
)

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// loadConfig builds the configuration in four layers:
// defaults, .env file, embedded YAML (after ${VAR} expansion), environment overrides.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	if len(embeddedConfig) > 0 {
		if expander == nil {
			expander = NewOsEnvironmentExpander()
		}
		expanded, err := expander.Expand(embeddedConfig)
		if err != nil {
			return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
		}

		var yamlConfig Config
		if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
			return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
		}
		mergeConfig(cfg, &yamlConfig)
	}

	if err := loadStructFromEnv(reflect.ValueOf(&cfg.Surfin).Elem(), envPrefix); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config and applies the log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	return cfg, nil
}

// LoadConfig loads configuration outside of Fx (CLI subcommands, tests).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, embeddedConfig, nil)
	if err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

func validate(cfg *Config) error {
	if cfg.Surfin.Batch.ChunkSize <= 0 {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("batch.chunk_size must be positive, got %d", cfg.Surfin.Batch.ChunkSize), nil)
	}
	if strings.TrimSpace(cfg.Surfin.Batch.DataDir) == "" {
		return exception.NewConfigurationError(moduleName, "batch.data_dir must not be empty", nil)
	}
	if r := cfg.Surfin.Batch.Retry; r.MaxAttempts < 1 || r.InitialIntervalMs < 0 {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("batch.retry needs max_attempts >= 1 and initial_interval_ms >= 0, got %d and %d", r.MaxAttempts, r.InitialIntervalMs), nil)
	}
	return nil
}

// mergeConfig copies every non-zero value of source into dest.
func mergeConfig(dest, source *Config) {
	mergeStruct(reflect.ValueOf(&dest.Surfin).Elem(), reflect.ValueOf(&source.Surfin).Elem())
}

// mergeStruct walks two values of the same struct type. Raw maps are merged key by key
// so that YAML can override a single datasource field without restating the others.
func mergeStruct(dest, source reflect.Value) {
	for i := 0; i < dest.NumField(); i++ {
		df, sf := dest.Field(i), source.Field(i)
		switch df.Kind() {
		case reflect.Struct:
			mergeStruct(df, sf)
		case reflect.Map:
			if sf.IsNil() {
				continue
			}
			if raw, ok := sf.Interface().(map[string]interface{}); ok {
				existing, _ := df.Interface().(map[string]interface{})
				df.Set(reflect.ValueOf(mergeRawMap(existing, raw)))
				continue
			}
			df.Set(sf)
		default:
			if !sf.IsZero() {
				df.Set(sf)
			}
		}
	}
}

// mergeRawMap deep-merges src into dst and returns dst (allocated when nil).
func mergeRawMap(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		srcChild, srcIsMap := v.(map[string]interface{})
		dstChild, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			dst[k] = mergeRawMap(copyRawMap(dstChild), srcChild)
			continue
		}
		dst[k] = v
	}
	return dst
}

func copyRawMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// loadStructFromEnv recursively loads values into a struct from environment variables.
// The variable name is the upper-cased yaml path, e.g. SURFIN_BATCH_DATA_DIR.
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

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
				loadRawMapFromEnv(field, envVarName+"_")
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

// loadRawMapFromEnv applies overrides to a map[string]interface{} of named entries.
//
// SURFIN_DATASOURCE_PRIMARY_HOST=db1 sets ["primary"]["host"] = "db1".
// SURFIN_DATASOURCE_SECONDARY_POOL_MAX_OPEN_CONNS=3 sets ["secondary"]["pool"]["max_open_conns"] = "3".
// Values stay strings; configbinder converts them when the entry is decoded.
func loadRawMapFromEnv(mapField reflect.Value, prefix string) {
	var raw map[string]interface{}
	if !mapField.IsNil() {
		raw, _ = mapField.Interface().(map[string]interface{})
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField := strings.SplitN(parts[0], "_", 2)
		if len(keyAndField) != 2 || keyAndField[0] == "" || keyAndField[1] == "" {
			continue
		}
		if raw == nil {
			raw = make(map[string]interface{})
		}
		entryName := strings.ToLower(keyAndField[0])
		fieldName := strings.ToLower(keyAndField[1])

		entry, _ := raw[entryName].(map[string]interface{})
		entry = copyRawMap(entry)
		if nested, ok := strings.CutPrefix(fieldName, "pool_"); ok {
			pool, _ := entry["pool"].(map[string]interface{})
			pool = copyRawMap(pool)
			pool[nested] = parts[1]
			entry["pool"] = pool
		} else {
			entry[fieldName] = parts[1]
		}
		raw[entryName] = entry
	}

	if raw != nil {
		mapField.Set(reflect.ValueOf(raw))
	}
}

// setField sets a scalar field from its string representation.
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
	}
	return nil
}
