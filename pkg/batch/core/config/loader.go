package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

const moduleName = "config"

var durationType = reflect.TypeOf(time.Duration(0))

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander `optional:"true"`
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
	OverlayPath    string              `name:"configOverlayPath" optional:"true"`
}

// loadConfig builds the configuration in this order: defaults, embedded YAML,
// an optional YAML overlay file, .env, then environment variables.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, overlayPath string, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	if err := unmarshalOnto(cfg, embeddedConfig, expander); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	if overlayPath != "" {
		raw, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read config file '%s'", overlayPath), err, false, false)
		}
		if err := unmarshalOnto(cfg, raw, expander); err != nil {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to unmarshal config file '%s'", overlayPath), err, false, false)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// unmarshalOnto decodes YAML over cfg. Keys absent from the document keep their
// current values; named database entries are merged key by key.
func unmarshalOnto(cfg *Config, raw []byte, expander EnvironmentExpander) error {
	if len(raw) == 0 {
		return nil
	}
	expanded, err := expander.Expand(raw)
	if err != nil {
		return err
	}
	databases := cfg.Database
	cfg.Database = nil
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		cfg.Database = databases
		return err
	}
	cfg.Database = mergeDatabases(databases, cfg.Database)
	return nil
}

func mergeDatabases(dest, source map[string]interface{}) map[string]interface{} {
	if dest == nil {
		dest = make(map[string]interface{})
	}
	for name, value := range source {
		srcEntry, srcOK := value.(map[string]interface{})
		dstEntry, dstOK := dest[name].(map[string]interface{})
		if !srcOK || !dstOK {
			dest[name] = value
			continue
		}
		merged := make(map[string]interface{}, len(dstEntry)+len(srcEntry))
		for k, v := range dstEntry {
			merged[k] = v
		}
		for k, v := range srcEntry {
			merged[k] = v
		}
		dest[name] = merged
	}
	return dest
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also applies the logging settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.OverlayPath, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.SetFormat(cfg.System.Logging.Format)
	logger.Infof("Log level set to: %s", cfg.System.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML, the optional overlay file,
// .env and environment variables.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig, overlayPath string) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, overlayPath, nil)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Batch.ChunkSize < 1 {
		return exception.NewBatchErrorf(moduleName, "batch.chunk_size must be at least 1, got %d", c.Batch.ChunkSize)
	}
	if c.Batch.ItemSkip.SkipLimit < 0 {
		return exception.NewBatchErrorf(moduleName, "batch.item_skip.skip_limit must not be negative, got %d", c.Batch.ItemSkip.SkipLimit)
	}
	if c.Batch.ChunkTimeout < 0 {
		return exception.NewBatchErrorf(moduleName, "batch.chunk_timeout must not be negative, got %s", c.Batch.ChunkTimeout)
	}
	if err := checkExceptionClasses(c.Batch.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
		return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	if c.Batch.JobName == "" {
		return exception.NewBatchErrorf(moduleName, "batch.job_name must not be empty")
	}
	if len([]rune(c.Input.Delimiter)) != 1 {
		return exception.NewBatchErrorf(moduleName, "input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	switch c.Infrastructure.JobRepositoryType {
	case "sql", "inmemory":
	default:
		return exception.NewBatchErrorf(moduleName, "infrastructure.job_repository_type must be 'sql' or 'inmemory', got '%s'", c.Infrastructure.JobRepositoryType)
	}
	switch c.Metrics.Exporter {
	case "", "none", "prometheus", "otlp":
	default:
		return exception.NewBatchErrorf(moduleName, "metrics.exporter must be one of none, prometheus, otlp; got '%s'", c.Metrics.Exporter)
	}
	switch c.Tracing.Exporter {
	case "", "none", "otlp":
	default:
		return exception.NewBatchErrorf(moduleName, "tracing.exporter must be one of none, otlp; got '%s'", c.Tracing.Exporter)
	}
	return nil
}

// checkExceptionClasses validates that all exception class names in the provided list
// are registered in the exception registry.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name, e.g. BATCH_CHUNK_SIZE.
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

		if field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
			loadRawMapFromEnv(field, envVarName+"_")
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

// loadRawMapFromEnv fills a map of named raw sections from variables like
// DATABASE_DEFAULT_HOST=localhost, which sets database.default.host. Values stay
// strings; the consumer decodes them with weak typing.
func loadRawMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
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
		if len(keyAndField) < 2 || keyAndField[0] == "" || keyAndField[1] == "" {
			continue
		}
		name := strings.ToLower(keyAndField[0])
		key := strings.ToLower(keyAndField[1])

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(name)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				for k, v := range m {
					entry[k] = v
				}
			}
		}
		entry[key] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(entry))
	}
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
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
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
