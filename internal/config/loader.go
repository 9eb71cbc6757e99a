package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/structs"
	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override. A field's variable is the
// prefix, its section's TOML key and its own TOML key, upper-cased and
// joined by underscores: [server] port is SETTLED_SERVER_PORT.
const EnvPrefix = "SETTLED"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLED_* environment variable overrides, and
// returns the final Config. An empty path skips the file. A .env file in
// the working directory, when present, is read into the environment
// first. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overwrites every field whose variable is set and non-empty.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	// DATABASE_URL is the conventional name; the prefixed one still wins.
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Postgres.DSN = v
	}

	var errs []error
	for _, section := range structs.New(cfg).Fields() {
		sectionKey := tomlKey(section)
		for _, f := range section.Fields() {
			if !f.IsExported() {
				continue
			}
			name := envName(sectionKey, tomlKey(f))
			raw, ok := lookup(name)
			if !ok || raw == "" {
				continue
			}
			v, err := parseEnv(reflect.TypeOf(f.Value()), raw)
			if err == nil {
				err = f.Set(v)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

func tomlKey(f *structs.Field) string {
	if key, _, _ := strings.Cut(f.Tag("toml"), ","); key != "" {
		return key
	}
	return f.Name()
}

func envName(section, key string) string {
	return EnvPrefix + "_" + strings.ToUpper(section) + "_" + strings.ToUpper(key)
}

var durationType = reflect.TypeOf(duration{})

// parseEnv converts raw into a value of type t. Lists are comma separated.
func parseEnv(t reflect.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if t == durationType {
		d, err := time.ParseDuration(raw)
		return duration{d}, err
	}

	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			break
		}
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}
