package config

import "github.com/fatih/structs"

const redacted = "***"

// RedactedConfig returns a copy of cfg safe to log: every non-empty field
// tagged secret:"true" reads "***". Slices are copied so the result never
// aliases cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, section := range structs.New(&out).Fields() {
		for _, f := range section.Fields() {
			switch v := f.Value().(type) {
			case string:
				if v != "" && f.Tag("secret") == "true" {
					_ = f.Set(redacted)
				}
			case []string:
				_ = f.Set(append([]string(nil), v...))
			}
		}
	}
	return out
}
