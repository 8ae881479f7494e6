package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/waaa/internal/errs"
)

var durationType = reflect.TypeOf(Duration(0))

// applyEnv overrides cfg from env. Variable names are the upper-cased yaml
// path joined with underscores under EnvPrefix; map keys are part of the
// path, so WAAA_CONNECTIONS_MAIN_HOST sets connections.main.host and a new
// name creates a new connection.
func applyEnv(cfg *Config, env map[string]string) error {
	return applyStruct(cfg, env, EnvPrefix)
}

// applyStruct walks the yaml-tagged fields of the struct ptr points to.
func applyStruct(ptr any, env map[string]string, prefix string) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("applyStruct: %T is not a struct pointer", ptr)
	}
	return loadStruct(v.Elem(), env, prefix)
}

func loadStruct(val reflect.Value, env map[string]string, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		tag := yamlName(typ.Field(i))
		if tag == "" || !field.CanSet() {
			continue
		}
		name := prefix + envName(tag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStruct(field, env, name+"_"); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String &&
			field.Type().Elem().Kind() == reflect.Struct:
			if err := loadMapOfStructs(field, env, name+"_"); err != nil {
				return err
			}
		default:
			raw, ok := env[name]
			if !ok {
				continue
			}
			if err := setField(field, raw); err != nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "invalid value in "+name, err)
			}
		}
	}
	return nil
}

// loadMapOfStructs finds map keys from variable names. The longest field
// name that ends a variable wins, so QUEUE_INTERVAL is not read as a key
// ending in _QUEUE plus a field INTERVAL.
func loadMapOfStructs(m reflect.Value, env map[string]string, prefix string) error {
	elemType := m.Type().Elem()

	var fields []string
	for i := 0; i < elemType.NumField(); i++ {
		if tag := yamlName(elemType.Field(i)); tag != "" {
			fields = append(fields, envName(tag))
		}
	}
	sort.Slice(fields, func(i, j int) bool { return len(fields[i]) > len(fields[j]) })

	keys := map[string]string{}
	if !m.IsNil() {
		for _, k := range m.MapKeys() {
			keys[envName(k.String())] = k.String()
		}
	}

	seen := map[string]bool{}
	for name := range env {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		for _, f := range fields {
			key, ok := strings.CutSuffix(rest, "_"+f)
			if ok && key != "" {
				seen[key] = true
				break
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	if m.IsNil() {
		m.Set(reflect.MakeMap(m.Type()))
	}

	for key := range seen {
		mapKey, ok := keys[key]
		if !ok {
			mapKey = strings.ToLower(key)
		}
		k := reflect.ValueOf(mapKey).Convert(m.Type().Key())

		elem := reflect.New(elemType).Elem()
		if existing := m.MapIndex(k); existing.IsValid() {
			elem.Set(existing)
		}
		if err := loadStruct(elem, env, prefix+key+"_"); err != nil {
			return err
		}
		m.SetMapIndex(k, elem)
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := parseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func yamlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if tag == "-" {
		return ""
	}
	return tag
}

func envName(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(s))
}
