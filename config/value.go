// Package config is a minimal, explicitly non-core implementation of the
// anubis.ConfigValue/ConfigReader contract. It parses ANUBIS files as YAML
// documents shaped like a map from rule typename to a list of objects
// (mirroring the teacher's own YAML manifest format), and supports plain
// ${variable} substitution — no select/glob expression language.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"code.cloudfoundry.org/anubis"
)

// rawFile is the on-disk shape of an ANUBIS file: typename -> list of
// objects, each expected to carry at least a "name" field.
type rawFile map[string][]map[interface{}]interface{}

// Value is the YAML-backed anubis.ConfigValue implementation. It wraps
// either a whole parsed file (data is a rawFile) or a single object
// extracted from one (data is a map[interface{}]interface{}).
type Value struct {
	data interface{}
}

var _ anubis.ConfigValue = Value{}

// Reader is the anubis.ConfigReader implementation backing Value.
type Reader struct{}

var _ anubis.ConfigReader = Reader{}

// NewReader constructs a Reader. It holds no state: the Orchestrator owns
// the raw-config cache per spec §3.6.
func NewReader() Reader { return Reader{} }

func (Reader) ReadFile(path string) (anubis.ConfigValue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f rawFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return Value{data: f}, nil
}

// Object retrieves the object named name from the whole-file value it was
// parsed from, returning the typename under which it was registered.
func (v Value) Object(name string) (anubis.ConfigValue, string, bool) {
	f, ok := v.data.(rawFile)
	if !ok {
		return nil, "", false
	}
	for typename, objects := range f {
		for _, obj := range objects {
			if str(obj["name"]) == name {
				return Value{data: obj}, typename, true
			}
		}
	}
	return nil, "", false
}

// Decode re-marshals the named object (located the same way Object does,
// or v itself when v is a single object carrying that name, as returned by
// Object) back to YAML and unmarshals it into out, so struct tags on out
// drive field selection the same way they would against hand-written YAML.
func (v Value) Decode(name string, out interface{}) error {
	data, isObject := v.data.(map[interface{}]interface{})
	if !isObject || str(data["name"]) != name {
		obj, _, ok := v.Object(name)
		if !ok {
			return fmt.Errorf("no object named %q in configuration", name)
		}
		data = obj.(Value).data.(map[interface{}]interface{})
	}
	bytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("re-encoding object %q: %w", name, err)
	}
	if err := yaml.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("decoding object %q: %w", name, err)
	}
	return nil
}

// Resolve walks the value substituting ${var} tokens from vars and
// rewriting string values that look like relative paths ("./..." or
// "../...") to be relative to dir.
func (v Value) Resolve(vars map[string]string, dir string) (anubis.ConfigValue, error) {
	resolved, err := resolveAny(v.data, vars, dir)
	if err != nil {
		return nil, err
	}
	return Value{data: resolved}, nil
}

func resolveAny(node interface{}, vars map[string]string, dir string) (interface{}, error) {
	switch n := node.(type) {
	case string:
		return resolveString(n, vars, dir), nil

	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(n))
		for k, v := range n {
			rv, err := resolveAny(v, vars, dir)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(n))
		for i, e := range n {
			rv, err := resolveAny(e, vars, dir)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil

	case []map[interface{}]interface{}:
		out := make([]map[interface{}]interface{}, len(n))
		for i, m := range n {
			rv, err := resolveAny(m, vars, dir)
			if err != nil {
				return nil, err
			}
			out[i] = rv.(map[interface{}]interface{})
		}
		return out, nil

	case rawFile:
		out := make(rawFile, len(n))
		for typename, objs := range n {
			rv, err := resolveAny(objs, vars, dir)
			if err != nil {
				return nil, err
			}
			out[typename] = rv.([]map[interface{}]interface{})
		}
		return out, nil

	default:
		return node, nil
	}
}

func resolveString(s string, vars map[string]string, dir string) string {
	for name, val := range vars {
		s = strings.ReplaceAll(s, "${"+name+"}", val)
	}
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return filepath.Join(dir, s)
	}
	return s
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
