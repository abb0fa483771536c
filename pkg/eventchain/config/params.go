package config

// Params holds the free-form parameters of a handler or generator spec.
// All accessors return the default when the key is missing or the value
// cannot be converted to the requested type; factories that need a value to
// be present check with Has first.
type Params map[string]any

// Has reports whether the key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string value for key, or defaultVal.
func (p Params) String(key, defaultVal string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (p Params) Bool(key string, defaultVal bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal. Whole floats
// convert; fractional ones do not.
func (p Params) Int(key string, defaultVal int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal. Integers convert.
func (p Params) Float(key string, defaultVal float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Floats returns the float slice for key, or defaultVal. YAML sequences
// arrive as []any; every element must convert.
func (p Params) Floats(key string, defaultVal []float64) []float64 {
	switch v := p[key].(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch f := item.(type) {
			case float64:
				out = append(out, f)
			case int:
				out = append(out, float64(f))
			default:
				return defaultVal
			}
		}
		return out
	}
	return defaultVal
}
