package pipeline

import (
	"context"
	"reflect"
	"regexp"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	tagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	jsProtoRe = regexp.MustCompile(`(?i)javascript\s*:`)
	onAttrRe  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Sanitize recursively strips HTML/script-like content from string fields in
// the payload and metadata before they can reach storage or audit logs.
func Sanitize() Stage {
	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		if evt.Payload != nil {
			sanitizeValue(reflect.ValueOf(evt.Payload))
		}
		if evt.Metadata != nil {
			evt.Metadata = sanitizeMap(evt.Metadata)
		}
		return next(ctx, evt, ec)
	}
}

// StripUnsafe removes script blocks, markup, javascript: URIs and inline
// event handler attributes from a string.
func StripUnsafe(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = jsProtoRe.ReplaceAllString(s, "")
	s = onAttrRe.ReplaceAllString(s, "")
	return s
}

func sanitizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = sanitizeAny(v)
	}
	return m
}

func sanitizeAny(v any) any {
	switch val := v.(type) {
	case string:
		return StripUnsafe(val)
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		for i, item := range val {
			val[i] = sanitizeAny(item)
		}
		return val
	default:
		return v
	}
}

// sanitizeValue walks a payload struct (or map) and rewrites settable string
// fields in place.
func sanitizeValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			sanitizeValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			sanitizeValue(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			sanitizeValue(v.Index(i))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Kind() == reflect.Interface || elem.Kind() == reflect.String {
				cleaned := sanitizeAny(elem.Interface())
				if cleaned != nil {
					v.SetMapIndex(key, reflect.ValueOf(cleaned))
				}
			}
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(StripUnsafe(v.String()))
		}
	}
}
