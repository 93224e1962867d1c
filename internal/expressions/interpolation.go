package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/secrets"
)

// placeholderRe matches {identifier} where identifier may contain dots and dashes.
var placeholderRe = regexp.MustCompile(`\{\s*([A-Za-z0-9_][A-Za-z0-9_.\-]*)\s*\}`)

// Interpolator resolves {name} placeholders.
// Lookup order: context variables, last result data, secret store.
// Unresolved placeholders are left verbatim; resolution never fails.
type Interpolator struct {
	secrets secrets.Resolver
}

// NewInterpolator creates an Interpolator. The secret resolver may be nil.
func NewInterpolator(resolver secrets.Resolver) *Interpolator {
	return &Interpolator{secrets: resolver}
}

// Resolve substitutes every resolvable placeholder in template.
func (in *Interpolator) Resolve(ctx context.Context, template string, ec *execution.Context) string {
	if !HasPlaceholders(template) {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := in.Lookup(ctx, name, ec)
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// ResolveValue applies Resolve recursively through maps and lists. A string
// consisting of exactly one placeholder resolves to the raw value, keeping its type.
func (in *Interpolator) ResolveValue(ctx context.Context, v any, ec *execution.Context) any {
	switch val := v.(type) {
	case string:
		if name, ok := SinglePlaceholder(val); ok {
			if resolved, found := in.Lookup(ctx, name, ec); found {
				return resolved
			}
			return val
		}
		return in.Resolve(ctx, val, ec)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = in.ResolveValue(ctx, item, ec)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = in.ResolveValue(ctx, item, ec)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = in.Resolve(ctx, item, ec)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = in.Resolve(ctx, item, ec)
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a single identifier without braces.
func (in *Interpolator) Lookup(ctx context.Context, name string, ec *execution.Context) (any, bool) {
	if ec != nil {
		if v, ok := ec.Lookup(name); ok {
			return v, true
		}
		if v, ok := ec.LookupLastResult(name); ok {
			return v, true
		}
	}
	if in.secrets == nil {
		return nil, false
	}
	val, err := in.secrets.Resolve(ctx, name)
	if err != nil {
		return nil, false
	}
	return string(val), true
}

// HasPlaceholders reports whether s contains at least one {identifier} token.
func HasPlaceholders(s string) bool {
	return placeholderRe.MatchString(s)
}

// SinglePlaceholder reports whether s is exactly one placeholder and returns its identifier.
func SinglePlaceholder(s string) (string, bool) {
	loc := placeholderRe.FindStringSubmatchIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return "", false
	}
	return s[loc[2]:loc[3]], true
}

// Placeholders returns the identifiers referenced in s, in order of appearance.
func Placeholders(s string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

// Stringify renders a resolved value for embedding in a string.
// Scalars print bare; maps and lists are JSON encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case json.RawMessage:
		return string(val)
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
