package taskpool

import (
	"fmt"
	"sort"
	"strings"
)

// mergeParams overlays call-time params onto a function's declared
// defaults; a call-time value always wins for a given key.
func mergeParams(defaults, params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(params))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// substitute performs a single simultaneous textual pass replacing every
// "$K" with the stringified value of params[K]. It never recurses into its
// own output, so a substituted value that itself contains "$other" is left
// alone. Longer keys are tried first at any given position so "$parameter"
// is not shadowed by a shorter "$param".
func substitute(tpl string, params map[string]interface{}) string {
	if len(params) == 0 {
		return tpl
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "$"+k, stringify(params[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
