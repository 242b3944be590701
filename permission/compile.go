package permission

import "sort"

// Compile flattens a grant map into a mask over reg. Values may be bool or a
// nested map (module -> sub-permission -> bool); nested keys are joined with ".".
// Only true values set bits. Names that are not registered, and values of any
// other type, are skipped and returned in sorted order so callers can log them.
func Compile(reg *Registry, grants map[string]any) (Mask, []string) {
	mask := reg.NewMask()
	var skipped []string
	compileInto(reg, mask, "", grants, &skipped)
	sort.Strings(skipped)
	return mask, skipped
}

func compileInto(reg *Registry, mask Mask, prefix string, grants map[string]any, skipped *[]string) {
	for key, value := range grants {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		switch v := value.(type) {
		case bool:
			bit, ok := reg.Bit(name)
			if !ok {
				*skipped = append(*skipped, name)
				continue
			}
			if v {
				mask.Set(bit)
			}
		case map[string]any:
			compileInto(reg, mask, name, v, skipped)
		case map[string]bool:
			nested := make(map[string]any, len(v))
			for k, b := range v {
				nested[k] = b
			}
			compileInto(reg, mask, name, nested, skipped)
		default:
			*skipped = append(*skipped, name)
		}
	}
}

// Expand returns the granted names of mask as a flat dotted-name map, the inverse
// of [Compile] for registered names.
func Expand(reg *Registry, mask Mask) map[string]any {
	out := make(map[string]any)
	if mask == nil {
		return out
	}
	for bit, name := range reg.Names() {
		if mask.Has(bit) {
			out[name] = true
		}
	}
	return out
}
