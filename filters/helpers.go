package filters

import "github.com/wudi/pdfcapture/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// The returned params are aligned with the names; missing entries are nil.
func ExtractFilters(dict raw.Dict) ([]string, []raw.Dict) {
	var names []string
	var params []raw.Dict

	switch f := dict["Filter"].(type) {
	case raw.Name:
		names = append(names, string(f))
	case raw.Array:
		for _, item := range f {
			if n, ok := item.(raw.Name); ok {
				names = append(names, string(n))
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}

	params = make([]raw.Dict, len(names))
	switch p := dict["DecodeParms"].(type) {
	case raw.Dict:
		params[0] = p
	case raw.Array:
		for i, item := range p {
			if i >= len(params) {
				break
			}
			if d, ok := item.(raw.Dict); ok {
				params[i] = d
			}
		}
	}
	return names, params
}
