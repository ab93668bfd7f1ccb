package services

import "strings"

// DefaultProductID is the product a forecast view falls back to.
const DefaultProductID = "P001"

// CanonicalProducts are always offered, in this order, ahead of anything the
// backend reports.
var CanonicalProducts = []string{"P001", "P002", "P003"}

// productAliases maps the backend's zero-padded storage ids onto the canonical ones.
var productAliases = map[string]string{
	"P0001": "P001",
	"P0002": "P002",
	"P0003": "P003",
}

// BuildDisplayCatalog returns the canonical products followed by the remaining
// backend entries in their original order, deduplicated. Blank entries are skipped.
func BuildDisplayCatalog(backend []string) []string {
	out := make([]string, 0, len(CanonicalProducts)+len(backend))
	seen := make(map[string]struct{}, cap(out))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, id := range CanonicalProducts {
		add(id)
	}
	for _, raw := range backend {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if canonical, ok := productAliases[id]; ok {
			id = canonical
		}
		add(id)
	}
	return out
}

func containsProduct(catalog []string, id string) bool {
	for _, c := range catalog {
		if c == id {
			return true
		}
	}
	return false
}
