package authority

import "strings"

// Resolve picks the owning authority for a report category: the first entry
// whose department contains the lower-cased category as a substring. No match
// falls back to the first entry; an empty directory yields nil (unassigned).
//
// Substring matching is a best-effort heuristic. It can false-positive
// ("health" matching an unrelated department) and the fallback is arbitrary;
// an explicit reassignment later always overrides it.
func (d *Directory) Resolve(category string) *string {
	cat := strings.ToLower(category)

	for _, a := range d.authorities {
		if a.Department != "" && strings.Contains(strings.ToLower(a.Department), cat) {
			id := a.ID
			return &id
		}
	}

	if len(d.authorities) > 0 {
		id := d.authorities[0].ID
		return &id
	}
	return nil
}
