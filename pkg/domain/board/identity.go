package board

// Identified is implemented by records whose server id is their only
// dedup key.
type Identified interface {
	Identity() string
}

// MergeByIdentity appends every item whose identity is not yet present in
// list, preserving arrival order. It returns the merged list and the number of
// items added. Items with an empty identity are dropped.
func MergeByIdentity[T Identified](list []T, items ...T) ([]T, int) {
	seen := make(map[string]struct{}, len(list)+len(items))
	for _, it := range list {
		seen[it.Identity()] = struct{}{}
	}
	added := 0
	for _, it := range items {
		id := it.Identity()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		list = append(list, it)
		added++
	}
	return list, added
}

// ContainsIdentity reports whether list holds an item with identity id.
func ContainsIdentity[T Identified](list []T, id string) bool {
	for _, it := range list {
		if it.Identity() == id {
			return true
		}
	}
	return false
}
