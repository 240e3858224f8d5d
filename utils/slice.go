package utils

// UniqueUint removes duplicates and zero ids, keeping first-seen order.
func UniqueUint(slice []uint) []uint {
	seen := make(map[uint]struct{}, len(slice))
	out := make([]uint, 0, len(slice))
	for _, v := range slice {
		if v == 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
