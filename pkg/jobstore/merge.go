package jobstore

// Merge reconciles an incoming batch against the existing collection.
//
// Three duplicate keys are checked per incoming job, in a deliberate order:
//
//  1. id match        -> the incoming record replaces the existing one
//                        (last write wins, including hidden/applied flags)
//  2. URL match       -> skipped as a duplicate
//  3. signature match -> skipped as a duplicate
//
// The id is authoritative when the same worker run re-emits a job; URL and
// (company, title) signature guard against the same listing arriving again
// under a different synthetic id. Appended jobs are inserted into all three
// indices so duplicates within a single batch are also suppressed.
//
// Merge is pure: neither input slice is mutated. Merge(x, nil) == x and
// merging the same batch twice yields the same result as merging it once.
func Merge(existing, incoming []Job) []Job {
	out := make([]Job, len(existing))
	copy(out, existing)

	byID := make(map[ID]int, len(out))
	byURL := make(map[string]int, len(out))
	bySig := make(map[string]int, len(out))

	index := func(i int) {
		j := out[i]
		if j.ID != "" {
			byID[j.ID] = i
		}
		if k := j.URLKey(); k != "" {
			if _, seen := byURL[k]; !seen {
				byURL[k] = i
			}
		}
		if k := j.SignatureKey(); k != "" {
			if _, seen := bySig[k]; !seen {
				bySig[k] = i
			}
		}
	}
	for i := range out {
		index(i)
	}

	for _, in := range incoming {
		if in.ID != "" {
			if i, ok := byID[in.ID]; ok {
				out[i] = in
				continue
			}
		}
		if k := in.URLKey(); k != "" {
			if _, ok := byURL[k]; ok {
				continue
			}
		}
		if k := in.SignatureKey(); k != "" {
			if _, ok := bySig[k]; ok {
				continue
			}
		}
		out = append(out, in)
		index(len(out) - 1)
	}

	return out
}
