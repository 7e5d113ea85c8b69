package dedupe

import "romba-go/internal/model"

// Diff returns the items of newer whose SHA-1 key does not occur in older.
// It is asymmetric: items only in older are ignored. Items of newer that
// share a key are all kept verbatim, whatever their machine names.
func Diff(older, newer *model.DatFile) *model.DatFile {
	seen := make(map[string]struct{}, len(older.Items))
	for i := range older.Items {
		if older.Items[i].Removed {
			continue
		}
		seen[GetKey(older.Entry(i), BucketSHA1, true, true)] = struct{}{}
	}

	out := model.NewDatFile(newer.Header)
	for _, s := range newer.Sources {
		out.AddSource(s.Name)
	}
	for i := range newer.Items {
		if newer.Items[i].Removed {
			continue
		}
		e := newer.Entry(i)
		if _, ok := seen[GetKey(e, BucketSHA1, true, true)]; ok {
			continue
		}
		out.Copy(e)
	}
	return out
}
