package romba

import (
	"romba-go/internal/dedupe"
	"romba-go/internal/model"
)

// Dedup merges dats into one DAT under header, giving each input its own
// source index in argument order, and removes every item that duplicates
// its predecessor when bucketed by the given key.
func (s *Service) Dedup(header model.Header, dats []*model.DatFile, by dedupe.BucketBy) *model.DatFile {
	merged := dedupe.Merge(header, dats...)
	out := dedupe.Deduplicate(merged, by)
	s.logger.Info("dats deduplicated", "inputs", len(dats), "items", merged.Len(), "kept", out.Len(), "by", by.String())
	return out
}

// Diff returns the items of newer whose SHA-1 does not occur in older.
func (s *Service) Diff(older, newer *model.DatFile) *model.DatFile {
	out := dedupe.Diff(older, newer)
	s.logger.Info("dats diffed", "old", older.Header.Name, "new", newer.Header.Name, "added", out.Len())
	return out
}
