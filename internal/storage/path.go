package storage

import (
	"fmt"
	"path"
	"time"
)

const archiveStampLayout = "20060102T150405Z"

// BuildArchiveKey names the parquet object holding interactions created in
// [from, to). The partition is the UTC date of from.
func BuildArchiveKey(from, to time.Time) (string, error) {
	from = from.UTC()
	to = to.UTC()
	if !to.After(from) {
		return "", fmt.Errorf("archive window end %s must be after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return path.Join(
		"interactions",
		"dt="+from.Format(time.DateOnly),
		fmt.Sprintf("interactions_%s_%s.parquet", from.Format(archiveStampLayout), to.Format(archiveStampLayout)),
	), nil
}
