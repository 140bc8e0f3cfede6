// Package naming derives backup image filenames from the configured
// rotation interval, so that one image file per day, ISO week, month
// or year is created and runs within the same period update it.
package naming

import (
	"fmt"
	"strings"
	"time"
)

// ImageName returns the image filename for the given base name,
// rotation interval and point in time. The interval is matched on its
// first letter, case-insensitive. An unrecognized interval yields a
// single unrotated image name.
func ImageName(base, interval string, now time.Time) string {
	key := ""
	if s := strings.ToLower(strings.TrimSpace(interval)); s != "" {
		key = s[:1]
	}

	switch key {
	case "d":
		return fmt.Sprintf("%s_%04d-%02d-%02d.img", base, now.Year(), now.Month(), now.Day())
	case "w":
		// Calendar year with the ISO week number, so the first days of
		// January may land in week 52/53 of the previous ISO year while
		// still being filed under the current calendar year.
		_, week := now.ISOWeek()
		return fmt.Sprintf("%s_%04d-wk%02d.img", base, now.Year(), week)
	case "m":
		return fmt.Sprintf("%s_%04d-%02d.img", base, now.Year(), now.Month())
	case "y":
		return fmt.Sprintf("%s_%04d.img", base, now.Year())
	default:
		return base + ".img"
	}
}
