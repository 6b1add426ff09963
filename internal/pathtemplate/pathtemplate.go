// Package pathtemplate resolves recorder output paths from a user-supplied
// template, substituting room/stream placeholders at record-start time.
// Grounded on blrec's `core/stream_recorder.py` OutputFileManager._make_path.
package pathtemplate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fields are the values a template may reference as `{name}` placeholders.
type Fields struct {
	RoomID     int64
	UserName   string
	Title      string
	Area       string
	ParentArea string
	StartTime  time.Time
}

// Resolve expands template against fields and roots the result under
// outDir with a ".flv" extension, creating parent directories as needed.
// If that file already exists, "_(n)" is added before the extension, using
// the smallest n >= 1 whose file does not exist.
func Resolve(outDir, template string, fields Fields) (string, error) {
	replacer := strings.NewReplacer(
		"{roomid}", fmt.Sprintf("%d", fields.RoomID),
		"{uname}", sanitize(fields.UserName),
		"{title}", sanitize(fields.Title),
		"{area}", sanitize(fields.Area),
		"{parent_area}", sanitize(fields.ParentArea),
		"{year}", fields.StartTime.Format("2006"),
		"{month}", fields.StartTime.Format("01"),
		"{day}", fields.StartTime.Format("02"),
		"{hour}", fields.StartTime.Format("15"),
		"{minute}", fields.StartTime.Format("04"),
		"{second}", fields.StartTime.Format("05"),
	)

	relpath := replacer.Replace(template)
	full := filepath.Join(outDir, relpath) + ".flv"
	full, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(full, ".flv")
	for n := 1; ; n++ {
		if _, err := os.Stat(full); err != nil {
			break
		}
		full = fmt.Sprintf("%s_(%d).flv", base, n)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	return full, nil
}

// sanitize strips path separators from a field value so it can't escape
// outDir or introduce spurious subdirectories.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
