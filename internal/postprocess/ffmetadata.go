package postprocess

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildFFMetadata renders an FFMETADATA1 file (per
// https://ffmpeg.org/ffmpeg-formats.html#Metadata-1) with Title/Artist/Date/
// Description/Comment and, when non-seamless join-points exist, per-segment
// chapter markers, per spec.md §4.9 step 2.
func buildFFMetadata(meta Metadata) string {
	comment := meta.Comment
	chapters := ""

	if len(meta.JoinPoints) > 0 {
		comment += "\n\n" + joinPointsComment(meta.JoinPoints)
		chapters = buildChapters(meta.JoinPoints, meta.DurationMS)
	}

	descriptionJSON, _ := json.Marshal(meta.Description)
	comment = escapeMultiline(comment)

	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	fmt.Fprintf(&b, "Title=%s\n", meta.Title)
	fmt.Fprintf(&b, "Artist=%s\n", meta.Artist)
	fmt.Fprintf(&b, "Date=%s\n", meta.Date)
	b.WriteString("# Description may be truncated!\n")
	fmt.Fprintf(&b, "Description=%s\n", string(descriptionJSON))
	fmt.Fprintf(&b, "Comment=%s\n\n", comment)
	b.WriteString(chapters)
	return b.String()
}

// escapeMultiline line-continues a multi-line value with a trailing
// backslash, the FFMETADATA1 convention for embedding newlines in a value.
func escapeMultiline(s string) string {
	return strings.Join(strings.Split(s, "\n"), "\\\n")
}

func joinPointsComment(points []JoinPoint) string {
	var b strings.Builder
	b.WriteString("Join points:\n")
	for i, p := range points {
		seamless := "seamless"
		if !p.Seamless {
			seamless = "not seamless"
		}
		fmt.Fprintf(&b, "  #%d @ %dms (%s)\n", i+1, p.Timestamp, seamless)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildChapters emits one [CHAPTER] block per segment delimited by
// non-seamless join-points, matching blrec's `_make_chapters`.
func buildChapters(points []JoinPoint, lastTimestampMS int64) string {
	var timestamps []int64
	for _, p := range points {
		if !p.Seamless {
			timestamps = append(timestamps, p.Timestamp)
		}
	}
	if len(timestamps) == 0 {
		return ""
	}

	timestamps = append([]int64{0}, timestamps...)
	timestamps = append(timestamps, lastTimestampMS)

	var b strings.Builder
	for i := 1; i < len(timestamps); i++ {
		start, end := timestamps[i-1], timestamps[i]
		if end < start {
			end = start
		}
		fmt.Fprintf(&b, "[CHAPTER]\nTIMEBASE=1/1000\nSTART=%d\nEND=%d\ntitle=segment #%d\n", start, end, i)
	}
	return b.String()
}
