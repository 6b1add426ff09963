package operators

import "github.com/nekorec/blivec/internal/flv"

// AnalysisResult is the computed final metadata for one sub-stream, per
// spec.md §4.6 step 13.
type AnalysisResult struct {
	DurationMS    int64
	FileSize      int64
	KeyframeCount int
	Width, Height int
}

// Analyser computes final stream metadata (duration, size, keyframe count,
// real resolution from the AVC SPS) as tags pass through, publishing the
// result once per sub-stream via OnResult. It counts keyframes but does not
// record their times or file positions.
type Analyser struct {
	next     Sink
	OnResult func(AnalysisResult)

	result    AnalysisResult
	startTS   int64
	haveStart bool
	haveDims  bool
}

// NewAnalyser constructs an Analyser stage forwarding to next.
func NewAnalyser(next Sink) *Analyser {
	return &Analyser{next: next}
}

// Push implements Sink.
func (a *Analyser) Push(item Item) error {
	if item.IsHeader() {
		if a.haveStart && a.OnResult != nil {
			a.OnResult(a.result)
		}
		a.result = AnalysisResult{}
		a.haveStart = false
		a.haveDims = false
		return a.next.Push(item)
	}

	tag := item.Tag
	if !a.haveStart {
		a.startTS = tag.Timestamp
		a.haveStart = true
	}
	a.result.DurationMS = tag.Timestamp - a.startTS
	a.result.FileSize += int64(tag.TagSize())
	if tag.IsKeyframe() {
		a.result.KeyframeCount++
	}
	if !a.haveDims && tag.IsVideoSequenceHeader() {
		if w, h, err := flv.ExtractResolution(tag.Body); err == nil {
			a.result.Width, a.result.Height = w, h
			a.haveDims = true
		}
	}

	return a.next.Push(item)
}

// Flush publishes the current sub-stream's result, for end-of-stream.
func (a *Analyser) Flush() {
	if a.haveStart && a.OnResult != nil {
		a.OnResult(a.result)
	}
}
