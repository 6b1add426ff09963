package operators

import "github.com/nekorec/blivec/internal/flv"

// MetadataProvider supplies extra onMetaData fields to merge into a
// sub-stream's first script tag (e.g. a room title, a recording start time).
type MetadataProvider func() map[string]any

// Injector enriches the first script tag of each sub-stream with
// caller-supplied metadata. If keyframe file positions are present in the
// metadata, they are shifted by however many bytes the enrichment adds to
// the tag, so they stay byte-accurate. If no script tag appears before the
// first data tag, one is synthesised with duration=0, filesize=0, and the
// provider's fields (spec.md §4.6 step 12).
type Injector struct {
	next     Sink
	provider MetadataProvider

	injected bool
}

// NewInjector constructs an Injector stage forwarding to next.
func NewInjector(next Sink, provider MetadataProvider) *Injector {
	return &Injector{next: next, provider: provider}
}

// Push implements Sink.
func (j *Injector) Push(item Item) error {
	if item.IsHeader() {
		j.injected = false
		return j.next.Push(item)
	}

	tag := item.Tag
	if !j.injected && tag.IsScript() {
		j.injected = true
		enriched, err := j.enrich(tag)
		if err != nil {
			return err
		}
		return j.next.Push(TagItem(enriched))
	}

	if !j.injected {
		j.injected = true
		synthesised, err := j.synthesise(tag.Timestamp)
		if err != nil {
			return err
		}
		if err := j.next.Push(TagItem(synthesised)); err != nil {
			return err
		}
	}

	return j.next.Push(item)
}

func (j *Injector) enrich(tag *flv.Tag) (*flv.Tag, error) {
	metadata, err := flv.ParseMetadata(tag)
	if err != nil {
		return tag, nil
	}

	before := tag.TagSize()
	for k, v := range j.provider() {
		metadata.Set(k, v)
	}
	metadata = flv.EnsureOrder(metadata)

	enriched, err := flv.CreateMetadataTag(metadata, tag.Timestamp)
	if err != nil {
		return nil, err
	}

	delta := enriched.TagSize() - before
	if delta == 0 {
		return enriched, nil
	}
	// Shifted positions stay float64 numbers, so re-encoding keeps the size
	// the delta was computed from.
	shiftKeyframeFilePositions(metadata, delta)
	return flv.CreateMetadataTag(metadata, tag.Timestamp)
}

func (j *Injector) synthesise(timestamp int64) (*flv.Tag, error) {
	fields := map[string]any{"duration": 0.0, "filesize": 0.0}
	for k, v := range j.provider() {
		fields[k] = v
	}
	return flv.CreateMetadataTag(flv.EnsureOrder(mapToECMAArray(fields)), timestamp)
}

func mapToECMAArray(m map[string]any) *flv.ECMAArray {
	arr := flv.NewECMAArray()
	for k, v := range m {
		arr.Set(k, v)
	}
	return arr
}

// shiftKeyframeFilePositions adjusts each recorded keyframe file position by
// delta bytes, so they stay accurate after the metadata tag's size changes.
func shiftKeyframeFilePositions(metadata *flv.ECMAArray, delta int) {
	if delta == 0 {
		return
	}
	kfVal, ok := metadata.Get("keyframes")
	if !ok {
		return
	}
	kf, ok := kfVal.(*flv.ECMAArray)
	if !ok {
		return
	}
	posVal, ok := kf.Get("filepositions")
	if !ok {
		return
	}
	positions, ok := posVal.([]any)
	if !ok {
		return
	}
	for i, p := range positions {
		if f, ok := toFloat64(p); ok {
			positions[i] = f + float64(delta)
		}
	}
	kf.Set("filepositions", positions)
}
