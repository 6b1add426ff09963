package flv

import (
	"fmt"
)

// decoderConfigurationRecord is the AVCDecoderConfigurationRecord carried in
// an AVC sequence-header tag's body (ISO/IEC 14496-15 §5.2.4.1.1).
type decoderConfigurationRecord struct {
	sps [][]byte
	pps [][]byte
}

// parseAVCDecoderConfigurationRecord reads an AVCDecoderConfigurationRecord,
// ignoring the trailing chroma/high-profile extension fields (unused here).
func parseAVCDecoderConfigurationRecord(data []byte) (*decoderConfigurationRecord, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("flv: avc sequence header too short")
	}
	pos := 5 // configurationVersion, profile, compat, level, lengthSizeMinusOne
	numSPS := int(data[pos] &^ 0b1110_0000)
	pos++

	var record decoderConfigurationRecord
	for i := 0; i < numSPS; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("flv: truncated sps length")
		}
		n := int(data[pos])<<8 | int(data[pos+1])
		pos += 2
		if pos+n > len(data) {
			return nil, fmt.Errorf("flv: truncated sps nal unit")
		}
		record.sps = append(record.sps, data[pos:pos+n])
		pos += n
	}

	if pos >= len(data) {
		return &record, nil
	}
	numPPS := int(data[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		if pos+2 > len(data) {
			break
		}
		n := int(data[pos])<<8 | int(data[pos+1])
		pos += 2
		if pos+n > len(data) {
			break
		}
		record.pps = append(record.pps, data[pos:pos+n])
		pos += n
	}

	return &record, nil
}

// extractRBSP strips the NAL unit header byte and reverses emulation
// prevention (removes 0x03 in any 00 00 03 sequence), yielding the raw byte
// sequence payload ready for bit-level parsing.
func extractRBSP(nalUnit []byte) ([]byte, error) {
	if len(nalUnit) == 0 {
		return nil, fmt.Errorf("flv: empty nal unit")
	}
	nalUnitType := nalUnit[0] & 0b0001_1111
	if nalUnitType == 14 || nalUnitType == 20 || nalUnitType == 21 {
		return nil, fmt.Errorf("flv: extended nal unit types not supported")
	}

	rbsp := make([]byte, 0, len(nalUnit)-1)
	i := 1
	for i < len(nalUnit) {
		if i+2 < len(nalUnit) && nalUnit[i] == 0 && nalUnit[i+1] == 0 && nalUnit[i+2] == 0x03 {
			rbsp = append(rbsp, nalUnit[i], nalUnit[i+1])
			i += 3
		} else {
			rbsp = append(rbsp, nalUnit[i])
			i++
		}
	}
	return rbsp, nil
}

// bitReader reads individual bits, most significant bit first, from a byte
// slice — the primitive both fixed-width field reads and Exp-Golomb codes
// are built on.
type bitReader struct {
	data []byte
	pos  int // bit position
}

func (b *bitReader) readBit() (int, error) {
	byteIdx := b.pos / 8
	if byteIdx >= len(b.data) {
		return 0, fmt.Errorf("flv: bit reader exhausted")
	}
	bitIdx := 7 - (b.pos % 8)
	b.pos++
	return int((b.data[byteIdx] >> bitIdx) & 1), nil
}

func (b *bitReader) readBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := b.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint32(bit)
	}
	return v, nil
}

// readUE reads an unsigned Exp-Golomb code (ISO/IEC 14496-10 §9.1).
func (b *bitReader) readUE() (uint32, error) {
	leadingZeros := 0
	for {
		bit, err := b.readBit()
		if err != nil {
			return 0, err
		}
		if bit != 0 {
			break
		}
		leadingZeros++
	}
	if leadingZeros == 0 {
		return 0, nil
	}
	rest, err := b.readBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return uint32(1<<uint(leadingZeros)-1) + rest, nil
}

// subWidthHeight maps chroma_format_idc to (SubWidthC, SubHeightC) per table
// 6-1 of ISO/IEC 14496-10.
var subWidthHeight = map[uint32][2]int{
	1: {2, 2},
	2: {2, 1},
	3: {1, 1},
}

// spsData holds the fields of seq_parameter_set_data needed to compute frame
// width/height (ISO/IEC 14496-10 §7.3.2.1.1/§7.4.2.1.1).
type spsData struct {
	chromaFormatIDC          uint32
	separateColourPlaneFlag  uint32
	picWidthInMbsMinus1      uint32
	picHeightInMapUnitsMinus1 uint32
	frameMbsOnlyFlag         uint32
	frameCropLeftOffset      uint32
	frameCropRightOffset     uint32
	frameCropTopOffset       uint32
	frameCropBottomOffset    uint32
}

func (s *spsData) chromaArrayType() uint32 {
	if s.separateColourPlaneFlag == 0 {
		return s.chromaFormatIDC
	}
	return 0
}

func (s *spsData) subWidthC() int {
	return subWidthHeight[s.chromaFormatIDC][0]
}

func (s *spsData) subHeightC() int {
	return subWidthHeight[s.chromaFormatIDC][1]
}

func (s *spsData) cropUnitX() int {
	if s.chromaArrayType() == 0 {
		return 1
	}
	return s.subWidthC()
}

func (s *spsData) cropUnitY() int {
	if s.chromaArrayType() == 0 {
		return int(2 - s.frameMbsOnlyFlag)
	}
	return s.subHeightC() * int(2-s.frameMbsOnlyFlag)
}

func (s *spsData) picWidthInSamplesL() int {
	return int(s.picWidthInMbsMinus1+1) * 16
}

func (s *spsData) frameHeightInMbs() int {
	return int(2-s.frameMbsOnlyFlag) * int(s.picHeightInMapUnitsMinus1+1)
}

// width derives frame_width per §7.4.2.1.1.
func (s *spsData) width() int {
	x0 := s.cropUnitX() * int(s.frameCropLeftOffset)
	x1 := s.picWidthInSamplesL() - (s.cropUnitX()*int(s.frameCropRightOffset) + 1)
	return x1 - x0 + 1
}

// height derives frame_height per §7.4.2.1.1.
func (s *spsData) height() int {
	y0 := s.cropUnitY() * int(s.frameCropTopOffset)
	y1 := 16*s.frameHeightInMbs() - (s.cropUnitY()*int(s.frameCropBottomOffset) + 1)
	return y1 - y0 + 1
}

// highProfileIDCs lists profile_idc values whose SPS carries the extended
// chroma/bit-depth/scaling-list fields (§7.3.2.1.1).
var highProfileIDCs = map[uint32]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

func parseSPSData(rbsp []byte) (*spsData, error) {
	br := &bitReader{data: rbsp}

	profileIDC, err := br.readBits(8)
	if err != nil {
		return nil, err
	}
	if _, err := br.readBits(8); err != nil { // constraint flags + reserved
		return nil, err
	}
	if _, err := br.readBits(8); err != nil { // level_idc
		return nil, err
	}
	if _, err := br.readUE(); err != nil { // seq_parameter_set_id
		return nil, err
	}

	sps := &spsData{chromaFormatIDC: 1, frameMbsOnlyFlag: 0}

	if highProfileIDCs[profileIDC] {
		chromaFormatIDC, err := br.readUE()
		if err != nil {
			return nil, err
		}
		sps.chromaFormatIDC = chromaFormatIDC
		if chromaFormatIDC == 3 {
			flag, err := br.readBits(1)
			if err != nil {
				return nil, err
			}
			sps.separateColourPlaneFlag = flag
		}
		if _, err := br.readUE(); err != nil { // bit_depth_luma_minus8
			return nil, err
		}
		if _, err := br.readUE(); err != nil { // bit_depth_chroma_minus8
			return nil, err
		}
		if _, err := br.readBits(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, err
		}
		scalingMatrixPresent, err := br.readBits(1)
		if err != nil {
			return nil, err
		}
		if scalingMatrixPresent != 0 {
			n := 8
			if chromaFormatIDC == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				present, err := br.readBits(1)
				if err != nil {
					return nil, err
				}
				if present != 0 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := skipScalingList(br, size); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if _, err := br.readUE(); err != nil { // log2_max_frame_num_minus4
		return nil, err
	}
	picOrderCntType, err := br.readUE()
	if err != nil {
		return nil, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := br.readUE(); err != nil {
			return nil, err
		}
	case 1:
		if _, err := br.readBits(1); err != nil {
			return nil, err
		}
		if _, err := br.readSE(); err != nil {
			return nil, err
		}
		if _, err := br.readSE(); err != nil {
			return nil, err
		}
		numRefFrames, err := br.readUE()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, err := br.readSE(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := br.readUE(); err != nil { // max_num_ref_frames
		return nil, err
	}
	if _, err := br.readBits(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, err
	}
	picWidthInMbsMinus1, err := br.readUE()
	if err != nil {
		return nil, err
	}
	sps.picWidthInMbsMinus1 = picWidthInMbsMinus1
	picHeightInMapUnitsMinus1, err := br.readUE()
	if err != nil {
		return nil, err
	}
	sps.picHeightInMapUnitsMinus1 = picHeightInMapUnitsMinus1
	frameMbsOnlyFlag, err := br.readBits(1)
	if err != nil {
		return nil, err
	}
	sps.frameMbsOnlyFlag = frameMbsOnlyFlag
	if frameMbsOnlyFlag == 0 {
		if _, err := br.readBits(1); err != nil { // mb_adaptive_frame_field_flag
			return nil, err
		}
	}
	if _, err := br.readBits(1); err != nil { // direct_8x8_inference_flag
		return nil, err
	}
	frameCroppingFlag, err := br.readBits(1)
	if err != nil {
		return nil, err
	}
	if frameCroppingFlag != 0 {
		if sps.frameCropLeftOffset, err = br.readUE(); err != nil {
			return nil, err
		}
		if sps.frameCropRightOffset, err = br.readUE(); err != nil {
			return nil, err
		}
		if sps.frameCropTopOffset, err = br.readUE(); err != nil {
			return nil, err
		}
		if sps.frameCropBottomOffset, err = br.readUE(); err != nil {
			return nil, err
		}
	}
	// vui_parameters and rbsp_trailing_bits are not needed for resolution.

	return sps, nil
}

func skipScalingList(br *bitReader, size int) error {
	lastScale, nextScale := int32(8), int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta, err := br.readSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// readSE reads a signed Exp-Golomb code (ISO/IEC 14496-10 §9.1.1).
func (b *bitReader) readSE() (int32, error) {
	codeNum, err := b.readUE()
	if err != nil {
		return 0, err
	}
	v := (int32(codeNum) + 1) / 2
	if codeNum%2 == 0 {
		v = -v
	}
	return v, nil
}

// ExtractResolution parses an AVCDecoderConfigurationRecord (the body of a
// video sequence-header tag) and returns its frame width/height, per
// spec.md §4.5.
func ExtractResolution(sequenceHeaderBody []byte) (width, height int, err error) {
	record, err := parseAVCDecoderConfigurationRecord(sequenceHeaderBody)
	if err != nil {
		return 0, 0, err
	}
	if len(record.sps) == 0 {
		return 0, 0, fmt.Errorf("flv: no sps in sequence header")
	}
	rbsp, err := extractRBSP(record.sps[0])
	if err != nil {
		return 0, 0, err
	}
	sps, err := parseSPSData(rbsp)
	if err != nil {
		return 0, 0, err
	}
	return sps.width(), sps.height(), nil
}
