package external

import (
	"bytes"
	"encoding/binary"
	"math"

	"odscore/src/buffermgr"
	"odscore/src/helpers"
	"odscore/src/models"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*

A channel's values live outside the instance store in one or more binary
files. Each external component describes one contiguous run of values:

  position(i) = StartOffset + (i / ValuesPerBlock) * BlockSize
                + ValueOffset + (i % ValuesPerBlock) * width

Components are concatenated in order; a channel index is mapped to its
component through the prefix sums of the component lengths.

*/

// FlagWidth is the on-disk size of one validity flag.
const FlagWidth = 2

var errTruncated = errors.New("file truncated")

// Descriptor is one external component of a channel.
type Descriptor struct {
	File           string
	ValueType      ValueType
	StartOffset    int64
	BlockSize      int64
	ValuesPerBlock int64
	ValueOffset    int64
	BitOffset      int
	BitCount       int
	Length         int64
}

// FlagDescriptor locates the 16 bit flags parallel to one component.
// An empty File means every value of the component is valid.
type FlagDescriptor struct {
	File        string
	StartOffset int64
}

// Layout is the ordered component chain of one channel.
type Layout struct {
	Components []Descriptor
	// Flags is either empty or parallel to Components.
	Flags []FlagDescriptor
	// GlobalFlag, when set, applies to every value.
	GlobalFlag *models.Flag
	// LocalFlags are flags stored with the channel in the instance store.
	LocalFlags []models.Flag
}

// Len returns the total number of values of the channel.
func (l *Layout) Len() int64 {
	var n int64
	for _, d := range l.Components {
		n += d.Length
	}
	return n
}

func (l *Layout) sums() []int64 {
	lengths := make([]int64, len(l.Components))
	for i, d := range l.Components {
		lengths[i] = d.Length
	}
	return helpers.PrefixSums(lengths)
}

// Codec decodes channel values through a shared registry of mapped files.
// It holds no per-read state and is safe for concurrent use.
type Codec struct {
	files   *buffermgr.FileRegistry
	dataDir string
	logger  *zap.SugaredLogger
}

// NewCodec creates a codec resolving relative file names against dataDir.
func NewCodec(files *buffermgr.FileRegistry, dataDir string, logger *zap.SugaredLogger) *Codec {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Codec{files: files, dataDir: dataDir, logger: logger}
}

// window clips [start, start+count) to the channel and returns the
// number of values to read.
func window(total, start, count int64) (int64, error) {
	if start < 0 || count < 0 {
		return 0, models.Rangef("negative read window start=%d count=%d", start, count)
	}
	if start > total {
		return 0, models.Rangef("start index %d beyond channel length %d", start, total)
	}
	if start+count > total {
		count = total - start
	}
	return count, nil
}

// ReadValues decodes up to count values starting at start. Reads that run
// past the end of the channel are truncated to the available values.
func (c *Codec) ReadValues(l *Layout, start, count int64) (models.Value, error) {
	if len(l.Components) == 0 {
		return models.Value{}, models.NotFoundf("channel has no external components")
	}

	encs := make([]encoding, len(l.Components))
	for i := range l.Components {
		enc, err := resolve(&l.Components[i])
		if err != nil {
			return models.Value{}, err
		}
		if i > 0 && enc.out != encs[0].out {
			return models.Value{}, models.UnsupportedEncodingf("component %d decodes to %s, channel is %s", i, enc.out, encs[0].out)
		}
		encs[i] = enc
	}

	out := models.Value{Type: encs[0].out, Flag: models.FlagValid}
	n, err := window(l.Len(), start, count)
	if err != nil || n == 0 {
		return out, err
	}

	sums := l.sums()
	seg, ok := helpers.FindSegmentBinarySearch(sums, start)
	if !ok {
		return out, models.Rangef("start index %d outside channel", start)
	}

	for pos := start; n > 0; seg++ {
		d := &l.Components[seg]
		local := pos - sums[seg]
		take := d.Length - local
		if take > n {
			take = n
		}
		if take <= 0 {
			continue
		}
		if err := c.decodeComponent(d, encs[seg], local, take, &out); err != nil {
			return models.Value{}, err
		}
		pos += take
		n -= take
	}
	return out, nil
}

func (c *Codec) decodeComponent(d *Descriptor, enc encoding, from, n int64, out *models.Value) error {
	if d.ValuesPerBlock < 1 || d.BlockSize < 1 {
		return models.UnsupportedEncodingf("component %s has block_size %d and valuesperblock %d", d.File, d.BlockSize, d.ValuesPerBlock)
	}
	path := helpers.ResolveDataPath(c.dataDir, d.File)
	c.logger.Debugf("decoding %d %s values from %s at index %d", n, d.ValueType, path, from)

	span := enc.width
	if enc.kind == kindBitSigned || enc.kind == kindBitUnsigned || enc.kind == kindBitFloat {
		span = d.window()
	}

	return c.files.WithFile(path, func(data []byte) error {
		for i := from; i < from+n; i++ {
			p := d.StartOffset + (i/d.ValuesPerBlock)*d.BlockSize + d.ValueOffset + (i%d.ValuesPerBlock)*int64(enc.width)
			if p < 0 || p+int64(span) > int64(len(data)) {
				return models.WrapIOFailure(errTruncated, "%s: value %d at offset %d needs %d bytes, file has %d",
					path, i, p, span, len(data))
			}
			decodeOne(data[p:p+int64(span)], d, enc, out)
		}
		return nil
	})
}

func order(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeOne(b []byte, d *Descriptor, enc encoding, out *models.Value) {
	bo := order(enc.bigEndian)
	switch enc.kind {
	case kindBool:
		var v int64
		if b[0] != 0 {
			v = 1
		}
		out.Int = append(out.Int, v)
	case kindSigned:
		switch enc.width {
		case 1:
			out.Int = append(out.Int, int64(int8(b[0])))
		case 2:
			out.Int = append(out.Int, int64(int16(bo.Uint16(b))))
		case 4:
			out.Int = append(out.Int, int64(int32(bo.Uint32(b))))
		case 8:
			out.Int = append(out.Int, int64(bo.Uint64(b)))
		}
	case kindUnsigned:
		switch enc.width {
		case 1:
			out.Int = append(out.Int, int64(b[0]))
		case 2:
			out.Int = append(out.Int, int64(bo.Uint16(b)))
		case 4:
			out.Int = append(out.Int, int64(bo.Uint32(b)))
		}
	case kindFloat:
		if enc.width == 4 {
			out.Float = append(out.Float, float64(math.Float32frombits(bo.Uint32(b))))
		} else {
			out.Float = append(out.Float, math.Float64frombits(bo.Uint64(b)))
		}
	case kindString:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		out.Str = append(out.Str, string(b))
	case kindBytes:
		out.Bytes = append(out.Bytes, append([]byte(nil), b...))
	case kindBitSigned, kindBitUnsigned, kindBitFloat:
		raw := extractBits(b, d.BitOffset, d.BitCount, enc.bigEndian)
		switch enc.kind {
		case kindBitSigned:
			shift := uint(64 - d.BitCount)
			out.Int = append(out.Int, int64(raw<<shift)>>shift)
		case kindBitUnsigned:
			out.Int = append(out.Int, int64(raw))
		default:
			if d.BitCount == 32 {
				out.Float = append(out.Float, float64(math.Float32frombits(uint32(raw))))
			} else {
				out.Float = append(out.Float, math.Float64frombits(raw))
			}
		}
	}
}

// extractBits reads b as one word in the given byte order and returns
// count bits starting at bit offset, counted from the least significant.
func extractBits(b []byte, offset, count int, bigEndian bool) uint64 {
	var word uint64
	if bigEndian {
		for _, x := range b {
			word = word<<8 | uint64(x)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			word = word<<8 | uint64(b[i])
		}
	}
	word >>= uint(offset)
	if count < 64 {
		word &= (uint64(1) << uint(count)) - 1
	}
	return word
}

// ReadFlags returns the validity flags of up to count values starting at
// start. A global flag wins over stored flags; without any flags every
// value is valid.
func (c *Codec) ReadFlags(l *Layout, start, count int64) ([]models.Flag, error) {
	total := l.Len()
	n, err := window(total, start, count)
	if err != nil {
		return nil, err
	}
	flags := make([]models.Flag, 0, n)

	switch {
	case l.GlobalFlag != nil:
		for i := int64(0); i < n; i++ {
			flags = append(flags, *l.GlobalFlag)
		}
		return flags, nil
	case len(l.Flags) > 0:
		return c.readFlagChain(l, start, n)
	case len(l.LocalFlags) > 0:
		for i := start; i < start+n; i++ {
			if i < int64(len(l.LocalFlags)) {
				flags = append(flags, l.LocalFlags[i])
			} else {
				flags = append(flags, models.FlagValid)
			}
		}
		return flags, nil
	}
	for i := int64(0); i < n; i++ {
		flags = append(flags, models.FlagValid)
	}
	return flags, nil
}

func (c *Codec) readFlagChain(l *Layout, start, n int64) ([]models.Flag, error) {
	if len(l.Flags) != len(l.Components) {
		return nil, models.UnsupportedEncodingf("%d flag components for %d value components", len(l.Flags), len(l.Components))
	}
	flags := make([]models.Flag, 0, n)
	if n == 0 {
		return flags, nil
	}

	sums := l.sums()
	seg, ok := helpers.FindSegmentBinarySearch(sums, start)
	if !ok {
		return nil, models.Rangef("start index %d outside channel", start)
	}
	for pos := start; n > 0; seg++ {
		d := &l.Components[seg]
		local := pos - sums[seg]
		take := d.Length - local
		if take > n {
			take = n
		}
		if take <= 0 {
			continue
		}

		fd := l.Flags[seg]
		if d.ValuesPerBlock < 1 {
			return nil, models.UnsupportedEncodingf("component %s has valuesperblock %d", d.File, d.ValuesPerBlock)
		}
		if fd.File == "" {
			for i := int64(0); i < take; i++ {
				flags = append(flags, models.FlagValid)
			}
		} else {
			// flags share the block addressing of their component with a
			// fixed width and no interleaving
			flagDesc := Descriptor{
				File:           fd.File,
				StartOffset:    fd.StartOffset,
				BlockSize:      d.ValuesPerBlock * FlagWidth,
				ValuesPerBlock: d.ValuesPerBlock,
			}
			path := helpers.ResolveDataPath(c.dataDir, fd.File)
			err := c.files.WithFile(path, func(data []byte) error {
				for i := local; i < local+take; i++ {
					p := flagDesc.StartOffset + (i/flagDesc.ValuesPerBlock)*flagDesc.BlockSize + (i%flagDesc.ValuesPerBlock)*FlagWidth
					if p < 0 || p+FlagWidth > int64(len(data)) {
						return models.WrapIOFailure(errTruncated, "%s: flag %d at offset %d beyond %d bytes", path, i, p, len(data))
					}
					flags = append(flags, models.Flag(int16(binary.LittleEndian.Uint16(data[p:]))))
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		pos += take
		n -= take
	}
	return flags, nil
}

// ReadChannel decodes values and their flags together. The flags are
// carried per element in SeqFlags.
func (c *Codec) ReadChannel(l *Layout, start, count int64) (models.Value, error) {
	v, err := c.ReadValues(l, start, count)
	if err != nil {
		return models.Value{}, err
	}
	flags, err := c.ReadFlags(l, start, count)
	if err != nil {
		return models.Value{}, err
	}
	v.SeqFlags = flags
	return v, nil
}
