package filters

import (
	"bytes"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/security"
)

var ErrUnsupportedFilter = errors.New("unsupported filter")

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dict) ([]byte, error)
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

type Limits struct {
	MaxDecompressedSize int64
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// NewDefault returns the decoders needed to read cross-reference and object streams.
func NewDefault(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits.MaxDecompressedSize),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
	}, limits)
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dict) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		var param raw.Dict
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: decoded size %d: %w", name, len(out), security.ErrLimitExceeded)
		}
		data = out
	}
	return data, nil
}

// DecodeStream applies the stream's /Filter chain to its data.
func (p *Pipeline) DecodeStream(ctx context.Context, s *raw.Stream) ([]byte, error) {
	names, params := ExtractFilters(s.Dict)
	return p.Decode(ctx, s.Data, names, params)
}

type flateDecoder struct{ max int64 }

func (flateDecoder) Name() string { return "FlateDecode" }

func NewFlateDecoder(maxSize int64) Decoder { return flateDecoder{max: maxSize} }

func (f flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dict) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var src io.Reader = r
	if f.max > 0 {
		src = io.LimitReader(r, f.max+1)
	}
	var out bytes.Buffer
	// Truncated deflate data is common; keep whatever was inflated.
	if _, err := io.Copy(&out, src); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dict) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	// "z" stands for four zero bytes.
	z := bytes.Count(trimmed, []byte("z"))
	out := make([]byte, (len(trimmed)-z)*4/5+4*z+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dict) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		switch c {
		case ' ', '\t', '\r', '\n', '\f', 0:
			continue
		}
		digits = append(digits, c)
	}
	// an odd final digit is padded with 0
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }
