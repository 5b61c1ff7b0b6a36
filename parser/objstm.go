package parser

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/scanner"
)

type objectStream struct {
	data    []byte
	offsets []int64 // absolute offsets into data
}

func (d *Document) readCompressed(streamNum, index int) (raw.Object, error) {
	os, err := d.loadObjectStream(streamNum)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(os.offsets) {
		return nil, fmt.Errorf("%w: index %d in object stream %d", ErrObjectNotFound, index, streamNum)
	}
	s := scanner.New(os.data, scanner.Config{})
	if err := s.Seek(os.offsets[index]); err != nil {
		return nil, err
	}
	return raw.NewReader(s, nil).ReadObject()
}

func (d *Document) loadObjectStream(num int) (*objectStream, error) {
	if os, ok := d.objStms[num]; ok {
		return os, nil
	}
	obj, err := d.object(num)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", num)
	}
	data, err := d.filters.DecodeStream(context.Background(), stm)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	first, ok := stm.Dict.Int("First")
	if !ok || first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d: invalid /First", num)
	}
	// Every header entry takes at least two bytes.
	n, _ := stm.Dict.Int("N")
	if n < 0 || n > first/2 {
		return nil, fmt.Errorf("object stream %d: invalid /N %d", num, n)
	}

	s := scanner.New(data[:first], scanner.Config{})
	os := &objectStream{data: data, offsets: make([]int64, 0, n)}
	for i := int64(0); i < n; i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("object stream %d: bad header entry %d", num, i)
		}
		os.offsets = append(os.offsets, first+offTok.Int)
	}
	d.objStms[num] = os
	return os, nil
}
