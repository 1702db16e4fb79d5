package ingestor

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/go-errors/errors"
)

// decodes reports whether the whole of r is valid in enc.
func decodes(enc Encoding, r io.Reader) (bool, error) {
	switch enc {
	case UTF8:
		return validUTF8(r)
	case Latin1:
		// Every byte is a Latin-1 code point.
		return true, nil
	default:
		return false, errors.Errorf("unsupported encoding %q", enc)
	}
}

func validUTF8(r io.Reader) (bool, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		c, size, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if c == utf8.RuneError && size == 1 {
			return false, nil
		}
	}
}

// looksBinary sniffs the leading block of a file. NUL bytes mark binary
// content outright. Otherwise a block that is not UTF-8 is binary only when
// it is dense with control bytes, so Latin-1 text still gets through.
func looksBinary(block []byte) bool {
	if bytes.IndexByte(block, 0) >= 0 {
		return true
	}
	if validPrefix(block) {
		return false
	}
	control := 0
	for _, b := range block {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' && b != '\f' && b != '\v' && b != 0x1b {
			control++
		}
	}
	return control*10 > len(block)
}

// validPrefix is utf8.Valid that tolerates a rune cut off by the block end.
func validPrefix(block []byte) bool {
	for len(block) > 0 {
		c, size := utf8.DecodeRune(block)
		if c == utf8.RuneError && size == 1 {
			return len(block) < utf8.UTFMax && !utf8.FullRune(block)
		}
		block = block[size:]
	}
	return true
}
