// Package scanner tokenizes PDF object syntax (ISO 32000-1, 7.2 and 7.3).
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenNumber     TokenType = iota // 12, -3.5
	TokenName                        // '/Name'
	TokenString                      // literal or hex string
	TokenBoolean                     // true/false
	TokenNull                        // null
	TokenDictStart                   // '<<'
	TokenDictEnd                     // '>>'
	TokenArrayStart                  // '['
	TokenArrayEnd                    // ']'
	TokenKeyword                     // obj, endobj, stream, R, xref, trailer, ...
)

func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "number"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenDictStart:
		return "<<"
	case TokenDictEnd:
		return ">>"
	case TokenArrayStart:
		return "["
	case TokenArrayEnd:
		return "]"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

type Token struct {
	Type  TokenType
	Str   string // name or keyword text
	Bytes []byte // string contents
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Pos   int64
}

func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

var ErrSyntax = errors.New("pdf syntax error")

type Config struct {
	// MaxStringLength bounds a single string token. Zero means unlimited.
	MaxStringLength int
}

// Scanner reads tokens from an in-memory PDF buffer.
type Scanner struct {
	data []byte
	pos  int
	cfg  Config
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return int64(s.pos) }
func (s *Scanner) Data() []byte    { return s.data }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d: out of range", offset)
	}
	s.pos = int(offset)
	return nil
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (Token, error) {
	pos := s.pos
	tok, err := s.Next()
	s.pos = pos
	return tok, err
}

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= len(s.data) {
		return Token{}, io.EOF
	}
	start := int64(s.pos)
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.at(s.pos+1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictStart, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.at(s.pos+1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("%w: stray '>' at %d", ErrSyntax, start)
	case '[':
		s.pos++
		return Token{Type: TokenArrayStart, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case ')', '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if isNumberStart(c) {
		return s.scanNumber()
	}
	return s.scanKeyword()
}

// SkipEOL consumes a single end-of-line marker (CRLF, LF or CR).
func (s *Scanner) SkipEOL() {
	if s.at(s.pos) == '\r' {
		s.pos++
	}
	if s.at(s.pos) == '\n' {
		s.pos++
	}
}

func (s *Scanner) at(i int) byte {
	if i < 0 || i >= len(s.data) {
		return 0
	}
	return s.data[i]
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if IsWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// IsWhitespace reports PDF white-space characters (NUL, HT, LF, FF, CR, SP).
func IsWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !IsWhitespace(c) && !isDelimiter(c) }

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	text := string(s.data[start:s.pos])
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: int64(start)}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Producers emit things like "--5" or "5-"; keep the leading valid part.
		f, err = parseLenientFloat(text)
		if err != nil {
			return Token{}, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, text, start)
		}
	}
	return Token{Type: TokenNumber, Float: f, Pos: int64(start)}, nil
}

func parseLenientFloat(text string) (float64, error) {
	neg := false
	i := 0
	for i < len(text) && (text[i] == '+' || text[i] == '-') {
		if text[i] == '-' {
			neg = !neg
		}
		i++
	}
	j := i
	dot := false
	for j < len(text) && ((text[j] >= '0' && text[j] <= '9') || (text[j] == '.' && !dot)) {
		if text[j] == '.' {
			dot = true
		}
		j++
	}
	if j == i || text[i:j] == "." {
		return 0, strconv.ErrSyntax
	}
	f, err := strconv.ParseFloat(text[i:j], 64)
	if err != nil {
		return 0, err
	}
	if neg {
		f = -f
	}
	return f, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		s.pos++
		return Token{}, fmt.Errorf("%w: unexpected byte %q at %d", ErrSyntax, s.data[start], start)
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Pos: int64(start)}, nil
	case "false":
		return Token{Type: TokenBoolean, Pos: int64(start)}, nil
	case "null":
		return Token{Type: TokenNull, Pos: int64(start)}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: int64(start)}, nil
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if !isRegular(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.data) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: int64(start)}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				continue
			}
			esc := s.data[s.pos]
			s.pos++
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if s.at(s.pos) == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for k := 0; k < 2 && s.at(s.pos) >= '0' && s.at(s.pos) <= '7'; k++ {
						val = val<<3 + int(s.data[s.pos]-'0')
						s.pos++
					}
					buf.WriteByte(byte(val))
					continue
				}
				buf.WriteByte(esc)
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: int64(start)}, nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && buf.Len() > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("%w: literal string at %d exceeds %d bytes", ErrSyntax, start, s.cfg.MaxStringLength)
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated literal string at %d", ErrSyntax, start)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var nibbles []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(nibbles)%2 == 1 {
				nibbles = append(nibbles, '0')
			}
			out := make([]byte, len(nibbles)/2)
			for i := range out {
				out[i] = fromHex(nibbles[2*i])<<4 | fromHex(nibbles[2*i+1])
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: int64(start)}, nil
		}
		if IsWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("%w: bad hex digit %q at %d", ErrSyntax, c, s.pos-1)
		}
		nibbles = append(nibbles, c)
		if s.cfg.MaxStringLength > 0 && len(nibbles)/2 > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("%w: hex string at %d exceeds %d bytes", ErrSyntax, start, s.cfg.MaxStringLength)
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated hex string at %d", ErrSyntax, start)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
