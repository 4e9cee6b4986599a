package textextract

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// wordGap is the TJ displacement (thousandths of a text unit) beyond which a
// kerning adjustment is read as a word space.
const wordGap = 200

// operand is one value on the content-stream operand stack.
type operand struct {
	num   float64
	isNum bool
	str   string
	isStr bool
	// arr holds the pieces of a TJ array: strings and kerning numbers.
	arr   []operand
	isArr bool
}

// streamText reads the text-showing operators of a page content stream and
// returns the shown text with line structure kept: Td/TD with a vertical
// move, T*, ' and " start a new line; Tm starts one when the baseline moves.
func streamText(data []byte) string {
	w := &lineWriter{}
	lx := &lexer{data: data}

	var stack []operand
	var arr []operand
	inArray := false
	lastTmY, haveTm := 0.0, false

	for {
		tok, kind := lx.next()
		if kind == tokEOF {
			break
		}
		switch kind {
		case tokString:
			op := operand{str: decodeRun(tok), isStr: true}
			if inArray {
				arr = append(arr, op)
			} else {
				stack = append(stack, op)
			}
		case tokNumber:
			f, _ := strconv.ParseFloat(tok, 64)
			op := operand{num: f, isNum: true}
			if inArray {
				arr = append(arr, op)
			} else {
				stack = append(stack, op)
			}
		case tokArrayOpen:
			inArray, arr = true, nil
		case tokArrayClose:
			inArray = false
			stack = append(stack, operand{arr: arr, isArr: true})
		case tokOperator:
			switch tok {
			case "Tj":
				if s, ok := lastString(stack); ok {
					w.text(s)
				}
			case "TJ":
				if n := len(stack); n > 0 && stack[n-1].isArr {
					for _, el := range stack[n-1].arr {
						switch {
						case el.isStr:
							w.text(el.str)
						case el.isNum && el.num < -wordGap:
							w.space()
						}
					}
				}
			case "'", "\"":
				w.newline()
				if s, ok := lastString(stack); ok {
					w.text(s)
				}
			case "Td", "TD":
				if n := len(stack); n >= 2 && stack[n-1].isNum && stack[n-1].num != 0 {
					w.newline()
				} else {
					w.space()
				}
			case "T*":
				w.newline()
			case "Tm":
				if n := len(stack); n >= 6 && stack[n-1].isNum {
					y := stack[n-1].num
					if haveTm && y != lastTmY {
						w.newline()
					} else if haveTm {
						w.space()
					}
					lastTmY, haveTm = y, true
				}
			case "ET":
				w.space()
			case "ID":
				lx.skipInlineImage()
			}
			stack = stack[:0]
		}
	}
	return w.String()
}

func lastString(stack []operand) (string, bool) {
	if n := len(stack); n > 0 && stack[n-1].isStr {
		return stack[n-1].str, true
	}
	return "", false
}

// decodeRun percent-decodes one text run. Runs that are not valid
// percent-encoding, or that decode to invalid UTF-8, are kept verbatim.
func decodeRun(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	d, err := url.PathUnescape(s)
	if err != nil || !utf8.ValidString(d) {
		return s
	}
	return d
}

// lineWriter accumulates text, collapsing redundant separators.
type lineWriter struct {
	sb bytes.Buffer
}

func (w *lineWriter) last() byte {
	if w.sb.Len() == 0 {
		return '\n'
	}
	return w.sb.Bytes()[w.sb.Len()-1]
}

func (w *lineWriter) text(s string) { w.sb.WriteString(s) }

func (w *lineWriter) space() {
	if c := w.last(); c != ' ' && c != '\n' {
		w.sb.WriteByte(' ')
	}
}

func (w *lineWriter) newline() {
	if w.sb.Len() == 0 {
		return
	}
	for w.last() == ' ' {
		w.sb.Truncate(w.sb.Len() - 1)
	}
	w.sb.WriteByte('\n')
}

func (w *lineWriter) String() string {
	lines := strings.Split(w.sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokString
	tokNumber
	tokArrayOpen
	tokArrayClose
	tokOperator
	tokOther
)

// lexer tokenizes a PDF content stream. Names, dictionaries and comments are
// reported as tokOther; only what text extraction needs is decoded.
type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (lx *lexer) next() (string, tokKind) {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch {
		case isWhite(c):
			lx.pos++
		case c == '%':
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
		case c == '(':
			return lx.literal(), tokString
		case c == '<':
			if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<' {
				lx.pos += 2
				return "<<", tokOther
			}
			return lx.hex(), tokString
		case c == '>':
			lx.pos++
			if lx.pos < len(lx.data) && lx.data[lx.pos] == '>' {
				lx.pos++
			}
			return ">>", tokOther
		case c == '[':
			lx.pos++
			return "[", tokArrayOpen
		case c == ']':
			lx.pos++
			return "]", tokArrayClose
		case c == '/':
			start := lx.pos
			lx.pos++
			for lx.pos < len(lx.data) && !isWhite(lx.data[lx.pos]) && !isDelim(lx.data[lx.pos]) {
				lx.pos++
			}
			return string(lx.data[start:lx.pos]), tokOther
		case c == '{' || c == '}' || c == ')':
			lx.pos++
		default:
			start := lx.pos
			for lx.pos < len(lx.data) && !isWhite(lx.data[lx.pos]) && !isDelim(lx.data[lx.pos]) {
				lx.pos++
			}
			word := string(lx.data[start:lx.pos])
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				return word, tokNumber
			}
			return word, tokOperator
		}
	}
	return "", tokEOF
}

// literal reads a (…) string with nesting and backslash escapes.
func (lx *lexer) literal() string {
	lx.pos++ // (
	var sb strings.Builder
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch c {
		case '\\':
			lx.pos++
			if lx.pos >= len(lx.data) {
				return sb.String()
			}
			e := lx.data[lx.pos]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '\r', '\n':
				// Line continuation.
				if e == '\r' && lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '\n' {
					lx.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && lx.pos+1 < len(lx.data); k++ {
						d := lx.data[lx.pos+1]
						if d < '0' || d > '7' {
							break
						}
						lx.pos++
						val = val*8 + int(d-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(e)
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				lx.pos++
				return sb.String()
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
		lx.pos++
	}
	return sb.String()
}

// hex reads a <…> string.
func (lx *lexer) hex() string {
	lx.pos++ // <
	var digits []byte
	for lx.pos < len(lx.data) && lx.data[lx.pos] != '>' {
		c := lx.data[lx.pos]
		if isHexDigit(c) {
			digits = append(digits, c)
		}
		lx.pos++
	}
	lx.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		out = append(out, unhex(digits[i])<<4|unhex(digits[i+1]))
	}
	return string(out)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// skipInlineImage advances past binary inline image data up to "EI".
func (lx *lexer) skipInlineImage() {
	i := bytes.Index(lx.data[lx.pos:], []byte("EI"))
	for i >= 0 {
		at := lx.pos + i
		before := at == 0 || isWhite(lx.data[at-1])
		after := at+2 >= len(lx.data) || isWhite(lx.data[at+2])
		if before && after {
			lx.pos = at + 2
			return
		}
		j := bytes.Index(lx.data[at+2:], []byte("EI"))
		if j < 0 {
			break
		}
		i = at + 2 + j - lx.pos
	}
	lx.pos = len(lx.data)
}
