package configdoc

import "strings"

var keywords = []string{"var", "let", "const"}

// Parse scans text for `<keyword> <name> = <value>;` declarations. Later
// duplicates overwrite earlier ones. A document without declarations yields
// an empty map.
func Parse(text string) Map {
	out := make(Map)
	s := scanner{src: text}
	for s.pos < len(s.src) {
		start := s.pos
		name, raw, ok := s.declaration()
		if ok {
			out[name] = Coerce(raw)
			continue
		}
		s.pos = start + 1
	}
	return out
}

type scanner struct {
	src string
	pos int
}

// declaration tries to read one declaration at the current position and
// leaves pos after its terminating semicolon on success.
func (s *scanner) declaration() (string, string, bool) {
	if !s.keyword() {
		return "", "", false
	}
	if s.skipSpace() == 0 {
		return "", "", false
	}
	name := s.identifier()
	if name == "" {
		return "", "", false
	}
	s.skipSpace()
	if !s.consume('=') || s.peek() == '=' {
		return "", "", false
	}
	s.skipSpace()
	raw, ok := s.value()
	if !ok {
		return "", "", false
	}
	return name, raw, true
}

func (s *scanner) keyword() bool {
	if s.pos > 0 && isIdentByte(s.src[s.pos-1]) {
		return false
	}
	for _, kw := range keywords {
		if strings.HasPrefix(s.src[s.pos:], kw) {
			s.pos += len(kw)
			return true
		}
	}
	return false
}

func (s *scanner) identifier() string {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isIdentByte(c) && !(s.pos == start && c >= '0' && c <= '9') {
			s.pos++
			continue
		}
		break
	}
	return s.src[start:s.pos]
}

// value reads a quoted literal or raw text up to the semicolon. A value that
// opens with a quote but is not a single closed literal is read as raw text.
// Raw values do not span lines.
func (s *scanner) value() (string, bool) {
	start := s.pos
	if lit, ok := s.quoted(); ok {
		return lit, true
	}
	s.pos = start

	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ';':
			raw := strings.TrimSpace(s.src[start:s.pos])
			s.pos++
			return raw, raw != ""
		case '\n':
			return "", false
		}
		s.pos++
	}
	return "", false
}

// quoted reads `"..."` or `'...'` followed by the terminating semicolon.
func (s *scanner) quoted() (string, bool) {
	q := s.peek()
	if q != '"' && q != '\'' {
		return "", false
	}
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == '\n':
			return "", false
		case c == q:
			s.pos++
			lit := s.src[start:s.pos]
			s.skipSpace()
			if !s.consume(';') {
				return "", false
			}
			return lit, true
		}
		s.pos++
	}
	return "", false
}

func (s *scanner) skipSpace() int {
	n := 0
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
			n++
		default:
			return n
		}
	}
	return n
}

func (s *scanner) consume(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) peek() byte {
	if s.pos < len(s.src) {
		return s.src[s.pos]
	}
	return 0
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
