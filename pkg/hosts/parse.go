// Package hosts parses the line oriented host-list format used by blocklists:
// either plain hostnames, one per line, or hosts(5) style lines that map a
// hostname to 127.0.0.1 or 0.0.0.0.
package hosts

import (
	"bufio"
	"io"
	"strings"
)

// Parse reads r to the end and returns the set of lower-cased hostnames found in it.
//
// Lines end with "\n", "\r" or "\r\n". Everything from the first '#' on a line is a
// comment. A line with a single token contributes that token. A line with two tokens
// contributes the second token only when the first is "127.0.0.1" or "0.0.0.0". All
// other lines are ignored.
//
// A read error ends the parse; the hosts of all complete lines read up to that point
// are returned and a partially read line is dropped.
func Parse(r io.Reader) map[string]struct{} {
	hosts := make(map[string]struct{})
	add := func(line []byte) {
		if host, ok := ParseLine(string(line)); ok {
			hosts[host] = struct{}{}
		}
	}
	br := bufio.NewReader(r)
	line := make([]byte, 0, 128)
	var prev byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				add(line)
			}
			return hosts
		}
		switch {
		case b == '\n' && prev == '\r':
			// second half of a "\r\n"
		case b == '\n' || b == '\r':
			add(line)
			line = line[:0]
		default:
			line = append(line, b)
		}
		prev = b
	}
}

// ParseLine returns the lower-cased hostname that line contributes, if any.
func ParseLine(line string) (string, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.FieldsFunc(strings.TrimSpace(line), isBlank)
	switch len(fields) {
	case 1:
		return strings.ToLower(fields[0]), true
	case 2:
		if isDeviceLocalIP(fields[0]) {
			return strings.ToLower(fields[1]), true
		}
	}
	return "", false
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}

func isDeviceLocalIP(s string) bool {
	return s == "127.0.0.1" || s == "0.0.0.0"
}
