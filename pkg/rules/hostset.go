package rules

import (
	"sort"
	"strings"
)

// HostSet is a set of lower-cased hostnames.
type HostSet map[string]struct{}

// Contains reports whether host is in the set. The lookup is case-insensitive.
func (s HostSet) Contains(host string) bool {
	_, ok := s[strings.ToLower(host)]
	return ok
}

func (s HostSet) add(host string) {
	s[host] = struct{}{}
}

func (s HostSet) remove(host string) {
	delete(s, host)
}

// Sorted returns the hosts of the set in lexical order.
func (s HostSet) Sorted() []string {
	hs := make([]string, 0, len(s))
	for h := range s {
		hs = append(hs, h)
	}
	sort.Strings(hs)
	return hs
}
