package statsd

import "unicode/utf16"

// NameID turns a name into a statsd id the way the platform test harness
// does, with java.lang.String#hashCode. Keeping the same ids makes configs
// uploaded here interchangeable with the harness's own.
func NameID(name string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(name)) {
		h = 31*h + int32(c)
	}
	return int64(h)
}

// DefaultConfigID is the id of every config uploaded by statsval.
var DefaultConfigID = NameID("cts_config")
