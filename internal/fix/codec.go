package fix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors
var (
	ErrMissingTag = errors.New("missing tag")
	ErrBadTag     = errors.New("malformed tag value")
)

// Field is a single tag=value pair.
type Field struct {
	Tag   int
	Value string
}

// F is shorthand for building a Field.
func F(tag int, value string) Field {
	return Field{Tag: tag, Value: value}
}

// Fields is a decoded message: tag number → value.
type Fields map[int]string

// Get returns the value of tag and whether it was present.
func (f Fields) Get(tag int) (string, bool) {
	v, ok := f[tag]
	return v, ok
}

// Int parses the value of tag as a decimal integer.
func (f Fields) Int(tag int) (int, error) {
	v, ok := f[tag]
	if !ok {
		return 0, fmt.Errorf("tag %d: %w", tag, ErrMissingTag)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("tag %d: %w", tag, ErrBadTag)
	}
	return n, nil
}

// MsgType returns tag 35, or "" when absent.
func (f Fields) MsgType() string {
	return f[TagMsgType]
}

// Parse splits a raw message into its fields. Tokens that are not exactly
// <int>=<non-empty value> are dropped.
func Parse(raw string) Fields {
	fields := make(Fields)
	for _, token := range strings.Split(raw, string(SOH)) {
		tag, value, ok := splitToken(token)
		if !ok {
			continue
		}
		fields[tag] = value
	}
	return fields
}

func splitToken(token string) (int, string, bool) {
	if strings.Count(token, "=") != 1 {
		return 0, "", false
	}
	k, v, _ := strings.Cut(token, "=")
	if k == "" || v == "" {
		return 0, "", false
	}
	tag, err := strconv.Atoi(k)
	if err != nil {
		return 0, "", false
	}
	return tag, v, true
}

// Checksum returns the byte sum of s modulo 256 as three zero-padded digits.
func Checksum(s string) string {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return fmt.Sprintf("%03d", sum%256)
}

// ValidChecksum reports whether raw carries exactly one "10=" and the three
// digits following it match the checksum of everything before it.
func ValidChecksum(raw string) bool {
	parts := strings.Split(raw, "10=")
	if len(parts) != 2 {
		return false
	}
	if len(parts[1]) < 3 {
		return false
	}
	return Checksum(parts[0]) == parts[1][:3]
}

// Build assembles a complete wire message of the given type. Body length and
// checksum are computed here; callers supply only the body fields after 35.
func Build(msgType string, body ...Field) string {
	var b strings.Builder
	writeField(&b, TagMsgType, msgType)
	for _, f := range body {
		writeField(&b, f.Tag, f.Value)
	}
	bodyStr := b.String()

	var msg strings.Builder
	writeField(&msg, TagBeginString, BeginString)
	writeField(&msg, TagBodyLength, strconv.Itoa(len(bodyStr)))
	msg.WriteString(bodyStr)

	head := msg.String()
	return head + strconv.Itoa(TagCheckSum) + "=" + Checksum(head) + string(SOH)
}

func writeField(b *strings.Builder, tag int, value string) {
	b.WriteString(strconv.Itoa(tag))
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte(SOH)
}

// Pretty renders raw for logs and terminals, replacing SOH with '|'.
func Pretty(raw string) string {
	return strings.ReplaceAll(raw, string(SOH), "|")
}
