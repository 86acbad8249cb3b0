package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength caps generic span attribute values.
	DefaultMaxLength = 200

	// MaxSQLLength caps SQL statements.
	MaxSQLLength = 500

	// MaxRedisLength caps Redis keys and values.
	MaxRedisLength = 100

	// MaxVectorPayloadLength caps vector store payload excerpts.
	MaxVectorPayloadLength = 100

	// MaxDocumentLength caps document/prompt content excerpts.
	MaxDocumentLength = 150
)

// maskPIILookup lists attribute-name fragments whose values must be masked.
var maskPIILookup = map[string]bool{
	"email":    true,
	"phone":    true,
	"password": true,
	"address":  true,
	"name":     true,
	"secret":   true,
	"token":    true,
	"api_key":  true,
}

// SafeAttributeValue masks values under sensitive attribute names and
// truncates everything else to maxLength.
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for keyword := range maskPIILookup {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII masks a sensitive value, keeping at most the outermost characters.
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	length := len(runes)

	if length <= 1 {
		return "*"
	}
	if length <= 4 {
		if length == 2 {
			return string(runes[0:1]) + "*"
		}
		return string(runes[0:1]) + strings.Repeat("*", length-2) + string(runes[length-1:])
	}

	// "myemail@example.com" -> "my***************om"
	return string(runes[0:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
}

// TruncateString keeps the head and tail of an overlong string joined by an
// ellipsis. Rune-safe.
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}

	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL bounds a SQL statement for span attributes.
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey bounds a Redis key for span attributes.
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafeDocumentContent bounds document or prompt content for span attributes.
func SafeDocumentContent(content string) string {
	return TruncateString(content, MaxDocumentLength)
}
