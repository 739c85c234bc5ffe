// Package email derives presentation data from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a human name from the local part of an address:
// "ana.perez@club.org" becomes "Ana Perez". It returns "" when the local part
// has no usable words.
func DisplayName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
