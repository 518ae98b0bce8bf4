// Package inquiry decides whether a message reads like a customer question.
package inquiry

import "strings"

// keywords are matched as plain substrings of the lowercased text.
var keywords = []string{
	// greetings and any question
	"hola",
	"?",
	// price and cost
	"precio",
	"canva",
	"cuánto",
	"cuanto",
	"costo",
	// capability and availability
	"tienen",
	"hacen",
	"pueden",
	// opening hours
	"horario",
	"abren",
	"cierran",
}

// IsInquiry reports whether text contains any inquiry keyword, ignoring case.
func IsInquiry(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
