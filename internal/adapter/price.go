package adapter

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var priceRe = regexp.MustCompile(`([0-9][0-9,]*)`)

// parsePrice extracts a JPY amount from marketplace price text such as
// "¥19,380", "1,980円（税込）" or full-width "￥１９，３８０". Returns false
// when no digits are present.
func parsePrice(s string) (int64, bool) {
	// Marketplace pages mix full-width and half-width digits; fold to ASCII
	// before matching.
	s = width.Narrow.String(s)
	m := priceRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
