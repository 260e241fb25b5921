package gateway

import "strings"

// recipientVariants derives the ordered list of address encodings to try for
// a phone number. A country code is inferred only when the bare number has
// the 10-11 digits of a local number.
func recipientVariants(raw, countryCode string) []string {
	digits := digitsOnly(raw)
	if digits == "" {
		return nil
	}
	full := digits
	if countryCode != "" && len(digits) >= 10 && len(digits) <= 11 && !strings.HasPrefix(digits, countryCode) {
		full = countryCode + digits
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	add(digits)
	add(full)
	add("+" + full)
	add(full + "@s.whatsapp.net")
	add(full + "@c.us")
	return out
}

// textVariants returns the original text plus, when it differs, a stripped
// variant for upstreams that reject certain glyphs.
func textVariants(text string) []string {
	stripped := stripUnsupported(text)
	if stripped == text || strings.TrimSpace(stripped) == "" {
		return []string{text}
	}
	return []string{text, stripped}
}

// stripUnsupported removes characters outside Latin-1 plus variation
// selectors, which some gateway builds refuse: emoji and other astral-plane
// runes go, accented Latin letters stay.
func stripUnsupported(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r > 0xFF {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
