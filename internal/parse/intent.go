package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var affirmativeTokens = []string{
	"sim", "s", "confirmo", "confirmar", "confirma", "ok", "claro", "isso", "pode", "positivo", "quero",
}

var negativeTokens = []string{
	"nao", "n", "cancelar", "cancela", "cancele", "desistir", "desisto", "deixa", "negativo",
}

var bookingTriggers = []string{
	"agendar", "agendamento", "marcar", "reservar",
}

var (
	priceListRe = regexp.MustCompile(`\b(preco|precos|valor|valores|servico|servicos|lista|menu|catalogo|tabela)\b`)
	slotListRe  = regexp.MustCompile(`\b(horario|horarios|horas|disponivel|disponiveis|agenda|vagas)\b`)
	quantityRe  = regexp.MustCompile(`\b(\d{1,3})\b`)
)

// Affirmative reports whether the text starts with a known yes-token.
func Affirmative(text string) bool {
	return matchesAny(Normalize(text), affirmativeTokens)
}

// Negative reports whether the text starts with a known no/cancel-token.
func Negative(text string) bool {
	return matchesAny(Normalize(text), negativeTokens)
}

// BookingTrigger reports whether the text (re)starts the booking flow.
func BookingTrigger(text string) bool {
	return matchesAny(Normalize(text), bookingTriggers)
}

// WantsPriceList reports whether the text asks for the service/price catalog.
func WantsPriceList(text string) bool {
	return priceListRe.MatchString(Normalize(text))
}

// WantsTimes reports whether the text asks which times are available.
func WantsTimes(text string) bool {
	return slotListRe.MatchString(Normalize(text))
}

// Quantity extracts a small positive integer from the text.
func Quantity(text string) (int, bool) {
	m := quantityRe.FindStringSubmatch(Normalize(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func matchesAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if hasWordPrefix(text, token) {
			return true
		}
	}
	return false
}

// MatchesService compares customer input against a service name after
// normalization, accepting containment in either direction.
func MatchesService(input, serviceName string) bool {
	in := Normalize(input)
	name := Normalize(serviceName)
	if in == "" || name == "" {
		return false
	}
	return strings.Contains(in, name) || strings.Contains(name, in)
}
