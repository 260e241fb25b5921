package conversation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wfsantos/agendabot/internal/booking"
	"github.com/wfsantos/agendabot/internal/tenancy"
)

// Default reply copy, pt-BR. Tenants can override any entry through their
// templates map; placeholders are substituted after the override is applied.
var defaultReplies = map[string]string{
	"ask_service":     "Olá! Qual serviço você gostaria de agendar?\n\n{servicos}",
	"service_list":    "Estes são os nossos serviços:\n\n{servicos}\n\nQual deles você gostaria?",
	"ask_quantity":    "Para quantas pessoas? (até {capacidade})",
	"bad_quantity":    "Não entendi a quantidade. Me diga um número de 1 a {capacidade}, por favor.",
	"ask_date":        "Para qual dia você gostaria? Pode mandar no formato 25/12, \"25 de dezembro\" ou o dia da semana.",
	"bad_date":        "Não consegui entender a data. Pode mandar no formato 25/12 ou \"25 de dezembro\"?",
	"no_availability": "Infelizmente não temos horários disponíveis em {data}. Pode escolher outro dia?",
	"availability_down": "Não consegui consultar a agenda agora. Pode tentar outro dia?",
	"ask_time":        "Temos estes horários em {data}:\n\n{horarios}\n\nQual prefere?",
	"bad_time":        "Esse horário não está disponível. Os horários livres em {data} são:\n\n{horarios}",
	"ask_name":        "Perfeito! Em nome de quem faço a reserva?",
	"bad_name":        "Pode me dizer o nome completo para a reserva?",
	"confirm_summary": "Confirma o agendamento?\n\n📋 {servico}\n📅 {data}\n🕐 {hora}\n👤 {nome}\n\nResponda *Sim* para confirmar ou *Não* para cancelar.",
	"reprompt_confirm": "Só preciso de uma confirmação: responda *Sim* para confirmar ou *Não* para cancelar.",
	"confirmed":       "Agendado! ✅\n\n📋 {servico}\n📅 {data}\n🕐 {hora}\n👤 {nome}\n\nAté lá!",
	"cancelled":       "Tudo bem, agendamento cancelado. Quando quiser marcar é só mandar \"Agendar\".",
	"slot_taken":      "Poxa, esse horário acabou de ser reservado. Pode escolher outro dia?",
	"date_in_past":    "Essa data já passou. Pode escolher outro dia?",
	"date_too_far":    "Essa data está muito distante para agendar. Pode escolher um dia mais próximo?",
	"monthly_cap":     "Atingimos o limite de agendamentos deste mês. Pode tentar uma data no mês seguinte?",
	"booking_failed":  "Não consegui concluir o agendamento agora. Pode responder *Sim* de novo para eu tentar outra vez?",
}

// Replies renders customer-facing messages for one tenant.
type Replies struct {
	tenant *tenancy.Tenant
}

func NewReplies(tenant *tenancy.Tenant) *Replies {
	return &Replies{tenant: tenant}
}

func (r *Replies) render(name string, pairs ...string) string {
	text := r.tenant.Template(name)
	if text == "" {
		text = defaultReplies[name]
	}
	oldnew := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		oldnew = append(oldnew, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(oldnew...).Replace(text)
}

func (r *Replies) AskService(services []booking.Service) string {
	return r.render("ask_service", "servicos", serviceList(services))
}

func (r *Replies) ServiceList(services []booking.Service) string {
	return r.render("service_list", "servicos", serviceList(services))
}

func (r *Replies) AskQuantity(capacity int) string {
	return r.render("ask_quantity", "capacidade", fmt.Sprintf("%d", capacity))
}

func (r *Replies) BadQuantity(capacity int) string {
	return r.render("bad_quantity", "capacidade", fmt.Sprintf("%d", capacity))
}

func (r *Replies) AskDate() string {
	return r.render("ask_date")
}

func (r *Replies) BadDate() string {
	return r.render("bad_date")
}

func (r *Replies) NoAvailability(date string) string {
	return r.render("no_availability", "data", date)
}

func (r *Replies) AvailabilityDown() string {
	return r.render("availability_down")
}

func (r *Replies) AskTime(date string, slots []booking.Slot) string {
	return r.render("ask_time", "data", date, "horarios", groupedTimes(slots))
}

func (r *Replies) BadTime(date string, slots []booking.Slot) string {
	return r.render("bad_time", "data", date, "horarios", groupedTimes(slots))
}

func (r *Replies) AskName() string {
	return r.render("ask_name")
}

func (r *Replies) BadName() string {
	return r.render("bad_name")
}

func (r *Replies) ConfirmSummary(s Slots) string {
	return r.render("confirm_summary",
		"servico", s.ServiceName,
		"data", displayDate(s.Date),
		"hora", displayTime(s),
		"nome", s.CustomerName,
	)
}

func (r *Replies) RepromptConfirm() string {
	return r.render("reprompt_confirm")
}

func (r *Replies) Confirmed(s Slots) string {
	return r.render("confirmed",
		"servico", s.ServiceName,
		"data", displayDate(s.Date),
		"hora", displayTime(s),
		"nome", s.CustomerName,
	)
}

func (r *Replies) Cancelled() string {
	return r.render("cancelled")
}

func (r *Replies) BookingFailure(templateName string) string {
	return r.render(templateName)
}

func serviceList(services []booking.Service) string {
	lines := make([]string, 0, len(services))
	for _, svc := range services {
		if svc.Price > 0 {
			lines = append(lines, fmt.Sprintf("• %s - R$ %d,%02d", svc.Name, svc.Price/100, svc.Price%100))
			continue
		}
		lines = append(lines, "• "+svc.Name)
	}
	return strings.Join(lines, "\n")
}

// groupedTimes buckets slot times into morning, afternoon and evening.
func groupedTimes(slots []booking.Slot) string {
	var morning, afternoon, evening []string
	for _, slot := range slots {
		switch {
		case slot.Time < "12:00":
			morning = append(morning, slot.Time)
		case slot.Time < "18:00":
			afternoon = append(afternoon, slot.Time)
		default:
			evening = append(evening, slot.Time)
		}
	}
	sort.Strings(morning)
	sort.Strings(afternoon)
	sort.Strings(evening)

	var sections []string
	if len(morning) > 0 {
		sections = append(sections, "🌅 Manhã: "+strings.Join(morning, ", "))
	}
	if len(afternoon) > 0 {
		sections = append(sections, "☀️ Tarde: "+strings.Join(afternoon, ", "))
	}
	if len(evening) > 0 {
		sections = append(sections, "🌙 Noite: "+strings.Join(evening, ", "))
	}
	return strings.Join(sections, "\n")
}

// displayDate flips the stored 2006-01-02 form to dd/mm/yyyy for customers.
func displayDate(stored string) string {
	parts := strings.Split(stored, "-")
	if len(parts) != 3 {
		return stored
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

func displayTime(s Slots) string {
	if s.FullDay {
		return "dia inteiro"
	}
	return s.Time
}
