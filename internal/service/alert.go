package service

import (
	"fmt"
	"strings"
	"time"

	"EstouBem/utils"
)

const fallbackDisplayName = "Uma pessoa que cadastrou você no Estou Bem"

type alertMessage struct {
	Subject string
	Body    string
	SMS     string
}

// composeAlert 中性、非紧急的提醒文案
func composeAlert(ab *absence, loc *time.Location) alertMessage {
	name := fallbackDisplayName
	if ab.user != nil && strings.TrimSpace(ab.user.DisplayName) != "" {
		name = strings.TrimSpace(ab.user.DisplayName)
	}

	var since, sinceShort string
	if ab.lastCheckIn != nil {
		since = "não faz o check-in diário desde " + utils.FormatDateTimePT(*ab.lastCheckIn, loc)
		sinceShort = "não faz o check-in desde " + utils.FormatDatePT(*ab.lastCheckIn, loc)
	} else {
		since = "ainda não fez nenhum check-in desde o cadastro, em " + utils.FormatDatePT(ab.baseline, loc)
		sinceShort = "não fez nenhum check-in desde " + utils.FormatDatePT(ab.baseline, loc)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Olá, %s.\n\n", ab.contact.Name)
	fmt.Fprintf(&body, "%s indicou você como contato de confiança no Estou Bem e %s.\n\n", name, since)
	body.WriteString("Isto não é um alerta de emergência. Talvez seja um bom momento para entrar em contato e saber se está tudo bem.\n\n")
	body.WriteString("Você recebe este aviso apenas uma vez. Quando houver um novo check-in, o acompanhamento recomeça normalmente.\n")

	return alertMessage{
		Subject: fmt.Sprintf("Estou Bem: %s %s", name, sinceShort),
		Body:    body.String(),
		SMS:     fmt.Sprintf("Estou Bem: %s %s. Não é uma emergência, mas vale a pena entrar em contato.", name, sinceShort),
	}
}
