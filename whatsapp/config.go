package whatsapp

import (
	"strings"
	"time"

	"whatsapp-branch-bot/utils"
)

// DefaultRedirectTemplate is sent to customers who ask questions on a
// file-drop line. {branch} is replaced by the branch display name.
const DefaultRedirectTemplate = "¡Hola! Estás escribiendo a *{branch}*. Este número es solo para enviar archivos. " +
	"Para cotizaciones y preguntas, por favor escríbenos a nuestro número de atención: *653-176-7005 (Marketing)*"

const (
	feedTimeLayout   = "2006-01-02 15:04:05"
	credentialDBName = "session.db"
)

// ControllerConfig tunes a branch session controller.
type ControllerConfig struct {
	// RedirectTemplate overrides DefaultRedirectTemplate when set.
	RedirectTemplate string
	// MessageFeed broadcasts every inbound text message to dashboards.
	MessageFeed bool
	// PrintQR renders pairing codes on stdout.
	PrintQR bool
	Retry   *utils.RetryConfig
	// ReplyRate and ReplyBurst limit redirect replies per sender. A ReplyRate
	// of zero replies to every inquiry.
	ReplyRate  float64
	ReplyBurst int
	DedupeSize int
	DedupeTTL  time.Duration
}

func (c ControllerConfig) redirectText(branchName string) string {
	tmpl := c.RedirectTemplate
	if tmpl == "" {
		tmpl = DefaultRedirectTemplate
	}
	return strings.ReplaceAll(tmpl, "{branch}", branchName)
}
