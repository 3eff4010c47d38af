package mailer

import (
	"html/template"
	"strings"
)

const defaultTemplateText = `<html>
<body>
<p>Hello,</p>
<p>Follow the link below to sign in as {{.Email}}:</p>
<p><a href="{{.VerifyURL}}">Sign in</a></p>
<p>The link is valid for {{.ExpiresInMinutes}} minutes and can be used once.
If you did not request it, you can ignore this message.</p>
</body>
</html>
`

// DefaultTemplate is the verification mail body used when no custom template
// is configured.
var DefaultTemplate = template.Must(template.New("verification-email").Parse(defaultTemplateText))

// VerificationEmail defines a public type used by emailauth APIs.
//
// VerificationEmail instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationEmail struct {
	Email            string
	VerifyURL        string
	ExpiresInMinutes int
}

// RenderVerification executes a verification mail template into a body string.
func RenderVerification(tmpl *template.Template, data VerificationEmail) (string, error) {
	if tmpl == nil {
		tmpl = DefaultTemplate
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
