package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates renders the confirmation email bodies. The fallback is a
// reduced layout used with the backup transport.
type Templates struct {
	storeName    string
	currency     string
	confirmation *template.Template
	fallback     *template.Template
}

type templateData struct {
	StoreName string
	Currency  string
	Snapshot  models.OrderSnapshot
}

func NewTemplates(storeName, currency string) (*Templates, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}

	confirmation, err := template.New("confirmation.html").Funcs(funcs).ParseFS(templateFS, "templates/confirmation.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse confirmation template: %w", err)
	}
	fallback, err := template.New("fallback.html").Funcs(funcs).ParseFS(templateFS, "templates/fallback.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback template: %w", err)
	}

	return &Templates{
		storeName:    storeName,
		currency:     currency,
		confirmation: confirmation,
		fallback:     fallback,
	}, nil
}

func (t *Templates) Confirmation(snap models.OrderSnapshot) (string, error) {
	return t.execute(t.confirmation, snap)
}

func (t *Templates) Fallback(snap models.OrderSnapshot) (string, error) {
	return t.execute(t.fallback, snap)
}

func (t *Templates) execute(tmpl *template.Template, snap models.OrderSnapshot) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{StoreName: t.storeName, Currency: t.currency, Snapshot: snap}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
