package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the email content ready for a sender.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

type purchaseData struct {
	SiteName    string
	SiteURL     string
	OrderNumber string
	ProductName string
	VariantName string
	LicenseKey  string
	ExpiryText  string
	Amount      string
	Year        int
}

// Renderer renders the confirmation email from embedded templates.
type Renderer struct {
	html     *template.Template
	text     *texttemplate.Template
	siteName string
	siteURL  string
}

func NewRenderer(siteName, siteURL string) (*Renderer, error) {
	htmlTmpl, err := template.ParseFS(templateFS, "templates/purchase_confirmation.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse purchase_confirmation.html: %w", err)
	}
	txtTmpl, err := texttemplate.ParseFS(templateFS, "templates/purchase_confirmation.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse purchase_confirmation.txt: %w", err)
	}
	if siteName == "" {
		siteName = "Valor"
	}
	return &Renderer{html: htmlTmpl, text: txtTmpl, siteName: siteName, siteURL: siteURL}, nil
}

// PurchaseSubject returns the confirmation subject line for an order.
func PurchaseSubject(siteName, orderNumber string) string {
	return fmt.Sprintf("Your %s License Key - Order #%s", siteName, orderNumber)
}

// ExpiryText describes key validity as shown to the customer.
func ExpiryText(expiresAt *time.Time) string {
	if expiresAt == nil {
		return "Lifetime Access"
	}
	return "Expires: " + expiresAt.UTC().Format("January 2, 2006")
}

// RenderPurchase renders the confirmation email. now supplies the copyright year.
func (r *Renderer) RenderPurchase(p Purchase, now time.Time) (*RenderedEmail, error) {
	data := purchaseData{
		SiteName:    r.siteName,
		SiteURL:     r.siteURL,
		OrderNumber: p.OrderNumber,
		ProductName: p.ProductName,
		VariantName: p.VariantName,
		LicenseKey:  p.LicenseKey,
		ExpiryText:  ExpiryText(p.ExpiresAt),
		Amount:      formatDollars(p.AmountCents),
		Year:        now.Year(),
	}

	var htmlBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render HTML: %w", err)
	}
	var txtBuf bytes.Buffer
	if err := r.text.Execute(&txtBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render text: %w", err)
	}

	return &RenderedEmail{
		Subject:  PurchaseSubject(r.siteName, p.OrderNumber),
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}
