package utils

import (
	"bytes"
	"html/template"
	"time"

	"bazaar_back_end/internal/models"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Code de vérification</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Vérification de votre adresse e-mail</h2>
		<p>Votre code de vérification :</p>
		<p style="font-size: 32px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
		<p style="color: #555;">Ce code expire dans {{.Minutes}} minutes.</p>
	</div>
</body>
</html>`))

// OTPEmailHTML génère le corps de l'e-mail contenant le code OTP.
func OTPEmailHTML(code string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, map[string]any{"Code": code, "Minutes": int(ttl.Minutes())})
	return buf.String(), err
}

var orderTemplate = template.Must(template.New("order").Funcs(template.FuncMap{"money": FormatMoney}).Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirmation de votre commande</h2>
		<p>Bonjour {{.Name}},</p>
		<p>Votre commande a été enregistrée ({{.Gateway}}).</p>
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Produit</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Quantité</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Prix unitaire</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Total</th>
				</tr>
			</thead>
			<tbody>
			{{range .Lines}}
				<tr>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.ProductName}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.Quantity}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{money .UnitPrice}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{money .Total}}</td>
				</tr>
			{{end}}
			</tbody>
			<tfoot>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total :</td>
					<td style="padding: 10px; font-weight: bold;">{{money .Total}}</td>
				</tr>
			</tfoot>
		</table>
	</div>
</body>
</html>`))

// OrderConfirmationHTML génère l'e-mail envoyé après un checkout.
func OrderConfirmationHTML(name string, gateway models.PaymentGateway, lines []models.BillLine, total float64) (string, error) {
	var buf bytes.Buffer
	err := orderTemplate.Execute(&buf, map[string]any{
		"Name":    name,
		"Gateway": gateway,
		"Lines":   lines,
		"Total":   total,
	})
	return buf.String(), err
}
