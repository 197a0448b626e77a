package utils

import (
	"bytes"
	"html/template"

	"bazaar_back_end/internal/models"
)

func bookingStatusSubject(status models.BookingStatus) string {
	switch status {
	case models.StatusCompleted:
		return "✅ Votre commande est terminée"
	case models.StatusCancelled:
		return "❌ Votre commande a été annulée"
	default:
		return "⏳ Votre commande est en attente"
	}
}

func bookingStatusMessage(status models.BookingStatus) string {
	switch status {
	case models.StatusCompleted:
		return "Votre commande est terminée. Vous pouvez télécharger votre facture depuis votre espace."
	case models.StatusCancelled:
		return "Votre commande a été annulée. Le stock réservé a été libéré."
	default:
		return "Votre commande est de nouveau en attente de traitement."
	}
}

func bookingStatusColor(status models.BookingStatus) string {
	switch status {
	case models.StatusCompleted:
		return "#28a745"
	case models.StatusCancelled:
		return "#dc3545"
	default:
		return "#ffc107"
	}
}

var statusTemplate = template.Must(template.New("status").Funcs(template.FuncMap{"money": FormatMoney}).Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px; border-top: 6px solid {{.Color}};">
		<h2 style="color: #333;">{{.Subject}}</h2>
		<p>{{.Message}}</p>
		<p>Référence : <strong>{{.Booking.ID}}</strong></p>
		<p>{{.ProductName}} × {{.Booking.TotalItems}} = <strong>{{money .Booking.Price}}</strong></p>
	</div>
</body>
</html>`))

// BookingStatusEmail construit la notification envoyée à l'acheteur après un changement de statut.
func BookingStatusEmail(to string, booking models.Booking, productName string) (Mail, error) {
	subject := bookingStatusSubject(booking.Status)
	var buf bytes.Buffer
	err := statusTemplate.Execute(&buf, map[string]any{
		"Subject":     subject,
		"Message":     bookingStatusMessage(booking.Status),
		"Color":       template.CSS(bookingStatusColor(booking.Status)),
		"Booking":     booking,
		"ProductName": productName,
	})
	if err != nil {
		return Mail{}, err
	}
	return Mail{To: to, Subject: subject, HTML: buf.String()}, nil
}
