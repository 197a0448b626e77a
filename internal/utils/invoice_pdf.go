package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/skip2/go-qrcode"

	"bazaar_back_end/internal/models"
)

// FormatMoney formate un montant en roupies népalaises.
func FormatMoney(v float64) string {
	return fmt.Sprintf("Rs. %.2f", v)
}

// GenerateBillQR encode la référence et le total de la facture en QR, prêt pour <img src="...">.
func GenerateBillQR(bill models.Bill) (string, error) {
	payload := fmt.Sprintf("BILL:%s|BUYER:%s|TOTAL:%.2f", bill.Reference, bill.BuyerID, bill.TotalAmount)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

var billTemplate = template.Must(template.New("bill").Funcs(template.FuncMap{
	"money": FormatMoney,
	"date":  func(t time.Time) string { return t.Format("02/01/2006 15:04") },
}).Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<title>Facture {{.Bill.Reference}}</title>
	<style>
		body { font-family: Arial, sans-serif; color: #333; padding: 30px; }
		table { width: 100%; border-collapse: collapse; margin: 20px 0; }
		th, td { padding: 10px; border: 1px solid #ddd; text-align: left; }
		th { background-color: #f0f0f0; }
		.total { text-align: right; font-weight: bold; }
		.header { display: flex; justify-content: space-between; align-items: center; }
	</style>
</head>
<body>
	<div class="header">
		<div>
			<h1>Facture</h1>
			<p>Référence : <strong>{{.Bill.Reference}}</strong></p>
			<p>Client : {{.Bill.BuyerName}}{{if .Bill.BuyerEmail}} ({{.Bill.BuyerEmail}}){{end}}</p>
			<p>Émise le : {{date .Bill.IssuedAt}}</p>
		</div>
		{{if .QR}}<img src="{{.QR}}" width="140" height="140" alt="QR">{{end}}
	</div>
	<table>
		<thead>
			<tr><th>Produit</th><th>Quantité</th><th>Prix unitaire</th><th>Total</th><th>Paiement</th><th>Date</th></tr>
		</thead>
		<tbody>
		{{range .Bill.Lines}}
			<tr>
				<td>{{.ProductName}}</td>
				<td>{{.Quantity}}</td>
				<td>{{money .UnitPrice}}</td>
				<td>{{money .Total}}</td>
				<td>{{.Gateway}}</td>
				<td>{{date .PurchasedAt}}</td>
			</tr>
		{{end}}
		</tbody>
		<tfoot>
			<tr><td colspan="3" class="total">Total :</td><td colspan="3"><strong>{{money .Bill.TotalAmount}}</strong></td></tr>
		</tfoot>
	</table>
</body>
</html>`))

// RenderBillHTML produit le reçu HTML d'une facture, avec son QR code.
func RenderBillHTML(bill models.Bill) (string, error) {
	qr, err := GenerateBillQR(bill)
	if err != nil {
		return "", fmt.Errorf("erreur génération QR: %w", err)
	}

	var buf bytes.Buffer
	err = billTemplate.Execute(&buf, map[string]any{
		"Bill": bill,
		"QR":   template.URL(qr),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PDFRenderer imprime un document HTML en PDF.
type PDFRenderer interface {
	PDF(ctx context.Context, html string) ([]byte, error)
}

// ChromePDF imprime via un Chrome headless piloté par chromedp.
type ChromePDF struct {
	Timeout time.Duration
}

func (r ChromePDF) PDF(ctx context.Context, html string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox, chromedp.DisableGPU)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var pdfBuf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("rendu PDF: %w", err)
	}
	return pdfBuf, nil
}
