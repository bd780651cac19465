package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

type message struct {
	Subject string
	Plain   string
	HTML    string
}

var templates = template.Must(template.New("notification").Funcs(template.FuncMap{"orDash": orDash}).Parse(`
{{define "buyer_confirmation"}}<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2 style="background:#28a745;color:#fff;padding:20px;text-align:center">Purchase Confirmed!</h2>
<p>Hello {{.Buyer.Name}}!</p>
<p>Thank you for your purchase. Your order is confirmed.</p>
<div style="background:#f8f9fa;padding:15px;border-left:4px solid #28a745">
<p><strong>Service:</strong> {{.PlanName}}</p>
<p><strong>Price:</strong> {{.Price}}</p>
<p><strong>Receipt:</strong> {{orDash .ExternalPaymentID}}</p>
</div>
<p>We will contact you shortly to arrange your session.</p>
<p style="color:#6c757d;font-size:14px">{{.Brand}}</p>
</div>{{end}}

{{define "operator_notice"}}<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>New Purchase</h2>
<table cellpadding="4">
<tr><td>Buyer</td><td>{{.Buyer.Name}} &lt;{{.Buyer.Email}}&gt;</td></tr>
<tr><td>Phone</td><td>{{orDash .Phone}}</td></tr>
<tr><td>Plan</td><td>{{.PlanName}} ({{.Price}})</td></tr>
<tr><td>Amount</td><td>{{.AmountText}} {{.CurrencyText}}</td></tr>
<tr><td>Subscription</td><td>{{orDash .SubscriptionStatus}}</td></tr>
<tr><td>Payment record</td><td>{{.PaymentID}}</td></tr>
<tr><td>Receipt</td><td>{{orDash .ExternalPaymentID}}</td></tr>
<tr><td>Membership</td><td>{{orDash .ExternalMembershipID}}</td></tr>
</table>
</div>{{end}}

{{define "cancellation_alert"}}<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2 style="background:#ffc107;padding:20px;text-align:center">{{.Title}}</h2>
<p>The membership created by this purchase could not be cancelled automatically.
Cancel it by hand in the provider dashboard.</p>
<table cellpadding="4">
<tr><td>Payment record</td><td>{{.PaymentID}}</td></tr>
<tr><td>Membership</td><td>{{.MembershipID}}</td></tr>
<tr><td>Buyer</td><td>{{orDash .Email}}</td></tr>
<tr><td>Plan</td><td>{{orDash .PlanName}}</td></tr>
<tr><td>Attempt</td><td>{{.Attempt}}</td></tr>
</table>
<p style="background:#f8d7da;padding:15px">{{.ReasonText}}</p>
</div>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func buyerConfirmation(n PurchaseNotice, brand string) (message, error) {
	body, err := render("buyer_confirmation", struct {
		PurchaseNotice
		Brand string
	}{n, brand})
	if err != nil {
		return message{}, err
	}
	return message{
		Subject: fmt.Sprintf("Purchase Confirmed - %s", brand),
		Plain: fmt.Sprintf(
			"Hello %s!\n\nThank you for your purchase. Your order is confirmed.\n\nService: %s\nPrice: %s\nReceipt: %s\n\nWe will contact you shortly to arrange your session.\n\n%s",
			n.Buyer.Name, n.PlanName, n.Price, orDash(n.ExternalPaymentID), brand,
		),
		HTML: body,
	}, nil
}

func operatorNotice(n PurchaseNotice, brand string) (message, error) {
	amount := n.Amount.StringFixed(2)
	currency := strings.ToUpper(n.Currency)
	body, err := render("operator_notice", struct {
		PurchaseNotice
		AmountText   string
		CurrencyText string
	}{n, amount, currency})
	if err != nil {
		return message{}, err
	}
	return message{
		Subject: fmt.Sprintf("New Purchase: %s (%s) - %s", n.PlanName, n.Price, brand),
		Plain: fmt.Sprintf(
			"New purchase\n\nBuyer: %s <%s>\nPhone: %s\nPlan: %s (%s)\nAmount: %s %s\nSubscription: %s\nPayment record: %s\nReceipt: %s\nMembership: %s\n",
			n.Buyer.Name, n.Buyer.Email, orDash(n.Phone), n.PlanName, n.Price, amount, currency,
			orDash(n.SubscriptionStatus), n.PaymentID, orDash(n.ExternalPaymentID), orDash(n.ExternalMembershipID),
		),
		HTML: body,
	}, nil
}

func cancellationAlert(a CancellationAlert) (message, error) {
	title := "Membership Cancellation Failed"
	if a.Permanent {
		title = "Membership Cancellation Permanently Failed"
	}
	reason := a.Reason
	if reason == "" {
		reason = "Unknown error"
	}
	body, err := render("cancellation_alert", struct {
		CancellationAlert
		Title      string
		ReasonText string
	}{a, title, reason})
	if err != nil {
		return message{}, err
	}
	return message{
		Subject: fmt.Sprintf("%s - Payment #%s", title, a.PaymentID),
		Plain: fmt.Sprintf(
			"%s\n\nThe membership created by this purchase could not be cancelled automatically.\nCancel it by hand in the provider dashboard.\n\nPayment record: %s\nMembership: %s\nBuyer: %s\nPlan: %s\nAttempt: %d\nError: %s\n",
			title, a.PaymentID, a.MembershipID, orDash(a.Email), orDash(a.PlanName), a.Attempt, reason,
		),
		HTML: body,
	}, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
