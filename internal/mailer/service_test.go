package mailer

import (
	"strings"
	"testing"

	"github.com/ariefcatur/go-course-checkout/internal/fulfillment"
)

func TestConfirmationBody(t *testing.T) {
	p := fulfillment.OrderConfirmedPayload{
		OrderNumber:  "CO-000042",
		CustomerName: "Buyer One",
		Items: []fulfillment.LineItem{
			{Title: "Intro to Go", Price: 282},
			{Title: "Advanced Go", Price: 282},
		},
		Subtotal:     600,
		Discount:     36,
		DiscountTier: "Foundation",
		Total:        564,
	}

	body := confirmationBody(p)

	for _, want := range []string{
		"Hi Buyer One,",
		"Order CO-000042",
		"Intro to Go",
		"Subtotal: 600",
		"Foundation: -36",
		"Total: 564",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestConfirmationBodyNoDiscountNoName(t *testing.T) {
	p := fulfillment.OrderConfirmedPayload{
		OrderNumber: "CO-000001",
		Items:       []fulfillment.LineItem{{Title: "Intro to Go", Price: 299}},
		Subtotal:    299,
		Total:       299,
	}

	body := confirmationBody(p)

	if !strings.Contains(body, "Hi there,") {
		t.Errorf("expected fallback greeting:\n%s", body)
	}
	if strings.Contains(body, ": -") {
		t.Errorf("zero discount must not render a discount line:\n%s", body)
	}
}
