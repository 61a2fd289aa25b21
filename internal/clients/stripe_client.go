package clients

import (
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeClient wraps the Stripe API for customer, subscription and checkout
// session management. All calls go through the official SDK; the webhook
// secret is only used for signature verification.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClient configures the Stripe SDK with the account secret key and
// returns a client. The key is set process-wide, matching how the SDK's
// package-level bindings work.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{webhookSecret: webhookSecret}
}

// CheckoutSessionInput carries everything needed to open a hosted checkout
// for a subscription purchase.
type CheckoutSessionInput struct {
	CustomerID    string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	TrialDays     int64
	Metadata      map[string]string
	CustomerEmail string
}

// SubscriptionResult is the slice of a remote subscription the service layer
// cares about.
type SubscriptionResult struct {
	ID               string
	Status           string
	CustomerID       string
	CurrentPeriodEnd int64
	PriceID          string
	ItemID           string
	ClientSecret     string
}

// CreateCustomer registers a new Stripe customer for a user. The user ID is
// stored in metadata so remote objects can always be traced back.
func (c *StripeClient) CreateCustomer(email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("user_id", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}

	log.Printf("[StripeClient] Created customer %s for user %s", cust.ID, userID)
	return cust.ID, nil
}

// GetOrCreateCustomer returns existingID when the remote customer is still
// live, otherwise creates a fresh customer. A transient retrieval error also
// falls through to create, which can duplicate customers on the remote side;
// the new ID is returned either way so the caller can persist it.
func (c *StripeClient) GetOrCreateCustomer(existingID, email, name, userID string) (string, error) {
	if existingID != "" {
		cust, err := customer.Get(existingID, nil)
		if err == nil && !cust.Deleted {
			return cust.ID, nil
		}
		log.Printf("[StripeClient] Customer %s unusable (%v), creating a new one", existingID, err)
	}
	return c.CreateCustomer(email, name, userID)
}

// CreateSubscription starts a subscription for an existing customer. Payment
// collection is deferred (default_incomplete) so the caller can confirm the
// first invoice's payment intent client-side. A trialDays of 0 means no trial.
// Metadata is stamped onto the subscription so remote objects stay traceable.
func (c *StripeClient) CreateSubscription(customerID, priceID string, trialDays int64, metadata map[string]string) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Expand: []*string{stripe.String("latest_invoice.confirmation_secret")},
	}
	if trialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(trialDays)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe subscription: %w", err)
	}

	return subscriptionResult(sub), nil
}

// CreateCheckoutSession opens a hosted checkout page for a subscription.
// Metadata set here is echoed back on the checkout.session.completed event
// and on the subscription itself, which is what deferred provisioning
// depends on.
func (c *StripeClient) CreateCheckoutSession(in CheckoutSessionInput) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}

	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}

	subData := &stripe.CheckoutSessionSubscriptionDataParams{}
	if in.TrialDays > 0 {
		subData.TrialPeriodDays = stripe.Int64(in.TrialDays)
	}
	for k, v := range in.Metadata {
		subData.AddMetadata(k, v)
		params.AddMetadata(k, v)
	}
	params.SubscriptionData = subData

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Printf("[StripeClient] Created checkout session %s", sess.ID)
	return sess.ID, sess.URL, nil
}

// UpdateSubscriptionPrice swaps the subscription's price in place, prorating
// the difference. Stripe requires the existing item ID for an in-place swap,
// so the subscription is fetched first.
func (c *StripeClient) UpdateSubscriptionPrice(subscriptionID, newPriceID string) (*SubscriptionResult, error) {
	current, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stripe subscription %s: %w", subscriptionID, err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update stripe subscription %s: %w", subscriptionID, err)
	}

	log.Printf("[StripeClient] Updated subscription %s to price %s", subscriptionID, newPriceID)
	return subscriptionResult(sub), nil
}

// CancelSubscription schedules cancellation at the end of the current billing
// period, so the customer keeps access until then.
func (c *StripeClient) CancelSubscription(subscriptionID string) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stripe subscription %s: %w", subscriptionID, err)
	}

	log.Printf("[StripeClient] Scheduled cancellation for subscription %s", subscriptionID)
	return subscriptionResult(sub), nil
}

// CancelSubscriptionNow terminates a subscription immediately. Used to clean
// up after a failed provisioning so no orphaned billing remains.
func (c *StripeClient) CancelSubscriptionNow(subscriptionID string) error {
	if _, err := subscription.Cancel(subscriptionID, nil); err != nil {
		return fmt.Errorf("failed to cancel stripe subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// GetSubscription fetches the current remote state of a subscription.
func (c *StripeClient) GetSubscription(subscriptionID string) (*SubscriptionResult, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stripe subscription %s: %w", subscriptionID, err)
	}
	return subscriptionResult(sub), nil
}

// VerifyEventSignature authenticates a webhook payload against the endpoint
// secret and returns the parsed event. API version mismatches between the
// SDK pin and the account setting are tolerated; only bad signatures fail.
func (c *StripeClient) VerifyEventSignature(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// subscriptionResult flattens the SDK subscription into the fields the
// service layer uses. The billing period end lives on the subscription item.
func subscriptionResult(sub *stripe.Subscription) *SubscriptionResult {
	out := &SubscriptionResult{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.ConfirmationSecret != nil {
		out.ClientSecret = sub.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	return out
}
