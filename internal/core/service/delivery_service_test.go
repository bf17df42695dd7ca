package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func TestMarkCartLineDelivered_PromotesWhenAllLinesDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.carts.AddItem(ctx, alice, CartItemInput{ProductID: f.gift(5, 10).ID, Quantity: 1})
	require.NoError(t, err)
	_, _, err = f.carts.AddItem(ctx, alice, CartItemInput{ProductID: f.gift(5, 20).ID, Quantity: 1})
	require.NoError(t, err)
	order, err := f.orders.CreateOrder(ctx, alice, contact())
	require.NoError(t, err)
	require.Len(t, order.CartItems, 2)

	_, err = f.reconciler.ApplyPayment(ctx, order.ID, time.Now(), SourceWebhook)
	require.NoError(t, err)

	err = f.delivery.MarkCartLineDelivered(ctx, alice, order.CartItems[0].ID)
	assert.ErrorIs(t, err, ErrAdminOnly)

	require.NoError(t, f.delivery.MarkCartLineDelivered(ctx, admin, order.CartItems[0].ID))
	assert.Equal(t, domain.OrderStatusPaid, f.order(order.ID).Status)

	require.NoError(t, f.delivery.MarkCartLineDelivered(ctx, admin, order.CartItems[1].ID))
	stored := f.order(order.ID)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)
	deliveredAt := *stored.DeliveredAt

	// repeating changes nothing
	require.NoError(t, f.delivery.MarkCartLineDelivered(ctx, admin, order.CartItems[1].ID))
	assert.Equal(t, deliveredAt, *f.order(order.ID).DeliveredAt)
	assert.Equal(t, 1, f.events.count(domain.EventOrderDelivered))

	err = f.delivery.MarkCartLineDelivered(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrCartLineNotFound)
}

func TestMarkOrderDelivered_DeliversEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(alice, f.gift(5, 10), 2)
	_, err := f.reconciler.ApplyPayment(ctx, order.ID, time.Now(), SourceWebhook)
	require.NoError(t, err)

	require.NoError(t, f.delivery.MarkOrderDelivered(ctx, admin, order.ID))

	stored := f.order(order.ID)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	lines, err := f.store.ListLines(ctx, stored.CartItems)
	require.NoError(t, err)
	for _, l := range lines {
		assert.NotNil(t, l.DeliveredAt)
	}

	require.NoError(t, f.delivery.MarkOrderDelivered(ctx, admin, order.ID))
	assert.Equal(t, 1, f.events.count(domain.EventOrderDelivered))

	err = f.delivery.MarkOrderDelivered(ctx, admin, "missing")
	requireKind(t, domain.ErrNotFound, err)

	err = f.delivery.MarkOrderDelivered(ctx, bob, order.ID)
	requireKind(t, domain.ErrForbidden, err)
}

func TestDelivery_RefusedBeforePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.credentialProduct(2)
	order := f.checkout(alice, p, 2)

	err := f.delivery.MarkOrderDelivered(ctx, admin, order.ID)
	requireKind(t, domain.ErrConflict, err)
	err = f.delivery.MarkCartLineDelivered(ctx, admin, order.CartItems[0].ID)
	requireKind(t, domain.ErrConflict, err)

	// a line still in the cart has no payment behind it either
	line, _, err := f.carts.AddItem(ctx, bob, CartItemInput{ProductID: f.gift(5, 10).ID, Quantity: 1})
	require.NoError(t, err)
	err = f.delivery.MarkCartLineDelivered(ctx, admin, line.ID)
	assert.ErrorIs(t, err, ErrNotPaid)

	stored := f.order(order.ID)
	assert.Nil(t, stored.DeliveredAt)
	lines, err := f.store.ListLines(ctx, stored.CartItems)
	require.NoError(t, err)
	for _, l := range lines {
		assert.Nil(t, l.DeliveredAt)
	}

	// payment then hands out the credentials and delivers
	out, err := f.reconciler.ApplyPayment(ctx, order.ID, time.Now(), SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, out.Status)

	mine, err := f.store.ListCredentials(ctx, port.CredentialFilter{AssignedTo: alice.UserID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, domain.OrderStatusDelivered, f.order(order.ID).Status)
}
