package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestOrderDocLayout(t *testing.T) {
	o := newTestOrder(t, MethodCreditCard)
	require.NoError(t, o.BeginPayment("CARD_1", testNow))

	raw, err := bson.Marshal(toDoc(o))
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, o.ID, m["_id"])
	assert.Equal(t, "109.98", m["totalPrice"])
	assert.Contains(t, m, "paymentIntent")
	assert.NotContains(t, m, "paymentResult")
	assert.NotContains(t, m, "paidAt")

	changed, err := o.MarkPaid(CardPayment{Capture: cardInput("CARD_1").Capture, CardLast4: "1111"}, testNow)
	require.NoError(t, err)
	require.True(t, changed)

	raw, err = bson.Marshal(toDoc(o))
	require.NoError(t, err)
	var d orderDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	back, err := d.order()
	require.NoError(t, err)

	assert.True(t, back.IsPaid)
	assert.Nil(t, back.Intent)
	card, ok := back.Payment.(CardPayment)
	require.True(t, ok)
	assert.Equal(t, "1111", card.CardLast4)
	assert.Equal(t, "CARD_1", card.TransactionID)
	assert.True(t, back.Items[0].UnitPrice.Equal(dec("54.99")))
}
