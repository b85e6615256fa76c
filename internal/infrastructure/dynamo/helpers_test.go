package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"notified": 1})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "notified"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"renewal_token":    "abc",
		"expiration_ts_ms": int64(42),
		"notified":         0,
	}
	// Call twice to verify determinism.
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)

	// Keys must be sorted: expiration_ts_ms < notified < renewal_token
	assert.Equal(t, "expiration_ts_ms", ue1.Names["#f0"])
	assert.Equal(t, "notified", ue1.Names["#f1"])
	assert.Equal(t, "renewal_token", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"expiration_ts_ms": int64(1234)})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	numVal, isNum := av.(*types.AttributeValueMemberN)
	require.True(t, isNum)
	assert.Equal(t, "1234", numVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestIsConditionalCheckFailed(t *testing.T) {
	assert.True(t, isConditionalCheckFailed(&types.ConditionalCheckFailedException{}))

	code := "ConditionalCheckFailed"
	assert.True(t, isConditionalCheckFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}))

	other := "TransactionConflict"
	assert.False(t, isConditionalCheckFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &other}},
	}))
	assert.False(t, isConditionalCheckFailed(assert.AnError))
}
