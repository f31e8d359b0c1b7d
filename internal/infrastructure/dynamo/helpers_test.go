package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrKey(t *testing.T) {
	key := strKey("user_id", "u1")
	require.Len(t, key, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, key["user_id"])
}

func TestCompositeKey(t *testing.T) {
	key := compositeKey("user_id", "u1", "fingerprint", "abc")
	require.Len(t, key, 2)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, key["user_id"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "abc"}, key["fingerprint"])
}

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	expr, names, values, err := buildUpdateExpr(map[string]interface{}{"email_verified": true})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", expr)
	assert.Equal(t, map[string]string{"#f0": "email_verified"}, names)
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, values[":v0"])
}

func TestBuildUpdateExpr_MultipleFields(t *testing.T) {
	expr, names, values, err := buildUpdateExpr(map[string]interface{}{
		"full_name": "Alice Tan",
		"domicile":  "Jakarta",
	})
	require.NoError(t, err)
	assert.Contains(t, expr, "SET ")
	assert.Contains(t, expr, ", ")
	assert.Len(t, names, 2)
	assert.Len(t, values, 2)
}

func TestBuildUpdateExpr_Empty(t *testing.T) {
	_, _, _, err := buildUpdateExpr(map[string]interface{}{})
	require.Error(t, err)
}
