package lua

import (
	"testing"

	"github.com/jdillenkofer/fixity/internal/http/server/authorization"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
)

func addrOf[T any](t T) *T { return &t }

func TestAuthorizationAlwaysDenied(t *testing.T) {
	testutils.SkipIfIntegration(t)

	luaCode := `
	function authorizeRequest(request)
	  return false
	end
	`
	authorizer, err := NewLuaAuthorizer(luaCode)
	assert.Nil(t, err)
	request := authorization.Request{
		Operation: authorization.OperationListHistory,
	}
	authorized, err := authorizer.AuthorizeRequest(t.Context(), &request)
	assert.False(t, authorized)
	assert.Nil(t, err)
}

func TestAuthorizationAlwaysAllowed(t *testing.T) {
	testutils.SkipIfIntegration(t)

	luaCode := `
	function authorizeRequest(request)
	  return true
	end
	`
	authorizer, err := NewLuaAuthorizer(luaCode)
	assert.Nil(t, err)
	request := authorization.Request{
		Operation: authorization.OperationGetRecord,
	}
	authorized, err := authorizer.AuthorizeRequest(t.Context(), &request)
	assert.True(t, authorized)
	assert.Nil(t, err)
}

func TestOperationCorrectlyPassedThrough(t *testing.T) {
	testutils.SkipIfIntegration(t)

	luaCode := `
	function authorizeRequest(request)
	  return request.operation == "GetHistorySummary"
	end
	`
	authorizer, err := NewLuaAuthorizer(luaCode)
	assert.Nil(t, err)
	authorized, err := authorizer.AuthorizeRequest(t.Context(), &authorization.Request{Operation: authorization.OperationGetHistorySummary})
	assert.True(t, authorized)
	assert.Nil(t, err)

	authorized, err = authorizer.AuthorizeRequest(t.Context(), &authorization.Request{Operation: authorization.OperationGetRecord})
	assert.False(t, authorized)
	assert.Nil(t, err)
}

func TestNestedStructAndNullableFieldsWork(t *testing.T) {
	testutils.SkipIfIntegration(t)

	luaCode := `
	function authorizeRequest(request)
	  if not request:hasToken() then
	    return false
	  end
	  if request.authorization.token ~= "s3cr3t" then
	    return false
	  end
	  return request.bitstreamId == nil or string.sub(request.bitstreamId, 1, 2) == "01"
	end
	`
	authorizer, err := NewLuaAuthorizer(luaCode)
	assert.Nil(t, err)

	authorized, err := authorizer.AuthorizeRequest(t.Context(), &authorization.Request{
		Operation:     authorization.OperationGetRecord,
		Authorization: authorization.Authorization{Token: "s3cr3t"},
		BitstreamId:   addrOf("01ARZ3NDEKTSV4RRFFQ69G5FAV"),
	})
	assert.True(t, authorized)
	assert.Nil(t, err)

	authorized, err = authorizer.AuthorizeRequest(t.Context(), &authorization.Request{
		Operation:     authorization.OperationListHistory,
		Authorization: authorization.Authorization{Token: "s3cr3t"},
	})
	assert.True(t, authorized)
	assert.Nil(t, err)

	authorized, err = authorizer.AuthorizeRequest(t.Context(), &authorization.Request{
		Operation: authorization.OperationListHistory,
	})
	assert.False(t, authorized)
	assert.Nil(t, err)
}

func TestMissingAuthorizationFunctionIsRejected(t *testing.T) {
	testutils.SkipIfIntegration(t)

	_, err := NewLuaAuthorizer(`function somethingElse() return true end`)
	assert.ErrorIs(t, err, errAuthorizationFunctionNotFound)

	_, err = NewLuaAuthorizer(`this is not lua`)
	assert.NotNil(t, err)
}
