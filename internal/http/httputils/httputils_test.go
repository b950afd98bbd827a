package httputils

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
)

func TestGetQueryParam(t *testing.T) {
	testutils.SkipIfIntegration(t)
	values := url.Values{"outcome": {"CHECKSUM_MATCH"}, "limit": {""}}
	assert.Equal(t, "CHECKSUM_MATCH", *GetQueryParam(values, "outcome"))
	assert.Equal(t, "", *GetQueryParam(values, "limit"))
	assert.Nil(t, GetQueryParam(values, "from"))
}

func TestBearerToken(t *testing.T) {
	testutils.SkipIfIntegration(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", BearerToken(r))
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", BearerToken(r))
	r.Header.Set("Authorization", "bearer s3cr3t")
	assert.Equal(t, "s3cr3t", BearerToken(r))
}
