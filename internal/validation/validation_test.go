package validation

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{wallet, true},
		{strings.ToLower(wallet), true},
		{"0x" + strings.ToUpper(wallet[2:]), true},
		{"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", true},
		{"0x0000000000000000000000000000000000000000", true},
		// bad checksums
		{"0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"0xFB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", false},
		// malformed
		{wallet[2:], false},
		{wallet[:40], false},
		{wallet + "00", false},
		{"0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"0x", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsValidEthAddress(tc.addr), "address %q", tc.addr)
	}
}

func TestHasValidChecksum(t *testing.T) {
	assert.True(t, HasValidChecksum(wallet))
	assert.True(t, HasValidChecksum(strings.ToLower(wallet)))
	assert.True(t, HasValidChecksum("0x"+strings.ToUpper(wallet[2:])))
	assert.False(t, HasValidChecksum("0x5AaEb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
}

func TestValidAddress_ChecksumMessage(t *testing.T) {
	err := ValidAddress("wallet.address", "0x5AaEb6053F3E94C9b9A09f33669435E7Ef1BeAed")()
	require.NotNil(t, err)
	assert.Equal(t, "has an invalid EIP-55 checksum", err.Message)

	err = ValidAddress("wallet.address", "0x5aAeb6")()
	require.NotNil(t, err)
	assert.Equal(t, "must be a valid Ethereum address (0x...)", err.Message)

	assert.Nil(t, ValidAddress("wallet.address", wallet)())
}

func TestSanitizeAddress(t *testing.T) {
	lower := strings.ToLower(wallet)

	assert.Equal(t, lower, SanitizeAddress(wallet))
	assert.Equal(t, lower, SanitizeAddress("\t"+wallet+" \n"))
	assert.Equal(t, lower, SanitizeAddress(lower[2:]), "bare hex gains a prefix")
	assert.Equal(t, lower, SanitizeAddress("0X"+strings.ToUpper(lower[2:])))
	assert.Equal(t, "0xabc", SanitizeAddress("0xABC"), "short input is only lower-cased")
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "risk-desk", SanitizeString("  risk-desk  ", 64))
	assert.Equal(t, "treas", SanitizeString("treasury", 5))
	assert.Equal(t, "opsbot", SanitizeString("ops\x00bot", 64))
}

func TestValidate_CollectsEveryFailure(t *testing.T) {
	errs := Validate(
		Required("walletAddress", " "),
		ValidAddress("walletAddress", "not-an-address"),
		NonNegative("wallet.txCount", -3),
		NonNegative("wallet.walletAgeDays", 0),
		InRange("protocol.utilizationRate", 1.4, 0, 1),
		OneOf("market.volatilityBucket", "EXTREME", "LOW", "MEDIUM", "HIGH"),
		MaxLength("requestedBy", strings.Repeat("x", 300), 256),
	)

	require.Len(t, errs, 6)
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{
		"walletAddress",
		"walletAddress",
		"wallet.txCount",
		"protocol.utilizationRate",
		"market.volatilityBucket",
		"requestedBy",
	}, fields)
	assert.Equal(t, "walletAddress: is required (and 5 more)", errs.Error())
}

func TestValidate_CleanInput(t *testing.T) {
	errs := Validate(
		Required("walletAddress", wallet),
		ValidAddress("walletAddress", wallet),
		OneOf("market.volatilityBucket", "", "LOW", "HIGH"),
		ValidAddress("counterparty", ""),
	)
	assert.Empty(t, errs)
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
	assert.Equal(t, "score: must not be negative",
		ValidationErrors{{Field: "score", Message: "must not be negative"}}.Error())
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantMsg string
	}{
		{"lower bound", 0, ""},
		{"upper bound", 100, ""},
		{"below", -0.5, "must be between 0 and 100"},
		{"above", 100.5, "must be between 0 and 100"},
		{"nan", math.NaN(), "must be a finite number"},
		{"inf", math.Inf(-1), "must be a finite number"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := InRange("market.priceChange24h", tc.value, 0, 100)()
			if tc.wantMsg == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, "market.priceChange24h", err.Field)
			assert.Equal(t, tc.wantMsg, err.Message)
		})
	}
}

func TestOptionalInRange(t *testing.T) {
	assert.Nil(t, OptionalInRange("protocol.healthFactor", nil, 0, 10)())

	v := 12.0
	err := OptionalInRange("protocol.healthFactor", &v, 0, 10)()
	require.NotNil(t, err)
	assert.Equal(t, "protocol.healthFactor", err.Field)
}

func TestMaxLength_Boundary(t *testing.T) {
	assert.Nil(t, MaxLength("label", "cold", 4)())
	assert.NotNil(t, MaxLength("label", "colder", 4)())
}

func TestAddressParamMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/wallets/:address", AddressParamMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("address"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallets/"+wallet, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wallet, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallets/0x1234", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")
}

func TestRequestSizeMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/analyze", RequestSizeMiddleware(16), func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
