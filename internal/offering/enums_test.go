package offering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrencyRoundTrip(t *testing.T) {
	cases := []Currency{CurrencyEUR, CurrencyUSD, CurrencyUSDT, CurrencyBTC, CurrencyETH}
	for _, c := range cases {
		parsed, err := ParseCurrency(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}
	_, err := ParseCurrency("INVALID")
	require.Error(t, err)
}

func TestCurrencyCaseInsensitive(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	require.Equal(t, CurrencyUSD, c)
}

func TestVisibilityRoundTrip(t *testing.T) {
	for _, v := range []Visibility{Visible, Invisible} {
		parsed, err := ParseVisibility(v.String())
		require.NoError(t, err)
		require.Equal(t, v, parsed)
	}
	_, err := ParseVisibility("bogus")
	require.Error(t, err)
}

func TestProductTypeRoundTrip(t *testing.T) {
	for _, p := range []ProductType{ProductVPS, ProductDedicated, ProductCloud, ProductManaged} {
		parsed, err := ParseProductType(p.String())
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}
}

func TestVirtualizationTypeRoundTrip(t *testing.T) {
	parsed, err := ParseVirtualizationType("")
	require.NoError(t, err)
	require.Equal(t, VirtNone, parsed)

	for _, v := range []VirtualizationType{VirtKVM, VirtVMware, VirtXen, VirtHyperV} {
		parsed, err := ParseVirtualizationType(v.String())
		require.NoError(t, err)
		require.Equal(t, v, parsed)
	}
	_, err = ParseVirtualizationType("invalid")
	require.Error(t, err)
}

func TestBillingIntervalRoundTrip(t *testing.T) {
	for _, b := range []BillingInterval{BillingHourly, BillingDaily, BillingMonthly, BillingYearly} {
		parsed, err := ParseBillingInterval(b.String())
		require.NoError(t, err)
		require.Equal(t, b, parsed)
	}
}

func TestStockStatusRoundTrip(t *testing.T) {
	cases := map[StockStatus]string{InStock: "in stock", OutOfStock: "out of stock", Limited: "limited"}
	for stock, parseInput := range cases {
		parsed, err := ParseStockStatus(parseInput)
		require.NoError(t, err)
		require.Equal(t, stock, parsed)
	}
}

func TestErrorCorrectionRoundTrip(t *testing.T) {
	cases := map[ErrorCorrection]string{ECC: "ecc", ECCRegistered: "ecc registered", NonECC: "non-ecc"}
	for ec, parseInput := range cases {
		parsed, err := ParseErrorCorrection(parseInput)
		require.NoError(t, err)
		require.Equal(t, ec, parsed)
	}
	_, err := ParseErrorCorrection("invalid")
	require.Error(t, err)
}
