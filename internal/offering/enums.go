package offering

import (
	"fmt"
	"strings"
)

// Currency is the settlement currency an offering is priced in.
type Currency int

const (
	CurrencyEUR Currency = iota
	CurrencyUSD
	CurrencyUSDT
	CurrencyBTC
	CurrencyETH
)

func (c Currency) String() string {
	switch c {
	case CurrencyEUR:
		return "EUR"
	case CurrencyUSD:
		return "USD"
	case CurrencyUSDT:
		return "USDT"
	case CurrencyBTC:
		return "BTC"
	case CurrencyETH:
		return "ETH"
	default:
		return "unknown"
	}
}

// ParseCurrency is case-insensitive.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(s) {
	case "EUR":
		return CurrencyEUR, nil
	case "USD":
		return CurrencyUSD, nil
	case "USDT":
		return CurrencyUSDT, nil
	case "BTC":
		return CurrencyBTC, nil
	case "ETH":
		return CurrencyETH, nil
	default:
		return 0, fmt.Errorf("offering: invalid currency %q", s)
	}
}

// Visibility controls whether an offering appears in marketplace search.
type Visibility int

const (
	Visible Visibility = iota
	Invisible
)

func (v Visibility) String() string {
	if v == Visible {
		return "Visible"
	}
	return "Invisible"
}

func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(s) {
	case "visible":
		return Visible, nil
	case "invisible":
		return Invisible, nil
	default:
		return 0, fmt.Errorf("offering: invalid visibility %q", s)
	}
}

// ProductType is the class of compute product an offering represents.
type ProductType int

const (
	ProductVPS ProductType = iota
	ProductDedicated
	ProductCloud
	ProductManaged
)

func (p ProductType) String() string {
	switch p {
	case ProductVPS:
		return "VPS"
	case ProductDedicated:
		return "Dedicated"
	case ProductCloud:
		return "Cloud"
	case ProductManaged:
		return "Managed"
	default:
		return "unknown"
	}
}

func ParseProductType(s string) (ProductType, error) {
	switch strings.ToLower(s) {
	case "vps":
		return ProductVPS, nil
	case "dedicated":
		return ProductDedicated, nil
	case "cloud":
		return ProductCloud, nil
	case "managed":
		return ProductManaged, nil
	default:
		return 0, fmt.Errorf("offering: invalid product type %q", s)
	}
}

// VirtualizationType names the hypervisor, if any.
type VirtualizationType int

const (
	VirtNone VirtualizationType = iota
	VirtKVM
	VirtVMware
	VirtXen
	VirtHyperV
)

func (v VirtualizationType) String() string {
	switch v {
	case VirtKVM:
		return "KVM"
	case VirtVMware:
		return "VMware"
	case VirtXen:
		return "Xen"
	case VirtHyperV:
		return "Hyper-V"
	default:
		return ""
	}
}

func ParseVirtualizationType(s string) (VirtualizationType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return VirtNone, nil
	case "kvm":
		return VirtKVM, nil
	case "vmware":
		return VirtVMware, nil
	case "xen":
		return VirtXen, nil
	case "hyper-v", "hyperv":
		return VirtHyperV, nil
	default:
		return 0, fmt.Errorf("offering: invalid virtualization type %q", s)
	}
}

// BillingInterval is how often an offering is charged.
type BillingInterval int

const (
	BillingHourly BillingInterval = iota
	BillingDaily
	BillingMonthly
	BillingYearly
)

func (b BillingInterval) String() string {
	switch b {
	case BillingHourly:
		return "Hourly"
	case BillingDaily:
		return "Daily"
	case BillingMonthly:
		return "Monthly"
	case BillingYearly:
		return "Yearly"
	default:
		return "unknown"
	}
}

func ParseBillingInterval(s string) (BillingInterval, error) {
	switch strings.ToLower(s) {
	case "hourly", "hour":
		return BillingHourly, nil
	case "daily", "day":
		return BillingDaily, nil
	case "monthly", "month":
		return BillingMonthly, nil
	case "yearly", "year":
		return BillingYearly, nil
	default:
		return 0, fmt.Errorf("offering: invalid billing interval %q", s)
	}
}

// StockStatus is an offering's current availability.
type StockStatus int

const (
	InStock StockStatus = iota
	OutOfStock
	Limited
)

func (s StockStatus) String() string {
	switch s {
	case InStock:
		return "In stock"
	case OutOfStock:
		return "Out of stock"
	case Limited:
		return "Limited"
	default:
		return "unknown"
	}
}

func ParseStockStatus(s string) (StockStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in stock", "in-stock":
		return InStock, nil
	case "out of stock", "out-of-stock":
		return OutOfStock, nil
	case "limited":
		return Limited, nil
	default:
		return 0, fmt.Errorf("offering: invalid stock status %q", s)
	}
}

// ErrorCorrection is a memory module's ECC classification.
type ErrorCorrection int

const (
	ECC ErrorCorrection = iota
	ECCRegistered
	NonECC
)

func (e ErrorCorrection) String() string {
	switch e {
	case ECC:
		return "ECC"
	case ECCRegistered:
		return "ECC Registered"
	case NonECC:
		return "Non-ECC"
	default:
		return "unknown"
	}
}

func ParseErrorCorrection(s string) (ErrorCorrection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ecc":
		return ECC, nil
	case "ecc registered", "ecc-registered", "ecc-reg", "eccreg":
		return ECCRegistered, nil
	case "non-ecc", "nonecc", "non ecc":
		return NonECC, nil
	default:
		return 0, fmt.Errorf("offering: invalid error correction %q", s)
	}
}
