// Package offering indexes provider-submitted server offerings (CSV rows,
// one per SKU) for direct lookup and marketplace search.
package offering

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"decent-cloud/internal/crypto"
)

// ServerOffering is one priced SKU a provider lists, following the
// serverhunter.com-style CSV layout.
type ServerOffering struct {
	OfferName               string
	Description             string
	UniqueInternalID        string
	ProductPageURL          string
	Currency                Currency
	MonthlyPrice            float64
	SetupFee                float64
	Visibility              Visibility
	ProductType             ProductType
	VirtualizationType      VirtualizationType
	BillingInterval         BillingInterval
	Stock                   StockStatus
	ProcessorBrand          string
	ProcessorCores          int
	MemoryErrorCorrection   *ErrorCorrection
	MemoryAmount            string
	DatacenterCountry       string
	DatacenterCity          string
	Features                []string
	OperatingSystems        []string
	GPUName                 string
}

// Offering is a ServerOffering bound to the provider that listed it.
type Offering struct {
	Provider crypto.Principal
	Server   ServerOffering
}

// Key is the offering's unique (provider, unique_internal_identifier) index
// key.
func (o Offering) Key() OfferingKey {
	return OfferingKey{Provider: o.Provider, ID: o.Server.UniqueInternalID}
}

// OfferingKey identifies one offering uniquely.
type OfferingKey struct {
	Provider crypto.Principal
	ID       string
}

var csvColumns = []string{
	"Offer Name", "Description", "Unique Internal identifier", "Product page URL",
	"Currency", "Monthly price", "Setup fee", "Visibility", "Product Type",
	"Virtualization type", "Billing interval", "Stock", "Processor Brand",
	"Processor Cores", "Memory Error Correction", "Memory Amount",
	"Datacenter Country", "Datacenter City", "Features", "Operating Systems", "GPU Name",
}

// ParseCSV reads provider-submitted offering rows. Invalid rows are
// skipped rather than aborting the whole batch, matching the teacher's
// best-effort CSV ingestion.
func ParseCSV(r io.Reader) ([]ServerOffering, []error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("offering: read header: %w", err)}
	}
	index := map[string]int{}
	for i, col := range header {
		index[col] = i
	}

	var offerings []ServerOffering
	var errs []error
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("offering: read record: %w", err))
			continue
		}
		so, err := parseRecord(record, index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		offerings = append(offerings, so)
	}
	return offerings, errs
}

func field(record []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRecord(record []string, index map[string]int) (ServerOffering, error) {
	currency, err := ParseCurrency(field(record, index, "Currency"))
	if err != nil {
		return ServerOffering{}, err
	}
	visibility, err := ParseVisibility(field(record, index, "Visibility"))
	if err != nil {
		return ServerOffering{}, err
	}
	productType, err := ParseProductType(field(record, index, "Product Type"))
	if err != nil {
		return ServerOffering{}, err
	}
	virt, err := ParseVirtualizationType(field(record, index, "Virtualization type"))
	if err != nil {
		return ServerOffering{}, err
	}
	billing, err := ParseBillingInterval(field(record, index, "Billing interval"))
	if err != nil {
		return ServerOffering{}, err
	}
	stock, err := ParseStockStatus(field(record, index, "Stock"))
	if err != nil {
		return ServerOffering{}, err
	}
	monthlyPrice, err := strconv.ParseFloat(field(record, index, "Monthly price"), 64)
	if err != nil {
		return ServerOffering{}, fmt.Errorf("offering: invalid monthly price: %w", err)
	}
	setupFee, _ := strconv.ParseFloat(field(record, index, "Setup fee"), 64)
	cores, _ := strconv.Atoi(field(record, index, "Processor Cores"))

	var ecc *ErrorCorrection
	if raw := field(record, index, "Memory Error Correction"); raw != "" {
		parsed, err := ParseErrorCorrection(raw)
		if err == nil {
			ecc = &parsed
		}
	}

	uniqueID := field(record, index, "Unique Internal identifier")
	if uniqueID == "" {
		return ServerOffering{}, fmt.Errorf("offering: missing unique internal identifier")
	}

	return ServerOffering{
		OfferName:             field(record, index, "Offer Name"),
		Description:           field(record, index, "Description"),
		UniqueInternalID:      uniqueID,
		ProductPageURL:        field(record, index, "Product page URL"),
		Currency:              currency,
		MonthlyPrice:          monthlyPrice,
		SetupFee:              setupFee,
		Visibility:            visibility,
		ProductType:           productType,
		VirtualizationType:    virt,
		BillingInterval:       billing,
		Stock:                 stock,
		ProcessorBrand:        field(record, index, "Processor Brand"),
		ProcessorCores:        cores,
		MemoryErrorCorrection: ecc,
		MemoryAmount:          field(record, index, "Memory Amount"),
		DatacenterCountry:     field(record, index, "Datacenter Country"),
		DatacenterCity:        field(record, index, "Datacenter City"),
		Features:              splitList(field(record, index, "Features")),
		OperatingSystems:      splitList(field(record, index, "Operating Systems")),
		GPUName:               field(record, index, "GPU Name"),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
