package offering

import (
	"io"
	"strings"
	"sync"

	"decent-cloud/internal/crypto"
)

// Filter narrows a Search call; zero-value fields are unset.
type Filter struct {
	MinPrice    *float64
	MaxPrice    *float64
	ProductType *ProductType
	Country     string
	HasGPU      *bool
}

// Registry is the in-memory inverted index over every provider's
// offerings: a primary (provider, id) map plus secondary indices by
// country, product type, and price bucket for the marketplace search
// surface.
type Registry struct {
	mu          sync.RWMutex
	offerings   map[OfferingKey]Offering
	byProvider  map[crypto.Principal]map[string]struct{}
	byCountry   map[string]map[OfferingKey]struct{}
	byProduct   map[ProductType]map[OfferingKey]struct{}
	priceBucket map[int]map[OfferingKey]struct{}
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		offerings:   map[OfferingKey]Offering{},
		byProvider:  map[crypto.Principal]map[string]struct{}{},
		byCountry:   map[string]map[OfferingKey]struct{}{},
		byProduct:   map[ProductType]map[OfferingKey]struct{}{},
		priceBucket: map[int]map[OfferingKey]struct{}{},
	}
}

// priceBucketOf groups offerings into $50 price bands for the secondary
// index, which load and remove keep up to date; Search does not consult it
// and applies price filters in its linear scan.
func priceBucketOf(monthlyPrice float64) int {
	return int(monthlyPrice / 50)
}

// LoadCSV replaces provider's offering set with the rows parsed from r.
// Invalid rows are skipped; their parse errors are returned alongside the
// count of rows successfully indexed.
func (reg *Registry) LoadCSV(provider crypto.Principal, r io.Reader) (int, []error) {
	parsed, errs := ParseCSV(r)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.removeProviderLocked(provider)
	for _, so := range parsed {
		offering := Offering{Provider: provider, Server: so}
		reg.addLocked(offering)
	}
	return len(parsed), errs
}

func (reg *Registry) addLocked(o Offering) {
	key := o.Key()
	reg.offerings[key] = o

	ids, ok := reg.byProvider[o.Provider]
	if !ok {
		ids = map[string]struct{}{}
		reg.byProvider[o.Provider] = ids
	}
	ids[o.Server.UniqueInternalID] = struct{}{}

	country := strings.ToLower(o.Server.DatacenterCountry)
	if reg.byCountry[country] == nil {
		reg.byCountry[country] = map[OfferingKey]struct{}{}
	}
	reg.byCountry[country][key] = struct{}{}

	if reg.byProduct[o.Server.ProductType] == nil {
		reg.byProduct[o.Server.ProductType] = map[OfferingKey]struct{}{}
	}
	reg.byProduct[o.Server.ProductType][key] = struct{}{}

	bucket := priceBucketOf(o.Server.MonthlyPrice)
	if reg.priceBucket[bucket] == nil {
		reg.priceBucket[bucket] = map[OfferingKey]struct{}{}
	}
	reg.priceBucket[bucket][key] = struct{}{}
}

// RemoveProvider drops every offering belonging to provider, returning how
// many were removed.
func (reg *Registry) RemoveProvider(provider crypto.Principal) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.removeProviderLocked(provider)
}

func (reg *Registry) removeProviderLocked(provider crypto.Principal) int {
	ids, ok := reg.byProvider[provider]
	if !ok {
		return 0
	}
	count := len(ids)
	for id := range ids {
		key := OfferingKey{Provider: provider, ID: id}
		o, ok := reg.offerings[key]
		if !ok {
			continue
		}
		delete(reg.offerings, key)
		delete(reg.byCountry[strings.ToLower(o.Server.DatacenterCountry)], key)
		delete(reg.byProduct[o.Server.ProductType], key)
		delete(reg.priceBucket[priceBucketOf(o.Server.MonthlyPrice)], key)
	}
	delete(reg.byProvider, provider)
	return count
}

// Get looks up one offering directly, O(1).
func (reg *Registry) Get(provider crypto.Principal, id string) (Offering, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	o, ok := reg.offerings[OfferingKey{Provider: provider, ID: id}]
	return o, ok
}

// ByProvider returns every offering a provider has listed.
func (reg *Registry) ByProvider(provider crypto.Principal) []Offering {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := reg.byProvider[provider]
	out := make([]Offering, 0, len(ids))
	for id := range ids {
		if o, ok := reg.offerings[OfferingKey{Provider: provider, ID: id}]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Count is the total number of indexed offerings.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.offerings)
}

// Search narrows by the most selective available secondary index, then
// applies the remaining filter fields with a linear scan over the
// candidate set. The CSV query-language parser itself is out of scope;
// this is the direct index/filter surface it would sit on top of.
func (reg *Registry) Search(f Filter) []Offering {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var candidates map[OfferingKey]struct{}
	switch {
	case f.ProductType != nil:
		candidates = reg.byProduct[*f.ProductType]
	case f.Country != "":
		candidates = reg.byCountry[strings.ToLower(f.Country)]
	default:
		candidates = nil
	}

	var results []Offering
	if candidates == nil {
		for _, o := range reg.offerings {
			if reg.matches(o, f) {
				results = append(results, o)
			}
		}
		return results
	}
	for key := range candidates {
		o, ok := reg.offerings[key]
		if ok && reg.matches(o, f) {
			results = append(results, o)
		}
	}
	return results
}

func (reg *Registry) matches(o Offering, f Filter) bool {
	s := o.Server
	if f.MinPrice != nil && s.MonthlyPrice < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.MonthlyPrice > *f.MaxPrice {
		return false
	}
	if f.ProductType != nil && s.ProductType != *f.ProductType {
		return false
	}
	if f.Country != "" && !strings.EqualFold(s.DatacenterCountry, f.Country) {
		return false
	}
	if f.HasGPU != nil && (s.GPUName != "") != *f.HasGPU {
		return false
	}
	return true
}
