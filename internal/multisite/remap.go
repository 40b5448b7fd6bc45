package multisite

import "strings"

const (
	pathSeparatorConstant     = "/"
	labelSeparatorConstant    = "."
	segmentSeparatorConstant  = "-"
	schemeRelativePrefixConst = "//"
)

var pathSegmentReplacer = strings.NewReplacer(labelSeparatorConstant, segmentSeparatorConstant, pathSeparatorConstant, segmentSeparatorConstant)

// RemapResult is a tenant's address on the target environment.
type RemapResult struct {
	TenantID int
	Domain   string
	Path     string
}

// Address joins the remapped domain and path.
func (result RemapResult) Address() string {
	return result.Domain + result.Path
}

// Remap computes the new domain and path for a tenant. It performs no I/O.
//
// Under the subdirectory topology every tenant shares the target domain and
// secondary tenants get a single path segment built from their subdomain and
// original path (blog.example.com/dir/ becomes /blog-dir/). Under the subdomain
// topology secondary tenants keep their path and get a dashed subdomain label.
func Remap(tenant Tenant, targetDomain string, topology Topology, originDomain string) RemapResult {
	if topology == TopologySubdirectory {
		return remapToSubdirectory(tenant, targetDomain, originDomain)
	}
	return remapToSubdomain(tenant, targetDomain, originDomain)
}

func remapToSubdirectory(tenant Tenant, targetDomain string, originDomain string) RemapResult {
	if tenant.IsPrimary() {
		return RemapResult{TenantID: tenant.ID, Domain: targetDomain, Path: pathSeparatorConstant}
	}

	rawPath := stripOriginSuffix(tenant.Domain, originDomain) + tenant.Path
	segment := pathSeparatorConstant + pathSegmentReplacer.Replace(rawPath)
	segment = strings.TrimRight(segment, segmentSeparatorConstant) + pathSeparatorConstant

	return RemapResult{TenantID: tenant.ID, Domain: targetDomain, Path: segment}
}

func remapToSubdomain(tenant Tenant, targetDomain string, originDomain string) RemapResult {
	if tenant.IsPrimary() {
		return RemapResult{TenantID: tenant.ID, Domain: targetDomain, Path: tenant.Path}
	}

	// Sub-subdomains and unrelated domains collapse into one dashed label.
	fragment := strings.ReplaceAll(stripOriginSuffix(tenant.Domain, originDomain), labelSeparatorConstant, segmentSeparatorConstant)

	return RemapResult{TenantID: tenant.ID, Domain: fragment + labelSeparatorConstant + targetDomain, Path: tenant.Path}
}

// stripOriginSuffix leaves domains outside the origin untouched.
func stripOriginSuffix(domain string, originDomain string) string {
	if len(originDomain) == 0 {
		return domain
	}
	return strings.TrimSuffix(domain, labelSeparatorConstant+originDomain)
}

// SearchReplacePair returns the scheme-relative URL prefixes rewritten in a tenant's tables.
func SearchReplacePair(tenant Tenant, result RemapResult) (string, string) {
	oldURL := strings.Trim(tenant.Address(), pathSeparatorConstant)
	newURL := strings.Trim(result.Address(), pathSeparatorConstant)
	return schemeRelativePrefixConst + oldURL, schemeRelativePrefixConst + newURL
}

// SiteURL returns the remapped URL without scheme or surrounding slashes.
func SiteURL(result RemapResult) string {
	return strings.Trim(result.Address(), pathSeparatorConstant)
}
