package multisite

import (
	"strconv"
	"strings"
)

const (
	rowSeparatorConstant    = "\n"
	columnSeparatorConstant = "\t"
	carriageReturnConstant  = "\r"
	primaryTenantIDConstant = 1
	tenantIDColumnIndex     = 0
	tenantDomainColumnIndex = 1
	tenantPathColumnIndex   = 2
)

// Tenant is one blog of the network as recorded in the blogs table.
type Tenant struct {
	ID     int
	Domain string
	Path   string
}

// IsPrimary reports whether the tenant is the network's main site.
func (tenant Tenant) IsPrimary() bool {
	return tenant.ID == primaryTenantIDConstant
}

// Address joins the tenant domain and path the way the blogs table stores them.
func (tenant Tenant) Address() string {
	return tenant.Domain + tenant.Path
}

// ParseTenantRows converts tab-separated "blog_id domain path" rows into tenants.
// Rows whose id is not a positive integer are skipped; every other row yields a tenant, repeated ids included.
func ParseTenantRows(output string) []Tenant {
	rows := strings.Split(output, rowSeparatorConstant)
	tenants := make([]Tenant, 0, len(rows))

	for _, row := range rows {
		columns := strings.Split(strings.TrimSuffix(row, carriageReturnConstant), columnSeparatorConstant)

		tenantID, parseError := strconv.Atoi(strings.TrimSpace(columns[tenantIDColumnIndex]))
		if parseError != nil || tenantID <= 0 {
			continue
		}

		tenants = append(tenants, Tenant{
			ID:     tenantID,
			Domain: column(columns, tenantDomainColumnIndex),
			Path:   column(columns, tenantPathColumnIndex),
		})
	}

	return tenants
}

func column(columns []string, index int) string {
	if index >= len(columns) {
		return ""
	}
	return strings.TrimSpace(columns[index])
}
