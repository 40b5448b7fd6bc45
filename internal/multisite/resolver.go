package multisite

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultDomainKey names the domain table entry used when no environment matches.
	DefaultDomainKey = "default"

	environmentPlaceholderConstant       = "{environment}"
	sitePlaceholderConstant              = "{site}"
	missingEnvironmentMessageConstant    = "missing environment information"
	productionEnvironmentMessageConstant = "database is being cloned to the production environment"
	domainNotConfiguredTemplateConstant  = "no domain configured for environment %q and no %q entry"
	originNotConfiguredTemplateConstant  = "no origin domain configured for production environment %q"
)

var (
	// ErrMissingEnvironment indicates the environment identifier was empty.
	ErrMissingEnvironment = errors.New(missingEnvironmentMessageConstant)
	// ErrProductionEnvironment indicates the run targets production and must not mutate anything.
	ErrProductionEnvironment = errors.New(productionEnvironmentMessageConstant)
	// ErrDomainNotConfigured indicates the domain table cannot resolve a domain.
	ErrDomainNotConfigured = errors.New("domain not configured")
)

// Topology selects how tenants are addressed under the target domain.
type Topology string

// Supported topologies.
const (
	TopologySubdirectory Topology = Topology("subdirectory")
	TopologySubdomain    Topology = Topology("subdomain")
)

// Environment identifies where the snapshot is being restored.
type Environment struct {
	Identifier   string
	IsProduction bool
}

// NewEnvironment builds an Environment, flagging it as production when it matches productionIdentifier.
func NewEnvironment(identifier string, productionIdentifier string) Environment {
	trimmedIdentifier := strings.TrimSpace(identifier)
	return Environment{
		Identifier:   trimmedIdentifier,
		IsProduction: len(trimmedIdentifier) > 0 && trimmedIdentifier == strings.TrimSpace(productionIdentifier),
	}
}

// DomainTable maps environment identifiers to domain templates.
type DomainTable map[string]string

// Target is the resolved destination of a run.
type Target struct {
	Domain   string
	Topology Topology
}

// DomainResolver picks the target domain and topology for an environment.
type DomainResolver struct {
	table                DomainTable
	siteName             string
	productionIdentifier string
	subdirectoryMarker   string
}

// NewDomainResolver constructs a resolver over a copy of the provided table.
func NewDomainResolver(table DomainTable, siteName string, productionIdentifier string, subdirectoryMarker string) DomainResolver {
	duplicatedTable := make(DomainTable, len(table))
	for environmentIdentifier, domainTemplate := range table {
		duplicatedTable[strings.TrimSpace(environmentIdentifier)] = strings.TrimSpace(domainTemplate)
	}
	return DomainResolver{
		table:                duplicatedTable,
		siteName:             strings.TrimSpace(siteName),
		productionIdentifier: strings.TrimSpace(productionIdentifier),
		subdirectoryMarker:   strings.TrimSpace(subdirectoryMarker),
	}
}

// Resolve returns the target domain and topology for the environment.
func (resolver DomainResolver) Resolve(environment Environment) (Target, error) {
	if len(environment.Identifier) == 0 {
		return Target{}, ErrMissingEnvironment
	}
	if environment.IsProduction {
		return Target{}, ErrProductionEnvironment
	}

	domainTemplate, found := resolver.table[environment.Identifier]
	if !found || len(domainTemplate) == 0 {
		domainTemplate, found = resolver.table[DefaultDomainKey]
	}
	if !found || len(domainTemplate) == 0 {
		return Target{}, fmt.Errorf("%w: "+domainNotConfiguredTemplateConstant, ErrDomainNotConfigured, environment.Identifier, DefaultDomainKey)
	}

	targetDomain := resolver.expand(domainTemplate, environment.Identifier)
	return Target{Domain: targetDomain, Topology: resolver.topologyFor(targetDomain)}, nil
}

// OriginDomain returns the production domain the snapshot is expected to come from.
func (resolver DomainResolver) OriginDomain() (string, error) {
	domainTemplate, found := resolver.table[resolver.productionIdentifier]
	if !found || len(domainTemplate) == 0 {
		return "", fmt.Errorf("%w: "+originNotConfiguredTemplateConstant, ErrDomainNotConfigured, resolver.productionIdentifier)
	}
	return resolver.expand(domainTemplate, resolver.productionIdentifier), nil
}

func (resolver DomainResolver) expand(domainTemplate string, environmentIdentifier string) string {
	replacer := strings.NewReplacer(
		environmentPlaceholderConstant, environmentIdentifier,
		sitePlaceholderConstant, resolver.siteName,
	)
	return replacer.Replace(domainTemplate)
}

// topologyFor falls back to subdirectories for hosts that cannot serve wildcard subdomains.
func (resolver DomainResolver) topologyFor(targetDomain string) Topology {
	if len(resolver.subdirectoryMarker) == 0 {
		return TopologySubdomain
	}
	if strings.Contains(strings.ToLower(targetDomain), strings.ToLower(resolver.subdirectoryMarker)) {
		return TopologySubdirectory
	}
	return TopologySubdomain
}
