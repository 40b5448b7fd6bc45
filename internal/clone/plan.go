package clone

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/temirov/wpmu-clone/internal/multisite"
)

const (
	planIndentationConstant        = 2
	planEncodingErrorTemplateConst = "unable to encode remap plan: %w"
)

type planDocument struct {
	RunIdentifier string       `yaml:"run_id,omitempty"`
	Environment   string       `yaml:"environment"`
	OriginDomain  string       `yaml:"origin_domain"`
	TargetDomain  string       `yaml:"target_domain"`
	Topology      string       `yaml:"topology"`
	Tenants       []planTenant `yaml:"tenants"`
}

type planTenant struct {
	ID            int      `yaml:"id"`
	From          string   `yaml:"from"`
	To            string   `yaml:"to"`
	SearchReplace []string `yaml:"search_replace,flow"`
}

// writePlan renders the remaps of a dry run without issuing any command.
func writePlan(writer io.Writer, options SyncOptions, result SyncResult) error {
	document := planDocument{
		RunIdentifier: options.RunIdentifier,
		Environment:   options.Environment.Identifier,
		OriginDomain:  result.OriginDomain,
		TargetDomain:  result.Target.Domain,
		Topology:      string(result.Target.Topology),
		Tenants:       make([]planTenant, 0, len(result.Remaps)),
	}

	for _, tenantRemap := range result.Remaps {
		oldURL, newURL := multisite.SearchReplacePair(tenantRemap.Tenant, tenantRemap.Result)
		document.Tenants = append(document.Tenants, planTenant{
			ID:            tenantRemap.Tenant.ID,
			From:          tenantRemap.Tenant.Address(),
			To:            tenantRemap.Result.Address(),
			SearchReplace: []string{oldURL, newURL},
		})
	}

	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(planIndentationConstant)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return fmt.Errorf(planEncodingErrorTemplateConst, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return fmt.Errorf(planEncodingErrorTemplateConst, closeError)
	}
	return nil
}
