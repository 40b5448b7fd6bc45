package wpcli

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/temirov/wpmu-clone/internal/execshell"
	"github.com/temirov/wpmu-clone/internal/multisite"
)

const (
	databaseSubcommandConstant              = "db"
	querySubcommandConstant                 = "query"
	searchReplaceSubcommandConstant         = "search-replace"
	skipColumnNamesFlagConstant             = "--skip-column-names"
	urlFlagTemplateConstant                 = "--url=%s"
	skipTablesFlagTemplateConstant          = "--skip-tables=%s"
	tableListSeparatorConstant              = ","
	blogsTableSuffixConstant                = "blogs"
	siteTableSuffixConstant                 = "site"
	defaultTablePrefixConstant              = "wp_"
	primaryDomainQueryTemplateConstant      = "SELECT domain FROM %s WHERE site_id=1 AND blog_id=1;"
	tenantListQueryTemplateConstant         = "SELECT blog_id, domain, path FROM %s WHERE site_id=1"
	networkUpdateStatementTemplateConstant  = "UPDATE %s SET domain=%s, path=%s WHERE id=1"
	tenantUpdateStatementTemplateConstant   = "UPDATE %s SET domain=%s, path=%s WHERE site_id=1 AND blog_id=%s"
	networkRootPathConstant                 = "/"
	tablePrefixFieldNameConstant            = "table_prefix"
	networkURLFieldNameConstant             = "network_url"
	domainFieldNameConstant                 = "domain"
	tenantIdentifierFieldNameConstant       = "tenant_id"
	requiredValueMessageConstant            = "value required"
	invalidTablePrefixMessageConstant       = "must contain only letters, digits, and underscores"
	positiveIdentifierMessageConstant       = "must be a positive integer"
	executorNotConfiguredMessageConstant    = "wp-cli executor not configured"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	primaryDomainOperationNameConstant      = OperationName("PrimaryTenantDomain")
	listTenantsOperationNameConstant        = OperationName("ListTenants")
	networkUpdateOperationNameConstant      = OperationName("UpdateNetworkDomain")
	tenantUpdateOperationNameConstant       = OperationName("UpdateTenant")
	searchReplaceOperationNameConstant      = OperationName("SearchReplace")
)

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

	tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	sqlLiteralEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
)

// OperationName describes a named WP-CLI workflow supported by the client.
type OperationName string

// CommandExecutor is the minimal interface required from execshell.ShellExecutor.
type CommandExecutor interface {
	ExecuteWPCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	StartWPCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ProcessHandle, error)
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for WP-CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ClientSettings configures table naming and the network URL used to bootstrap WP-CLI.
type ClientSettings struct {
	TablePrefix string
	NetworkURL  string
}

// Client coordinates WP-CLI invocations through execshell.
type Client struct {
	executor   CommandExecutor
	blogsTable string
	siteTable  string
	networkURL string
}

// NewClient validates settings and constructs a WP-CLI client.
func NewClient(executor CommandExecutor, settings ClientSettings) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	tablePrefix := strings.TrimSpace(settings.TablePrefix)
	if len(tablePrefix) == 0 {
		tablePrefix = defaultTablePrefixConstant
	}
	if !tablePrefixPattern.MatchString(tablePrefix) {
		return nil, InvalidInputError{FieldName: tablePrefixFieldNameConstant, Message: invalidTablePrefixMessageConstant}
	}

	networkURL := strings.TrimSpace(settings.NetworkURL)
	if len(networkURL) == 0 {
		return nil, InvalidInputError{FieldName: networkURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	return &Client{
		executor:   executor,
		blogsTable: tablePrefix + blogsTableSuffixConstant,
		siteTable:  tablePrefix + siteTableSuffixConstant,
		networkURL: networkURL,
	}, nil
}

// PrimaryTenantDomain reads the domain currently recorded for the network's main site.
func (client *Client) PrimaryTenantDomain(executionContext context.Context) (string, error) {
	statement := fmt.Sprintf(primaryDomainQueryTemplateConstant, client.blogsTable)
	executionResult, executionError := client.executor.ExecuteWPCLI(executionContext, execshell.CommandDetails{
		Arguments: client.queryArguments(statement, true),
	})
	if executionError != nil {
		return "", OperationError{Operation: primaryDomainOperationNameConstant, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// ListTenants reads every tenant of the network, skipping malformed rows.
func (client *Client) ListTenants(executionContext context.Context) ([]multisite.Tenant, error) {
	statement := fmt.Sprintf(tenantListQueryTemplateConstant, client.blogsTable)
	executionResult, executionError := client.executor.ExecuteWPCLI(executionContext, execshell.CommandDetails{
		Arguments: client.queryArguments(statement, true),
	})
	if executionError != nil {
		return nil, OperationError{Operation: listTenantsOperationNameConstant, Cause: executionError}
	}
	return multisite.ParseTenantRows(executionResult.StandardOutput), nil
}

// StartNetworkUpdate points the site table at the new domain in the background.
func (client *Client) StartNetworkUpdate(executionContext context.Context, domain string) (execshell.ProcessHandle, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if len(trimmedDomain) == 0 {
		return nil, InvalidInputError{FieldName: domainFieldNameConstant, Message: requiredValueMessageConstant}
	}

	statement := fmt.Sprintf(networkUpdateStatementTemplateConstant, client.siteTable, quoteLiteral(trimmedDomain), quoteLiteral(networkRootPathConstant))
	handle, startError := client.executor.StartWPCLI(executionContext, execshell.CommandDetails{
		Arguments: client.queryArguments(statement, false),
	})
	if startError != nil {
		return nil, OperationError{Operation: networkUpdateOperationNameConstant, Cause: startError}
	}
	return handle, nil
}

// UpdateTenant rewrites a tenant's blogs table record and waits for completion.
func (client *Client) UpdateTenant(executionContext context.Context, result multisite.RemapResult) error {
	if result.TenantID <= 0 {
		return InvalidInputError{FieldName: tenantIdentifierFieldNameConstant, Message: positiveIdentifierMessageConstant}
	}

	statement := fmt.Sprintf(
		tenantUpdateStatementTemplateConstant,
		client.blogsTable,
		quoteLiteral(result.Domain),
		quoteLiteral(result.Path),
		strconv.Itoa(result.TenantID),
	)
	if _, executionError := client.executor.ExecuteWPCLI(executionContext, execshell.CommandDetails{
		Arguments: client.queryArguments(statement, false),
	}); executionError != nil {
		return OperationError{Operation: tenantUpdateOperationNameConstant, Cause: executionError}
	}
	return nil
}

// StartSearchReplace rewrites embedded URLs in the tenant's own tables in the background.
// The shared blogs and site tables are excluded.
func (client *Client) StartSearchReplace(executionContext context.Context, tenant multisite.Tenant, result multisite.RemapResult) (execshell.ProcessHandle, error) {
	oldURL, newURL := multisite.SearchReplacePair(tenant, result)
	arguments := []string{
		searchReplaceSubcommandConstant,
		oldURL,
		newURL,
		fmt.Sprintf(urlFlagTemplateConstant, multisite.SiteURL(result)),
		fmt.Sprintf(skipTablesFlagTemplateConstant, strings.Join([]string{client.blogsTable, client.siteTable}, tableListSeparatorConstant)),
	}

	handle, startError := client.executor.StartWPCLI(executionContext, execshell.CommandDetails{Arguments: arguments})
	if startError != nil {
		return nil, OperationError{Operation: searchReplaceOperationNameConstant, Cause: startError}
	}
	return handle, nil
}

func (client *Client) queryArguments(statement string, skipColumnNames bool) []string {
	arguments := []string{databaseSubcommandConstant, querySubcommandConstant, statement}
	if skipColumnNames {
		arguments = append(arguments, skipColumnNamesFlagConstant)
	}
	return append(arguments, fmt.Sprintf(urlFlagTemplateConstant, client.networkURL))
}

func quoteLiteral(value string) string {
	return "'" + sqlLiteralEscaper.Replace(value) + "'"
}
