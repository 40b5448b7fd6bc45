package clone

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/temirov/wpmu-clone/internal/execshell"
	"github.com/temirov/wpmu-clone/internal/multisite"
	"github.com/temirov/wpmu-clone/internal/procpool"
)

const (
	operationsFactoryMissingMessageConstant = "wordpress operations factory not configured"
	processPoolMissingMessageConstant       = "process pool not configured"
	stageErrorTemplateConstant              = "%s: %v"
	operationsCreationErrorTemplateConstant = "unable to construct wordpress operations: %w"
	bannerTemplateConstant                  = "Replacing domain names in %sblogs table\n"
	tenantProgressTemplateConstant          = "Processing site #%d %s\n"
	productionGuardTemplateConstant         = "Database is being cloned to %s environment. Manually update the %sblogs and %ssite tables.\n"
	originMismatchTemplateConstant          = "Origin database isn't from %s, skipping table processing.\n"
	stageEnteredMessageConstant             = "entering stage"
	productionGuardMessageConstant          = "production environment detected, skipping table processing"
	originMismatchMessageConstant           = "snapshot origin does not match production domain"
	tenantRemappedMessageConstant           = "tenant remapped"
	syncCompletedMessageConstant            = "domain synchronization completed"
	logFieldStageConstant                   = "stage"
	logFieldEnvironmentConstant             = "environment"
	logFieldTargetDomainConstant            = "target_domain"
	logFieldTopologyConstant                = "topology"
	logFieldOriginDomainConstant            = "origin_domain"
	logFieldSnapshotDomainConstant          = "snapshot_domain"
	logFieldTenantIDConstant                = "tenant_id"
	logFieldFromConstant                    = "from"
	logFieldToConstant                      = "to"
	logFieldTenantCountConstant             = "tenants"
	logFieldDispatchedConstant              = "dispatched"
	logFieldSucceededConstant               = "succeeded"
	logFieldFailedConstant                  = "failed"
)

var (
	errOperationsFactoryMissing = errors.New(operationsFactoryMissingMessageConstant)
	errProcessPoolMissing       = errors.New(processPoolMissingMessageConstant)
)

// Stage names a step of the synchronization workflow.
type Stage string

// Workflow stages in execution order.
const (
	StageInit          Stage = Stage("init")
	StageGuardCheck    Stage = Stage("guard_check")
	StageOriginVerify  Stage = Stage("origin_verify")
	StageEnumerate     Stage = Stage("enumerate")
	StagePerTenantLoop Stage = Stage("per_tenant_loop")
	StageDrain         Stage = Stage("drain")
	StageDone          Stage = Stage("done")
)

// Outcome describes how a run ended without a fatal error.
type Outcome string

// Supported outcomes.
const (
	OutcomeCompleted       Outcome = Outcome("completed")
	OutcomeProductionGuard Outcome = Outcome("production_guard")
	OutcomeOriginMismatch  Outcome = Outcome("origin_mismatch")
	OutcomePlanned         Outcome = Outcome("planned")
)

// StageError reports the stage in which a fatal failure occurred.
type StageError struct {
	Stage Stage
	Cause error
}

// Error describes the failure.
func (stageError StageError) Error() string {
	return fmt.Sprintf(stageErrorTemplateConstant, stageError.Stage, stageError.Cause)
}

// Unwrap exposes the underlying cause.
func (stageError StageError) Unwrap() error {
	return stageError.Cause
}

// WordPressOperations issues the multisite reads and writes of a run.
type WordPressOperations interface {
	PrimaryTenantDomain(executionContext context.Context) (string, error)
	ListTenants(executionContext context.Context) ([]multisite.Tenant, error)
	StartNetworkUpdate(executionContext context.Context, domain string) (execshell.ProcessHandle, error)
	UpdateTenant(executionContext context.Context, result multisite.RemapResult) error
	StartSearchReplace(executionContext context.Context, tenant multisite.Tenant, result multisite.RemapResult) (execshell.ProcessHandle, error)
}

// OperationsFactory builds WordPressOperations addressed at the given network URL.
type OperationsFactory func(networkURL string) (WordPressOperations, error)

// ProcessTracker owns background processes until they terminate.
type ProcessTracker interface {
	Add(handle execshell.ProcessHandle)
	DrainTo(executionContext context.Context, limit int, reportProgress bool) error
	Summary() procpool.Summary
}

// ServiceDependencies describes required collaborators for synchronization.
type ServiceDependencies struct {
	Logger            *zap.Logger
	OperationsFactory OperationsFactory
	ProcessPool       ProcessTracker
	ProgressWriter    io.Writer
}

// SyncOptions configures a single run.
type SyncOptions struct {
	Environment   multisite.Environment
	Resolver      multisite.DomainResolver
	TablePrefix   string
	MaxInFlight   int
	DryRun        bool
	RunIdentifier string
}

// TenantRemap pairs a tenant with its address on the target environment.
type TenantRemap struct {
	Tenant multisite.Tenant
	Result multisite.RemapResult
}

// SyncResult captures the observable outcome of a run.
type SyncResult struct {
	Outcome      Outcome
	Stage        Stage
	Target       multisite.Target
	OriginDomain string
	Remaps       []TenantRemap
	Summary      procpool.Summary
}

// Service orchestrates domain synchronization.
type Service struct {
	logger            *zap.Logger
	operationsFactory OperationsFactory
	processPool       ProcessTracker
	progressWriter    io.Writer
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.OperationsFactory == nil {
		return nil, errOperationsFactoryMissing
	}
	if dependencies.ProcessPool == nil {
		return nil, errProcessPoolMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progressWriter := dependencies.ProgressWriter
	if progressWriter == nil {
		progressWriter = io.Discard
	}

	return &Service{
		logger:            logger,
		operationsFactory: dependencies.OperationsFactory,
		processPool:       dependencies.ProcessPool,
		progressWriter:    progressWriter,
	}, nil
}

// Execute runs the workflow. Early exits are reported through the result outcome;
// only fatal failures return an error.
func (service *Service) Execute(executionContext context.Context, options SyncOptions) (SyncResult, error) {
	if options.MaxInFlight <= 0 {
		options.MaxInFlight = defaultMaxInFlightConstant
	}
	if len(options.TablePrefix) == 0 {
		options.TablePrefix = defaultTablePrefixConstant
	}

	result := SyncResult{}

	service.enterStage(&result, StageInit, zap.String(logFieldEnvironmentConstant, options.Environment.Identifier))
	fmt.Fprintf(service.progressWriter, bannerTemplateConstant, options.TablePrefix)
	if len(options.Environment.Identifier) == 0 {
		return result, StageError{Stage: StageInit, Cause: multisite.ErrMissingEnvironment}
	}

	service.enterStage(&result, StageGuardCheck)
	target, resolveError := options.Resolver.Resolve(options.Environment)
	if resolveError != nil {
		if errors.Is(resolveError, multisite.ErrProductionEnvironment) {
			service.logger.Info(productionGuardMessageConstant, zap.String(logFieldEnvironmentConstant, options.Environment.Identifier))
			fmt.Fprintf(service.progressWriter, productionGuardTemplateConstant, options.Environment.Identifier, options.TablePrefix, options.TablePrefix)
			result.Outcome = OutcomeProductionGuard
			return result, nil
		}
		return result, StageError{Stage: StageGuardCheck, Cause: resolveError}
	}
	result.Target = target

	service.enterStage(&result, StageOriginVerify, zap.String(logFieldTargetDomainConstant, target.Domain), zap.String(logFieldTopologyConstant, string(target.Topology)))
	originDomain, originError := options.Resolver.OriginDomain()
	if originError != nil {
		return result, StageError{Stage: StageOriginVerify, Cause: originError}
	}
	result.OriginDomain = originDomain

	operations, operationsError := service.operationsFactory(originDomain)
	if operationsError != nil {
		return result, StageError{Stage: StageOriginVerify, Cause: fmt.Errorf(operationsCreationErrorTemplateConstant, operationsError)}
	}

	snapshotDomain, snapshotError := operations.PrimaryTenantDomain(executionContext)
	if snapshotError != nil {
		return result, StageError{Stage: StageOriginVerify, Cause: snapshotError}
	}
	if snapshotDomain != originDomain {
		service.logger.Info(
			originMismatchMessageConstant,
			zap.String(logFieldOriginDomainConstant, originDomain),
			zap.String(logFieldSnapshotDomainConstant, snapshotDomain),
		)
		fmt.Fprintf(service.progressWriter, originMismatchTemplateConstant, originDomain)
		result.Outcome = OutcomeOriginMismatch
		return result, nil
	}

	service.enterStage(&result, StageEnumerate)
	tenants, listError := operations.ListTenants(executionContext)
	if listError != nil {
		return result, StageError{Stage: StageEnumerate, Cause: listError}
	}
	result.Remaps = planRemaps(tenants, target, originDomain)

	if options.DryRun {
		if planError := writePlan(service.progressWriter, options, result); planError != nil {
			return result, StageError{Stage: StageEnumerate, Cause: planError}
		}
		result.Outcome = OutcomePlanned
		return result, nil
	}

	service.enterStage(&result, StagePerTenantLoop, zap.Int(logFieldTenantCountConstant, len(tenants)))
	networkHandle, networkError := operations.StartNetworkUpdate(executionContext, target.Domain)
	if networkError != nil {
		return result, StageError{Stage: StagePerTenantLoop, Cause: networkError}
	}
	service.processPool.Add(networkHandle)

	for _, tenantRemap := range result.Remaps {
		if loopError := service.processTenant(executionContext, operations, tenantRemap, options.MaxInFlight); loopError != nil {
			result.Summary = service.processPool.Summary()
			return result, StageError{Stage: StagePerTenantLoop, Cause: loopError}
		}
	}

	service.enterStage(&result, StageDrain)
	if drainError := service.processPool.DrainTo(executionContext, 0, true); drainError != nil {
		result.Summary = service.processPool.Summary()
		return result, StageError{Stage: StageDrain, Cause: drainError}
	}

	result.Summary = service.processPool.Summary()
	service.enterStage(&result, StageDone)
	service.logger.Info(
		syncCompletedMessageConstant,
		zap.String(logFieldTargetDomainConstant, target.Domain),
		zap.Int(logFieldTenantCountConstant, len(result.Remaps)),
		zap.Int(logFieldDispatchedConstant, result.Summary.Dispatched),
		zap.Int(logFieldSucceededConstant, result.Summary.Succeeded),
		zap.Int(logFieldFailedConstant, result.Summary.Failed),
	)
	result.Outcome = OutcomeCompleted
	return result, nil
}

func (service *Service) processTenant(executionContext context.Context, operations WordPressOperations, tenantRemap TenantRemap, maxInFlight int) error {
	fmt.Fprintf(service.progressWriter, tenantProgressTemplateConstant, tenantRemap.Tenant.ID, tenantRemap.Tenant.Address())

	if updateError := operations.UpdateTenant(executionContext, tenantRemap.Result); updateError != nil {
		return updateError
	}

	searchReplaceHandle, startError := operations.StartSearchReplace(executionContext, tenantRemap.Tenant, tenantRemap.Result)
	if startError != nil {
		return startError
	}
	service.processPool.Add(searchReplaceHandle)

	service.logger.Debug(
		tenantRemappedMessageConstant,
		zap.Int(logFieldTenantIDConstant, tenantRemap.Tenant.ID),
		zap.String(logFieldFromConstant, tenantRemap.Tenant.Address()),
		zap.String(logFieldToConstant, tenantRemap.Result.Address()),
	)

	return service.processPool.DrainTo(executionContext, maxInFlight, false)
}

func (service *Service) enterStage(result *SyncResult, stage Stage, fields ...zap.Field) {
	result.Stage = stage
	service.logger.Debug(stageEnteredMessageConstant, append([]zap.Field{zap.String(logFieldStageConstant, string(stage))}, fields...)...)
}

func planRemaps(tenants []multisite.Tenant, target multisite.Target, originDomain string) []TenantRemap {
	remaps := make([]TenantRemap, 0, len(tenants))
	for _, tenant := range tenants {
		remaps = append(remaps, TenantRemap{
			Tenant: tenant,
			Result: multisite.Remap(tenant, target.Domain, target.Topology, originDomain),
		})
	}
	return remaps
}
