package clone_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/wpmu-clone/internal/clone"
	"github.com/temirov/wpmu-clone/internal/execshell"
	"github.com/temirov/wpmu-clone/internal/multisite"
	"github.com/temirov/wpmu-clone/internal/procpool"
)

const (
	testOriginDomainConstant          = "example.com"
	testSiteNameConstant              = "mysite"
	testProductionEnvironmentConstant = "live"
	testDevelopmentEnvironmentConst   = "dev"
	testTargetDomainConstant          = "dev-mysite.pantheonsite.io"
	testSubdirectoryMarkerConstant    = "pantheonsite.io"
	testSearchReplaceFailureConstant  = "Error: Table 'wp_2_posts' doesn't exist"
)

var errTestUpdateRejected = errors.New("update rejected")

type fakeOperations struct {
	snapshotDomain   string
	tenants          []multisite.Tenant
	updateFailures   map[int]error
	failingTenantIDs map[int]bool
	completeOnStart  bool
	calls            []string
	networkURLs      []string
	pendingProcesses []*execshell.RunningProcess
	inFlightAtStart  []int
	completedHandles int
	startedProcesses int
}

func newFakeOperations(tenants []multisite.Tenant) *fakeOperations {
	return &fakeOperations{
		snapshotDomain:  testOriginDomainConstant,
		tenants:         tenants,
		completeOnStart: true,
	}
}

func (operations *fakeOperations) factory(networkURL string) (clone.WordPressOperations, error) {
	operations.networkURLs = append(operations.networkURLs, networkURL)
	return operations, nil
}

func (operations *fakeOperations) PrimaryTenantDomain(context.Context) (string, error) {
	operations.calls = append(operations.calls, "primary")
	return operations.snapshotDomain, nil
}

func (operations *fakeOperations) ListTenants(context.Context) ([]multisite.Tenant, error) {
	operations.calls = append(operations.calls, "list")
	return operations.tenants, nil
}

func (operations *fakeOperations) StartNetworkUpdate(_ context.Context, domain string) (execshell.ProcessHandle, error) {
	operations.calls = append(operations.calls, "network:"+domain)
	return operations.start(execshell.ExecutionResult{}), nil
}

func (operations *fakeOperations) UpdateTenant(_ context.Context, result multisite.RemapResult) error {
	operations.calls = append(operations.calls, fmt.Sprintf("update:%d:%s", result.TenantID, result.Address()))
	if failure, failing := operations.updateFailures[result.TenantID]; failing {
		return failure
	}
	return nil
}

func (operations *fakeOperations) StartSearchReplace(_ context.Context, tenant multisite.Tenant, result multisite.RemapResult) (execshell.ProcessHandle, error) {
	operations.calls = append(operations.calls, fmt.Sprintf("search_replace:%d", tenant.ID))
	if operations.failingTenantIDs[tenant.ID] {
		return operations.start(execshell.ExecutionResult{ExitCode: 1, StandardError: testSearchReplaceFailureConstant}), nil
	}
	return operations.start(execshell.ExecutionResult{}), nil
}

func (operations *fakeOperations) start(result execshell.ExecutionResult) *execshell.RunningProcess {
	operations.inFlightAtStart = append(operations.inFlightAtStart, operations.startedProcesses-operations.completedHandles)
	operations.startedProcesses++

	process := execshell.NewRunningProcess(execshell.ShellCommand{Name: execshell.CommandWPCLI})
	if operations.completeOnStart {
		operations.completedHandles++
		process.Complete(result, nil)
		return process
	}
	operations.pendingProcesses = append(operations.pendingProcesses, process)
	return process
}

// completeOldest finishes the longest-running pending process, standing in for a poll interval.
func (operations *fakeOperations) completeOldest(context.Context, time.Duration) error {
	if len(operations.pendingProcesses) == 0 {
		return nil
	}
	operations.pendingProcesses[0].Complete(execshell.ExecutionResult{}, nil)
	operations.pendingProcesses = operations.pendingProcesses[1:]
	operations.completedHandles++
	return nil
}

type serviceFixture struct {
	operations     *fakeOperations
	progressOutput *bytes.Buffer
	pool           *procpool.Pool
	service        *clone.Service
}

func newServiceFixture(testInstance *testing.T, operations *fakeOperations) serviceFixture {
	progressOutput := &bytes.Buffer{}
	pool := procpool.NewPool(procpool.Dependencies{
		ProgressWriter: progressOutput,
		Sleeper:        operations.completeOldest,
	}, time.Millisecond)

	service, serviceError := clone.NewService(clone.ServiceDependencies{
		Logger:            zap.NewNop(),
		OperationsFactory: operations.factory,
		ProcessPool:       pool,
		ProgressWriter:    progressOutput,
	})
	require.NoError(testInstance, serviceError)

	return serviceFixture{operations: operations, progressOutput: progressOutput, pool: pool, service: service}
}

func newSyncOptions(environmentIdentifier string) clone.SyncOptions {
	resolver := multisite.NewDomainResolver(multisite.DomainTable{
		testProductionEnvironmentConstant: testOriginDomainConstant,
		"lando":                           "{site}.lndo.site",
		multisite.DefaultDomainKey:        "{environment}-{site}.pantheonsite.io",
	}, testSiteNameConstant, testProductionEnvironmentConstant, testSubdirectoryMarkerConstant)

	return clone.SyncOptions{
		Environment: multisite.NewEnvironment(environmentIdentifier, testProductionEnvironmentConstant),
		Resolver:    resolver,
		TablePrefix: "wp_",
		MaxInFlight: 100,
	}
}

func defaultTenants() []multisite.Tenant {
	return []multisite.Tenant{
		{ID: 1, Domain: testOriginDomainConstant, Path: "/"},
		{ID: 2, Domain: "blog.example.com", Path: "/"},
	}
}

func TestNewServiceValidation(testInstance *testing.T) {
	operations := newFakeOperations(nil)

	_, missingFactoryError := clone.NewService(clone.ServiceDependencies{ProcessPool: procpool.NewPool(procpool.Dependencies{}, time.Millisecond)})
	require.Error(testInstance, missingFactoryError)

	_, missingPoolError := clone.NewService(clone.ServiceDependencies{OperationsFactory: operations.factory})
	require.Error(testInstance, missingPoolError)
}

func TestServiceExecuteEarlyExits(testInstance *testing.T) {
	testCases := []struct {
		name             string
		environment      string
		snapshotDomain   string
		expectedOutcome  clone.Outcome
		expectedCalls    []string
		expectedProgress string
	}{
		{
			name:            "production_guard",
			environment:     testProductionEnvironmentConstant,
			snapshotDomain:  testOriginDomainConstant,
			expectedOutcome: clone.OutcomeProductionGuard,
			expectedCalls:   nil,
			expectedProgress: "Replacing domain names in wp_blogs table\n" +
				"Database is being cloned to live environment. Manually update the wp_blogs and wp_site tables.\n",
		},
		{
			name:            "origin_mismatch",
			environment:     testDevelopmentEnvironmentConst,
			snapshotDomain:  "staging.example.org",
			expectedOutcome: clone.OutcomeOriginMismatch,
			expectedCalls:   []string{"primary"},
			expectedProgress: "Replacing domain names in wp_blogs table\n" +
				"Origin database isn't from example.com, skipping table processing.\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			operations := newFakeOperations(defaultTenants())
			operations.snapshotDomain = testCase.snapshotDomain
			fixture := newServiceFixture(testInstance, operations)

			result, executeError := fixture.service.Execute(context.Background(), newSyncOptions(testCase.environment))

			require.NoError(testInstance, executeError)
			require.Equal(testInstance, testCase.expectedOutcome, result.Outcome)
			require.Equal(testInstance, testCase.expectedCalls, operations.calls)
			require.Equal(testInstance, testCase.expectedProgress, fixture.progressOutput.String())
			require.Zero(testInstance, fixture.pool.Summary().Dispatched)
		})
	}
}

func TestServiceExecuteRequiresEnvironment(testInstance *testing.T) {
	operations := newFakeOperations(defaultTenants())
	fixture := newServiceFixture(testInstance, operations)

	result, executeError := fixture.service.Execute(context.Background(), newSyncOptions("  "))

	require.ErrorIs(testInstance, executeError, multisite.ErrMissingEnvironment)
	var stageError clone.StageError
	require.True(testInstance, errors.As(executeError, &stageError))
	require.Equal(testInstance, clone.StageInit, stageError.Stage)
	require.Equal(testInstance, clone.StageInit, result.Stage)
	require.Empty(testInstance, operations.networkURLs)
	require.Empty(testInstance, operations.calls)
}

func TestServiceExecuteRewritesEveryTenantInOrder(testInstance *testing.T) {
	operations := newFakeOperations(defaultTenants())
	fixture := newServiceFixture(testInstance, operations)

	result, executeError := fixture.service.Execute(context.Background(), newSyncOptions(testDevelopmentEnvironmentConst))

	require.NoError(testInstance, executeError)
	require.Equal(testInstance, clone.OutcomeCompleted, result.Outcome)
	require.Equal(testInstance, clone.StageDone, result.Stage)
	require.Equal(testInstance, []string{testOriginDomainConstant}, operations.networkURLs)
	require.Equal(testInstance, []string{
		"primary",
		"list",
		"network:" + testTargetDomainConstant,
		"update:1:" + testTargetDomainConstant + "/",
		"search_replace:1",
		"update:2:" + testTargetDomainConstant + "/blog/",
		"search_replace:2",
	}, operations.calls)
	require.Equal(testInstance, multisite.Target{Domain: testTargetDomainConstant, Topology: multisite.TopologySubdirectory}, result.Target)
	require.Len(testInstance, result.Remaps, 2)
	require.Equal(testInstance, procpool.Summary{Dispatched: 3, Succeeded: 3}, result.Summary)
	require.Equal(testInstance,
		"Replacing domain names in wp_blogs table\n"+
			"Processing site #1 example.com/\n"+
			"Processing site #2 blog.example.com/\n"+
			"0 processes executing\n",
		fixture.progressOutput.String())
	require.Zero(testInstance, fixture.pool.Len())
}

func TestServiceExecuteToleratesBackgroundFailures(testInstance *testing.T) {
	operations := newFakeOperations(defaultTenants())
	operations.failingTenantIDs = map[int]bool{2: true}
	fixture := newServiceFixture(testInstance, operations)

	result, executeError := fixture.service.Execute(context.Background(), newSyncOptions(testDevelopmentEnvironmentConst))

	require.NoError(testInstance, executeError)
	require.Equal(testInstance, clone.OutcomeCompleted, result.Outcome)
	require.Equal(testInstance, 1, result.Summary.Failed)
	require.Equal(testInstance, 2, result.Summary.Succeeded)
	require.Contains(testInstance, fixture.progressOutput.String(), testSearchReplaceFailureConstant+"\n")
}

func TestServiceExecuteStopsOnSynchronousFailure(testInstance *testing.T) {
	operations := newFakeOperations([]multisite.Tenant{
		{ID: 1, Domain: testOriginDomainConstant, Path: "/"},
		{ID: 2, Domain: "blog.example.com", Path: "/"},
		{ID: 3, Domain: "shop.example.com", Path: "/"},
	})
	operations.updateFailures = map[int]error{2: errTestUpdateRejected}
	fixture := newServiceFixture(testInstance, operations)

	result, executeError := fixture.service.Execute(context.Background(), newSyncOptions(testDevelopmentEnvironmentConst))

	require.ErrorIs(testInstance, executeError, errTestUpdateRejected)
	var stageError clone.StageError
	require.True(testInstance, errors.As(executeError, &stageError))
	require.Equal(testInstance, clone.StagePerTenantLoop, stageError.Stage)
	require.NotContains(testInstance, operations.calls, "search_replace:2")
	require.NotContains(testInstance, operations.calls, "update:3:"+testTargetDomainConstant+"/shop/")
	require.Empty(testInstance, result.Outcome)
}

func TestServiceExecuteBoundsInFlightProcesses(testInstance *testing.T) {
	tenants := make([]multisite.Tenant, 0, 8)
	tenants = append(tenants, multisite.Tenant{ID: 1, Domain: testOriginDomainConstant, Path: "/"})
	for tenantID := 2; tenantID <= 8; tenantID++ {
		tenants = append(tenants, multisite.Tenant{ID: tenantID, Domain: fmt.Sprintf("site%d.example.com", tenantID), Path: "/"})
	}

	operations := newFakeOperations(tenants)
	operations.completeOnStart = false
	fixture := newServiceFixture(testInstance, operations)

	options := newSyncOptions(testDevelopmentEnvironmentConst)
	options.MaxInFlight = 3

	result, executeError := fixture.service.Execute(context.Background(), options)

	require.NoError(testInstance, executeError)
	require.Equal(testInstance, clone.OutcomeCompleted, result.Outcome)
	require.Equal(testInstance, 9, result.Summary.Dispatched)
	require.Equal(testInstance, 9, result.Summary.Succeeded)
	for _, inFlight := range operations.inFlightAtStart {
		require.LessOrEqual(testInstance, inFlight, options.MaxInFlight)
	}
	require.Contains(testInstance, fixture.progressOutput.String(), "3 processes executing\n")
	require.Zero(testInstance, fixture.pool.Len())
}

func TestServiceExecuteDryRunIssuesNoMutations(testInstance *testing.T) {
	operations := newFakeOperations(defaultTenants())
	fixture := newServiceFixture(testInstance, operations)

	options := newSyncOptions(testDevelopmentEnvironmentConst)
	options.DryRun = true
	options.RunIdentifier = "cn1t2u4o3rbc73c4s1s0"

	result, executeError := fixture.service.Execute(context.Background(), options)

	require.NoError(testInstance, executeError)
	require.Equal(testInstance, clone.OutcomePlanned, result.Outcome)
	require.Equal(testInstance, []string{"primary", "list"}, operations.calls)
	require.Zero(testInstance, fixture.pool.Summary().Dispatched)

	planOutput := fixture.progressOutput.String()
	require.Contains(testInstance, planOutput, "run_id: cn1t2u4o3rbc73c4s1s0\n")
	require.Contains(testInstance, planOutput, "target_domain: "+testTargetDomainConstant+"\n")
	require.Contains(testInstance, planOutput, "topology: subdirectory\n")
	require.Contains(testInstance, planOutput, "to: "+testTargetDomainConstant+"/blog/\n")
	require.Contains(testInstance, planOutput, "search_replace: [//blog.example.com, //"+testTargetDomainConstant+"/blog]\n")
}

func TestServiceExecuteStopsWhenContextEnds(testInstance *testing.T) {
	operations := newFakeOperations(defaultTenants())
	operations.completeOnStart = false
	progressOutput := &bytes.Buffer{}
	pool := procpool.NewPool(procpool.Dependencies{ProgressWriter: progressOutput}, time.Hour)

	service, serviceError := clone.NewService(clone.ServiceDependencies{
		OperationsFactory: operations.factory,
		ProcessPool:       pool,
		ProgressWriter:    progressOutput,
	})
	require.NoError(testInstance, serviceError)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, executeError := service.Execute(cancelledContext, newSyncOptions(testDevelopmentEnvironmentConst))

	require.ErrorIs(testInstance, executeError, context.Canceled)
	var stageError clone.StageError
	require.True(testInstance, errors.As(executeError, &stageError))
	require.Equal(testInstance, clone.StageDrain, stageError.Stage)
}
