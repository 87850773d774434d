package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/krowlandson/AzureStateManager/pkg/arm"
)

const (
	testSubscription = "00000000-0000-0000-0000-000000000001"

	rootMG = "/providers/Microsoft.Management/managementGroups/root"
	mg1    = "/providers/Microsoft.Management/managementGroups/mg1"
	subA   = "/subscriptions/00000000-0000-0000-0000-00000000000a"
	subB   = "/subscriptions/00000000-0000-0000-0000-00000000000b"
	rg1    = subA + "/resourceGroups/rg1"

	mgVersion     = "2023-04-01"
	subVersion    = "2022-12-01"
	rgVersion     = "2022-09-01"
	resVersion    = "2022-09-01"
	roleVersion   = "2022-04-01"
	polDefVersion = "2023-04-01"
	polAsgVersion = "2022-06-01"
)

// mockTransport serves canned responses keyed by lowercase path and counts
// every dispatch.
type mockTransport struct {
	mu        sync.Mutex
	responses map[string]*arm.Response
	calls     map[string]int
}

func newMockTransport() *mockTransport {
	m := &mockTransport{
		responses: map[string]*arm.Response{},
		calls:     map[string]int{},
	}
	m.respond(providersPath(), 200, providersBody)
	return m
}

func (m *mockTransport) respond(path string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.ToLower(path)] = &arm.Response{StatusCode: status, Body: []byte(body)}
}

func (m *mockTransport) SendRequest(_ context.Context, method, path string) (*arm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(path)
	m.calls[key]++
	if resp, ok := m.responses[key]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("no canned response for %s %s", method, path)
}

func (m *mockTransport) callCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToLower(path)]
}

func (m *mockTransport) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func providersPath() string {
	return fmt.Sprintf("/subscriptions/%s/providers?api-version=2020-06-01", testSubscription)
}

const providersBody = `{"value":[
	{"namespace":"Microsoft.Management","resourceTypes":[
		{"resourceType":"managementGroups","apiVersions":["2023-04-01","2020-05-01"]},
		{"resourceType":"managementGroups/descendants","apiVersions":["2023-04-01"]}
	]},
	{"namespace":"Microsoft.Resources","resourceTypes":[
		{"resourceType":"subscriptions","apiVersions":["2022-12-01"]},
		{"resourceType":"resourceGroups","apiVersions":["2022-09-01"]},
		{"resourceType":"resources","apiVersions":["2022-09-01"]}
	]},
	{"namespace":"Microsoft.Authorization","resourceTypes":[
		{"resourceType":"roleDefinitions","apiVersions":["2022-04-01"]},
		{"resourceType":"roleAssignments","apiVersions":["2022-04-01"]},
		{"resourceType":"policyDefinitions","apiVersions":["2023-04-01"]},
		{"resourceType":"policySetDefinitions","apiVersions":["2023-04-01"]},
		{"resourceType":"policyAssignments","apiVersions":["2022-06-01"]}
	]},
	{"namespace":"Microsoft.Storage","resourceTypes":[
		{"resourceType":"storageAccounts","apiVersions":["2023-01-01"]}
	]}
]}`

func newTestClient(t *testing.T, transport *mockTransport) *Client {
	t.Helper()
	return NewClient(transport, testSubscription, nil)
}

// respondMG registers a management group body and an empty descendants
// listing unless the caller supplies one.
func (m *mockTransport) respondMG(id, parentID string, descendants ...string) {
	details := ""
	if parentID != "" {
		details = fmt.Sprintf(`,"details":{"parent":{"id":"%s"}}`, parentID)
	}
	body := fmt.Sprintf(`{"id":"%s","name":"%s","type":"Microsoft.Management/managementGroups","properties":{"displayName":"%s"%s}}`,
		id, shortSegment(id), shortSegment(id), details)
	m.respond(id+"?api-version="+mgVersion, 200, body)

	listing := "[]"
	if len(descendants) > 0 {
		listing = "[" + strings.Join(descendants, ",") + "]"
	}
	m.respond(id+"/descendants?api-version="+mgVersion, 200, `{"value":`+listing+`}`)
}

// respondSubscription registers a subscription body and an empty resource
// group listing unless the caller supplies items.
func (m *mockTransport) respondSubscription(id, displayName string, groups ...string) {
	body := fmt.Sprintf(`{"id":"%s","subscriptionId":"%s","displayName":"%s","state":"Enabled"}`,
		id, shortSegment(id), displayName)
	m.respond(id+"?api-version="+subVersion, 200, body)

	listing := "[]"
	if len(groups) > 0 {
		listing = "[" + strings.Join(groups, ",") + "]"
	}
	m.respond(id+"/resourceGroups?api-version="+rgVersion, 200, `{"value":`+listing+`}`)
}

// respondResourceGroup registers a resource group body and an empty
// resources listing.
func (m *mockTransport) respondResourceGroup(id string, resources ...string) {
	body := fmt.Sprintf(`{"id":"%s","name":"%s","location":"eastus","properties":{"provisioningState":"Succeeded"}}`,
		id, shortSegment(id))
	m.respond(id+"?api-version="+rgVersion, 200, body)

	listing := "[]"
	if len(resources) > 0 {
		listing = "[" + strings.Join(resources, ",") + "]"
	}
	m.respond(id+"/resources?api-version="+resVersion, 200, `{"value":`+listing+`}`)
}

// respondAspects registers empty IAM and policy listings for a scope.
func (m *mockTransport) respondAspects(id string) {
	m.respond(id+"/providers/Microsoft.Authorization/roleDefinitions?api-version="+roleVersion, 200, `{"value":[]}`)
	m.respond(id+"/providers/Microsoft.Authorization/roleAssignments?$filter=atScope()&api-version="+roleVersion, 200, `{"value":[]}`)
	m.respond(id+"/providers/Microsoft.Authorization/policyDefinitions?api-version="+polDefVersion, 200, `{"value":[]}`)
	m.respond(id+"/providers/Microsoft.Authorization/policySetDefinitions?api-version="+polDefVersion, 200, `{"value":[]}`)
	m.respond(id+"/providers/Microsoft.Authorization/policyAssignments?$filter=atScope()&api-version="+polAsgVersion, 200, `{"value":[]}`)
}

// respondMGList registers the scope-wide management group listing.
func (m *mockTransport) respondMGList(groups ...string) {
	listing := "[]"
	if len(groups) > 0 {
		listing = "[" + strings.Join(groups, ",") + "]"
	}
	m.respond("/providers/Microsoft.Management/managementGroups?api-version="+mgVersion, 200, `{"value":`+listing+`}`)
}

func mgListPath() string {
	return "/providers/Microsoft.Management/managementGroups?api-version=" + mgVersion
}

// descendantItem renders a descendants listing entry.
func descendantItem(id, itemType, parentID string) string {
	return fmt.Sprintf(`{"id":"%s","type":"%s","name":"%s","properties":{"parent":{"id":"%s"}}}`,
		id, itemType, shortSegment(id), parentID)
}

func groupItem(id string) string {
	return fmt.Sprintf(`{"id":"%s","name":"%s","location":"eastus"}`, id, shortSegment(id))
}

func shortSegment(id string) string {
	parts := strings.Split(strings.TrimSuffix(id, "/"), "/")
	return parts[len(parts)-1]
}
