package arm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	armruntime "github.com/Azure/azure-sdk-for-go/sdk/azcore/arm/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
)

const moduleName = "azurestatemanager"

// Response is the raw result of a management-plane request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues authenticated HTTPS requests against the resource
// management API. Implementations must be safe for concurrent use.
type Transport interface {
	SendRequest(ctx context.Context, method, path string) (*Response, error)
}

// TransportOptions configures a PipelineTransport.
type TransportOptions struct {
	// Endpoint overrides the resource manager endpoint. Defaults to the
	// Azure public cloud.
	Endpoint string
	// ClientOptions is passed through to the underlying azcore pipeline.
	ClientOptions *arm.ClientOptions
}

// PipelineTransport sends requests through an azcore ARM runtime pipeline,
// which handles token acquisition, retries and telemetry.
type PipelineTransport struct {
	pipeline runtime.Pipeline
	endpoint string
}

// NewPipelineTransport builds a Transport from a token credential.
func NewPipelineTransport(cred azcore.TokenCredential, version string, opts *TransportOptions) (*PipelineTransport, error) {
	if opts == nil {
		opts = &TransportOptions{}
	}
	clientOpts := opts.ClientOptions
	if clientOpts == nil {
		clientOpts = &arm.ClientOptions{}
	}

	pipeline, err := armruntime.NewPipeline(moduleName, version, cred, runtime.PipelineOptions{}, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARM pipeline: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = cloud.AzurePublic.Services[cloud.ResourceManager].Endpoint
	}

	return &PipelineTransport{
		pipeline: pipeline,
		endpoint: strings.TrimSuffix(endpoint, "/"),
	}, nil
}

// SendRequest issues a single request for the given management-plane path and
// returns the raw response body regardless of status code. Transport-level
// failures (DNS, TLS, context cancellation) surface as errors; HTTP error
// statuses do not.
func (t *PipelineTransport) SendRequest(ctx context.Context, method, path string) (*Response, error) {
	req, err := runtime.NewRequest(ctx, method, runtime.JoinPaths(t.endpoint, path))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}

	resp, err := t.pipeline.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", path, err)
	}

	body, err := runtime.Payload(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for %s: %w", path, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// DefaultSubscription returns the id of the first enabled subscription
// visible to the credential. The version registry bootstraps its provider
// listing against this subscription.
func DefaultSubscription(ctx context.Context, cred azcore.TokenCredential) (string, error) {
	client, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list subscriptions: %w", err)
		}
		for _, sub := range page.Value {
			if sub.SubscriptionID == nil {
				continue
			}
			if sub.State != nil && *sub.State != armsubscriptions.SubscriptionStateEnabled {
				continue
			}
			return *sub.SubscriptionID, nil
		}
	}
	return "", fmt.Errorf("no accessible subscriptions found")
}

var _ Transport = (*PipelineTransport)(nil)

// methodGet is the only verb the discovery engine uses.
const methodGet = http.MethodGet
