// Package rbac implements role-based authorization: the resource/operation
// permission model, wildcard matching, resolution of a principal's effective
// permissions and the enforcement wrapper guarding protected operations.
package rbac

import (
	"fmt"
	"strings"

	"github.com/nexus-iot/nexus/internal/shared"
)

// Resource is a category of protected entity.
type Resource string

// Resources. ResourceAll is the only wildcard.
const (
	ResourceAll                  Resource = "ALL"
	ResourceDevice               Resource = "DEVICE"
	ResourceAsset                Resource = "ASSET"
	ResourceDashboard            Resource = "DASHBOARD"
	ResourceUser                 Resource = "USER"
	ResourceCustomer             Resource = "CUSTOMER"
	ResourceAlarm                Resource = "ALARM"
	ResourceRuleChain            Resource = "RULE_CHAIN"
	ResourceEntityView           Resource = "ENTITY_VIEW"
	ResourceWidgetType           Resource = "WIDGET_TYPE"
	ResourceWidgetsBundle        Resource = "WIDGETS_BUNDLE"
	ResourceTenant               Resource = "TENANT"
	ResourceTenantProfile        Resource = "TENANT_PROFILE"
	ResourceDeviceProfile        Resource = "DEVICE_PROFILE"
	ResourceAssetProfile         Resource = "ASSET_PROFILE"
	ResourceTBResource           Resource = "TB_RESOURCE"
	ResourceOTAPackage           Resource = "OTA_PACKAGE"
	ResourceEdge                 Resource = "EDGE"
	ResourceRPC                  Resource = "RPC"
	ResourceQueue                Resource = "QUEUE"
	ResourceNotification         Resource = "NOTIFICATION"
	ResourceNotificationTarget   Resource = "NOTIFICATION_TARGET"
	ResourceNotificationTemplate Resource = "NOTIFICATION_TEMPLATE"
	ResourceNotificationRule     Resource = "NOTIFICATION_RULE"
	ResourceOAuth2Client         Resource = "OAUTH2_CLIENT"
	ResourceDomain               Resource = "DOMAIN"
	ResourceMobileApp            Resource = "MOBILE_APP"
	ResourceAdminSettings        Resource = "ADMIN_SETTINGS"
	ResourceAIModel              Resource = "AI_MODEL"
	ResourceAPIKey               Resource = "API_KEY"
	ResourceRole                 Resource = "ROLE"
)

// Operation is a category of action performed on a resource.
type Operation string

// Operations. OperationAll is the only wildcard.
const (
	OperationAll              Operation = "ALL"
	OperationCreate           Operation = "CREATE"
	OperationRead             Operation = "READ"
	OperationWrite            Operation = "WRITE"
	OperationDelete           Operation = "DELETE"
	OperationRPCCall          Operation = "RPC_CALL"
	OperationReadCredentials  Operation = "READ_CREDENTIALS"
	OperationWriteCredentials Operation = "WRITE_CREDENTIALS"
	OperationReadAttributes   Operation = "READ_ATTRIBUTES"
	OperationWriteAttributes  Operation = "WRITE_ATTRIBUTES"
	OperationReadTelemetry    Operation = "READ_TELEMETRY"
	OperationClaimDevices     Operation = "CLAIM_DEVICES"
)

// resources keeps declaration order for listings.
var resources = []Resource{
	ResourceAll,
	ResourceDevice,
	ResourceAsset,
	ResourceDashboard,
	ResourceUser,
	ResourceCustomer,
	ResourceAlarm,
	ResourceRuleChain,
	ResourceEntityView,
	ResourceWidgetType,
	ResourceWidgetsBundle,
	ResourceTenant,
	ResourceTenantProfile,
	ResourceDeviceProfile,
	ResourceAssetProfile,
	ResourceTBResource,
	ResourceOTAPackage,
	ResourceEdge,
	ResourceRPC,
	ResourceQueue,
	ResourceNotification,
	ResourceNotificationTarget,
	ResourceNotificationTemplate,
	ResourceNotificationRule,
	ResourceOAuth2Client,
	ResourceDomain,
	ResourceMobileApp,
	ResourceAdminSettings,
	ResourceAIModel,
	ResourceAPIKey,
	ResourceRole,
}

var operations = []Operation{
	OperationAll,
	OperationCreate,
	OperationRead,
	OperationWrite,
	OperationDelete,
	OperationRPCCall,
	OperationReadCredentials,
	OperationWriteCredentials,
	OperationReadAttributes,
	OperationWriteAttributes,
	OperationReadTelemetry,
	OperationClaimDevices,
}

var (
	resourceIndex  = indexOf(resources)
	operationIndex = indexOf(operations)
)

func indexOf[T ~string](values []T) map[T]struct{} {
	idx := make(map[T]struct{}, len(values))
	for _, v := range values {
		idx[v] = struct{}{}
	}
	return idx
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	_, ok := resourceIndex[r]
	return ok
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	_, ok := operationIndex[o]
	return ok
}

// ParseResource converts a declared resource name into a Resource.
func ParseResource(value string) (Resource, error) {
	r := Resource(strings.ToUpper(strings.TrimSpace(value)))
	if !r.Valid() {
		return "", fmt.Errorf("rbac: unknown resource %q: %w", value, shared.ErrValidation)
	}
	return r, nil
}

// ParseOperation converts a declared operation name into an Operation.
func ParseOperation(value string) (Operation, error) {
	o := Operation(strings.ToUpper(strings.TrimSpace(value)))
	if !o.Valid() {
		return "", fmt.Errorf("rbac: unknown operation %q: %w", value, shared.ErrValidation)
	}
	return o, nil
}

// ListResources returns every resource name, wildcard first.
func ListResources() []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = string(r)
	}
	return out
}

// ListOperations returns every operation name, wildcard first.
func ListOperations() []string {
	out := make([]string, len(operations))
	for i, o := range operations {
		out[i] = string(o)
	}
	return out
}
