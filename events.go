// Package modregistry domain events use the CloudEvents specification for
// standardized format and interoperability with external subscribers such
// as notification and audit systems.
package modregistry

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventType constants for registry domain events. Following the
// CloudEvents specification, these use reverse domain notation.
const (
	EventTypeModuleRegistered             = "com.modregistry.module.registered"
	EventTypeModuleVersionBumped          = "com.modregistry.module.version_bumped"
	EventTypeModuleDeprecated             = "com.modregistry.module.deprecated"
	EventTypeModuleArchived               = "com.modregistry.module.archived"
	EventTypeModuleInstallationRequested  = "com.modregistry.installation.requested"
	EventTypeModuleInstallationCompleted  = "com.modregistry.installation.completed"
	EventTypeModuleInstallationFailed     = "com.modregistry.installation.failed"
	EventTypeModuleUninstalled            = "com.modregistry.installation.uninstalled"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// eventSource identifies the registry core as the CloudEvents source.
const eventSource = "modregistry"

// ModuleRegisteredData is the payload of EventTypeModuleRegistered.
type ModuleRegisteredData struct {
	ModuleID   string `json:"moduleId"`
	ModuleName string `json:"moduleName"`
	Version    string `json:"version"`
}

// ModuleVersionBumpedData is the payload of EventTypeModuleVersionBumped.
type ModuleVersionBumpedData struct {
	ModuleID   string `json:"moduleId"`
	ModuleName string `json:"moduleName"`
	OldVersion string `json:"oldVersion"`
	NewVersion string `json:"newVersion"`
}

// ModuleLifecycleData is the payload of EventTypeModuleDeprecated and
// EventTypeModuleArchived.
type ModuleLifecycleData struct {
	ModuleID   string `json:"moduleId"`
	ModuleName string `json:"moduleName"`
	Status     string `json:"status"`
}

// InstallationEventData is the payload of the installation lifecycle
// events.
type InstallationEventData struct {
	JobID       string `json:"jobId,omitempty"`
	TenantID    string `json:"tenantId"`
	ModuleID    string `json:"moduleId"`
	ModuleName  string `json:"moduleName,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// NewRegistryEvent creates a CloudEvent with the registry's source, a
// UUIDv7 id, and the given type, occurrence time, and JSON payload.
func NewRegistryEvent(eventType string, occurred time.Time, data interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(occurred)
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// newEventID generates a unique identifier for CloudEvents using UUIDv7.
// UUIDv7 includes timestamp information which provides time-ordered
// uniqueness.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}
