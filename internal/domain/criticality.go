package domain

import (
	"maps"
	"slices"
)

// ActionType is the closed set of recognized audited actions.
type ActionType string

const (
	ActionLoginSuccess        ActionType = "LOGIN_SUCCESS"
	ActionLoginFail           ActionType = "LOGIN_FAIL"
	ActionSessionUnlock       ActionType = "SESSION_UNLOCK"
	ActionSessionUnlockFail   ActionType = "SESSION_UNLOCK_FAIL"
	ActionDraftCreate         ActionType = "DRAFT_CREATE"
	ActionDraftUpdate         ActionType = "DRAFT_UPDATE"
	ActionDocFinalize         ActionType = "DOC_FINALIZE"
	ActionDocCorrect          ActionType = "DOC_CORRECT"
	ActionDocAnnul            ActionType = "DOC_ANNUL"
	ActionGIISExportCreate    ActionType = "GIIS_EXPORT_CREATE"
	ActionGIISExportSubmit    ActionType = "GIIS_EXPORT_SUBMIT"
	ActionGIISExportAck       ActionType = "GIIS_EXPORT_ACK"
	ActionGIISExportFail      ActionType = "GIIS_EXPORT_FAIL"
	ActionAdminRoleChange     ActionType = "ADMIN_ROLE_CHANGE"
	ActionAdminPermission     ActionType = "ADMIN_PERMISSION_CHANGE"
	ActionAdminConfigChange   ActionType = "ADMIN_CONFIG_CHANGE"
	ActionUserCreate          ActionType = "USER_CREATE"
	ActionUserUpdate          ActionType = "USER_UPDATE"
	ActionUserDeactivate      ActionType = "USER_DEACTIVATE"
	ActionAuditExportDownload ActionType = "AUDIT_EXPORT_DOWNLOAD"
	ActionSystemJob           ActionType = "SYSTEM_JOB"
)

// EventClass decides what happens when an audit write fails.
type EventClass string

const (
	// ClassHardFail aborts the triggering operation when the audit write fails.
	ClassHardFail EventClass = "CLASS_1_HARD_FAIL"
	// ClassSoftFail lets the operation proceed and parks the event in the outbox.
	ClassSoftFail EventClass = "CLASS_2_SOFT_FAIL"
)

// Valid reports whether c is one of the two known classes.
func (c EventClass) Valid() bool {
	return c == ClassHardFail || c == ClassSoftFail
}

var criticality = map[ActionType]EventClass{ //nolint:gochecknoglobals // read-only lookup table
	ActionLoginSuccess:        ClassSoftFail,
	ActionLoginFail:           ClassSoftFail,
	ActionSessionUnlock:       ClassSoftFail,
	ActionSessionUnlockFail:   ClassSoftFail,
	ActionDraftCreate:         ClassSoftFail,
	ActionDraftUpdate:         ClassSoftFail,
	ActionSystemJob:           ClassSoftFail,
	ActionDocFinalize:         ClassHardFail,
	ActionDocCorrect:          ClassHardFail,
	ActionDocAnnul:            ClassHardFail,
	ActionGIISExportCreate:    ClassHardFail,
	ActionGIISExportSubmit:    ClassHardFail,
	ActionGIISExportAck:       ClassHardFail,
	ActionGIISExportFail:      ClassHardFail,
	ActionAdminRoleChange:     ClassHardFail,
	ActionAdminPermission:     ClassHardFail,
	ActionAdminConfigChange:   ClassHardFail,
	ActionUserCreate:          ClassHardFail,
	ActionUserUpdate:          ClassHardFail,
	ActionUserDeactivate:      ClassHardFail,
	ActionAuditExportDownload: ClassHardFail,
}

// Valid reports whether a is a recognized action type.
func (a ActionType) Valid() bool {
	_, ok := criticality[a]
	return ok
}

// ClassOf returns the criticality class callers should pass when recording a.
// Unknown actions are classed hard-fail.
func ClassOf(a ActionType) EventClass {
	if c, ok := criticality[a]; ok {
		return c
	}
	return ClassHardFail
}

// ActionTypes lists every recognized action type in lexical order.
func ActionTypes() []ActionType {
	return slices.Sorted(maps.Keys(criticality))
}
