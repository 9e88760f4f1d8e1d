package config

import (
	"strconv"

	"github.com/wareform/wareform/pkg/engine"
)

// Spec is implemented by every resource spec.
type Spec interface {
	// Kind returns the resource kind of the spec.
	Kind() engine.ResourceKind

	// Key returns the canonical key identifying the resource within its kind.
	Key() string
}

// Warehouse is a compute cluster.
type Warehouse struct {
	Name            string  `json:"name" yaml:"name" validate:"required"`
	Size            string  `json:"size" yaml:"size" validate:"required,oneof=XSMALL SMALL MEDIUM LARGE XLARGE XXLARGE"`
	AutoSuspend     int     `json:"auto_suspend" yaml:"auto_suspend" validate:"gte=0"`
	AutoResume      bool    `json:"auto_resume" yaml:"auto_resume"`
	ScalingPolicy   string  `json:"scaling_policy" yaml:"scaling_policy" validate:"oneof=STANDARD ECONOMY"`
	MaxClusterCount int     `json:"max_cluster_count" yaml:"max_cluster_count" validate:"min=1,max=10"`
	ResourceMonitor *string `json:"resource_monitor" yaml:"resource_monitor"`
}

// Database is a top-level database.
type Database struct {
	Name string `json:"name" yaml:"name" validate:"required,excludes=."`
}

// Schema is a schema inside a database.
type Schema struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Database string `json:"database" yaml:"database" validate:"required,excludes=."`
}

// Role is an access-control role.
type Role struct {
	Name    string  `json:"name" yaml:"name" validate:"required"`
	Comment *string `json:"comment" yaml:"comment"`
}

// Grant gives a privilege on an object to a role.
type Grant struct {
	Role      string `json:"role" yaml:"role" validate:"required,excludes=:"`
	Privilege string `json:"privilege" yaml:"privilege" validate:"required,excludes=:"`
	OnType    string `json:"on_type" yaml:"on_type" validate:"required,excludes=:"`
	OnName    string `json:"on_name" yaml:"on_name" validate:"required"`
}

// ResourceMonitor caps credit consumption.
type ResourceMonitor struct {
	Name            string `json:"name" yaml:"name" validate:"required"`
	CreditQuota     int    `json:"credit_quota" yaml:"credit_quota" validate:"min=1"`
	Frequency       string `json:"frequency" yaml:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY"`
	NotifyAtPercent []int  `json:"notify_at_percent" yaml:"notify_at_percent" validate:"dive,min=1,max=100"`
}

// Tag is an object tag definition.
type Tag struct {
	Name          string   `json:"name" yaml:"name" validate:"required"`
	AllowedValues []string `json:"allowed_values" yaml:"allowed_values"`
}

// MaskingPolicy is a column masking policy.
type MaskingPolicy struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Expression string `json:"expression" yaml:"expression" validate:"required"`
}

// TagAttachment sets a tag value on an object.
type TagAttachment struct {
	Tag        string `json:"tag" yaml:"tag" validate:"required,excludes=:"`
	ObjectType string `json:"object_type" yaml:"object_type" validate:"required,excludes=:"`
	ObjectName string `json:"object_name" yaml:"object_name" validate:"required"`
	Value      string `json:"value" yaml:"value"`
}

// MaskingAttachment applies a masking policy to an object.
type MaskingAttachment struct {
	Policy     string `json:"policy" yaml:"policy" validate:"required,excludes=:"`
	ObjectType string `json:"object_type" yaml:"object_type" validate:"required,excludes=:"`
	ObjectName string `json:"object_name" yaml:"object_name" validate:"required"`
}

// Share exposes secure views to other accounts.
type Share struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Accounts    []string `json:"accounts" yaml:"accounts" validate:"dive,required"`
	SecureViews []string `json:"secure_views" yaml:"secure_views" validate:"dive,required"`
}

// DesiredConfig is the user-authored target state of one account.
type DesiredConfig struct {
	AccountName        string              `json:"account_name" yaml:"account_name" validate:"required"`
	Warehouses         []Warehouse         `json:"warehouses" yaml:"warehouses" validate:"dive"`
	Databases          []Database          `json:"databases" yaml:"databases" validate:"dive"`
	Schemas            []Schema            `json:"schemas" yaml:"schemas" validate:"dive"`
	Roles              []Role              `json:"roles" yaml:"roles" validate:"dive"`
	Grants             []Grant             `json:"grants" yaml:"grants" validate:"dive"`
	ResourceMonitors   []ResourceMonitor   `json:"resource_monitors" yaml:"resource_monitors" validate:"dive"`
	Tags               []Tag               `json:"tags" yaml:"tags" validate:"dive"`
	MaskingPolicies    []MaskingPolicy     `json:"masking_policies" yaml:"masking_policies" validate:"dive"`
	TagAttachments     []TagAttachment     `json:"tag_attachments" yaml:"tag_attachments" validate:"dive"`
	MaskingAttachments []MaskingAttachment `json:"masking_attachments" yaml:"masking_attachments" validate:"dive"`
	Shares             []Share             `json:"shares" yaml:"shares" validate:"dive"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "warehouses[0].size").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String formats the error as "file:line:col: path: message", omitting empty parts.
func (ve ValidationError) String() string {
	var prefix string
	if ve.File != "" {
		prefix = ve.File
		if ve.Line > 0 {
			prefix += ":" + strconv.Itoa(ve.Line)
			if ve.Column > 0 {
				prefix += ":" + strconv.Itoa(ve.Column)
			}
		}
		prefix += ": "
	}
	if ve.Path != "" {
		prefix += ve.Path + ": "
	}
	return prefix + ve.Message
}
